package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"genhub/internal/config"
	"genhub/internal/infra/adapters/provider"
	pg "genhub/internal/infra/db/postgres"
	"genhub/internal/infra/events"
	red "genhub/internal/infra/redis"
	"genhub/internal/infra/security"
	"genhub/internal/infra/storage"
	"genhub/internal/usecase"
)

// app holds the wired service graph shared by serve and the CLI commands.
type app struct {
	cfg   *config.Config
	log   *zerolog.Logger
	pool  *pgxpool.Pool
	redis *red.Client // nil when redis.url is empty

	gateway       *usecase.Gateway
	tracker       *usecase.JobTracker
	credentials   usecase.CredentialUseCase
	results       usecase.ResultUseCase
	conversations usecase.ConversationUseCase
	broker        *events.Broker
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(cfgPath, devMode)
}

func newApp(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, broker: events.NewBroker()}

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.pool = pool
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if cfg.Vault.Passphrase == "" {
		a.Close()
		return nil, fmt.Errorf("vault passphrase is not set (vault.passphrase or %s)", config.EnvVaultPassphrase)
	}
	vault, err := security.NewEncryptionService(cfg.Vault.Passphrase)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vault: %w", err)
	}

	jobRepo := pg.NewJobRepo(pool)
	resultRepo := pg.NewResultRepo(pool)
	credRepo := pg.NewCredentialRepo(pool)
	convRepo := pg.NewConversationRepo(pool)
	txm := pg.NewTxManager(pool)

	a.gateway = usecase.NewGateway(
		provider.Registry(cfg.Providers),
		usecase.NewCredentialResolver(credRepo, vault),
		provider.EstimateTokens,
		log,
	)
	a.credentials = usecase.NewCredentialUseCase(credRepo, vault, a.gateway, log)
	a.conversations = usecase.NewConversationUseCase(convRepo)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.results = usecase.NewResultUseCase(resultRepo, store, log)

	deps := usecase.TrackerDeps{
		Jobs:          jobRepo,
		Results:       resultRepo,
		Conversations: convRepo,
		Tx:            txm,
		Gateway:       a.gateway,
		Store:         store,
	}

	var notifiers events.Fanout
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rc
		deps.Locker = red.NewLocker(rc)
		// Events go through redis so every instance's stream sees them.
		notifiers = append(notifiers, red.NewPublisher(rc, cfg.Redis.Channel))
	} else {
		notifiers = append(notifiers, a.broker)
	}
	if cfg.Telegram.Token != "" {
		tg, err := events.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifications disabled")
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	deps.Notifier = notifiers

	a.tracker = usecase.NewJobTracker(deps, usecase.TrackerConfig{
		PollInterval: cfg.Jobs.PollInterval,
		MaxAttempts:  cfg.Jobs.MaxAttempts,
		LockTTL:      cfg.Jobs.LockTTL,
		HistoryLimit: cfg.Jobs.HistoryLimit,
	}, log)
	return a, nil
}

func (a *app) ready(ctx context.Context) error {
	var errs []error
	if err := a.pool.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
