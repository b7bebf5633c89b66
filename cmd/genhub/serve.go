package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"genhub/internal/infra/api"
	"genhub/internal/infra/logging"
	"genhub/internal/infra/metrics"
	red "genhub/internal/infra/redis"
	"genhub/internal/infra/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Log, cfg.Runtime.Dev)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, log)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown")
			}
		}()
		metrics.MustRegister()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		var limiter api.LoginLimiter
		if a.redis != nil {
			limiter = red.NewRateLimiter(a.redis)
		}
		srv := api.NewServer(api.Deps{
			Jobs:          a.tracker,
			Credentials:   a.credentials,
			Results:       a.results,
			Conversations: a.conversations,
			Providers:     a.gateway,
			Events:        a.broker,
			Limiter:       limiter,
			Ready:         a.ready,
		}, cfg.Server, cfg.Auth, log)
		if cfg.Auth.AdminPassword == "" {
			log.Warn().Msg("auth.admin_password is empty, the API is unauthenticated")
		}

		httpSrv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("addr", httpSrv.Addr).Str("version", version).Msg("http listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		if cfg.Jobs.Watch {
			g.Go(func() error {
				log.Info().Dur("interval", cfg.Jobs.PollInterval).Msg("job watcher started")
				return a.tracker.Watch(gctx)
			})
		}
		if a.redis != nil {
			g.Go(func() error {
				return red.Subscribe(gctx, a.redis, cfg.Redis.Channel, a.broker.Broadcast, log)
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("shutdown requested")
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
			defer cancel()
			_ = a.broker.Shutdown(sctx)
			return httpSrv.Shutdown(sctx)
		})
		return g.Wait()
	},
}
