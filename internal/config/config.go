// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables locking and pub/sub fan-out
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

// ProviderConfig holds per-provider transport settings. Secrets live in the
// vault, not here.
type ProviderConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type ProvidersConfig struct {
	Ollama  ProviderConfig `yaml:"ollama"`
	OpenAI  ProviderConfig `yaml:"openai"`
	Gemini  ProviderConfig `yaml:"gemini"`
	Claude  ProviderConfig `yaml:"claude"`
	ComfyUI ProviderConfig `yaml:"comfyui"`
}

type JobsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Watch        bool          `yaml:"watch"` // poll running image jobs server-side
	LockTTL      time.Duration `yaml:"lock_ttl"`
	HistoryLimit int           `yaml:"history_limit"`
}

type StorageConfig struct {
	Kind      string `yaml:"kind"` // none|local|minio
	LocalDir  string `yaml:"local_dir"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	AdminPassword string        `yaml:"admin_password"`
	HMACSecret    string        `yaml:"hmac_secret"`
	SecureCookie  bool          `yaml:"secure_cookie"`
	CookieDomain  string        `yaml:"cookie_domain"`
	TTL           time.Duration `yaml:"ttl"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"` // empty disables notifications
	ChatID int64  `yaml:"chat_id"`
}

type TracingConfig struct {
	Exporter     string `yaml:"exporter"` // none|stdout|otlp
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Vault     VaultConfig     `yaml:"vault"`
	Providers ProvidersConfig `yaml:"providers"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Tracing   TracingConfig   `yaml:"tracing"`

	Runtime RuntimeConfig `yaml:"-"`
}

const EnvVaultPassphrase = "GENHUB_VAULT_PASSPHRASE"

// LoadConfig reads the YAML file at path, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv(EnvVaultPassphrase); v != "" {
		cfg.Vault.Passphrase = v
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownGrace <= 0 {
		cfg.Server.ShutdownGrace = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "genhub:jobs"
	}

	defaultEndpoint(&cfg.Providers.Ollama, "http://localhost:11434")
	defaultEndpoint(&cfg.Providers.ComfyUI, "http://localhost:8188")
	defaultEndpoint(&cfg.Providers.OpenAI, "")
	defaultEndpoint(&cfg.Providers.Gemini, "")
	defaultEndpoint(&cfg.Providers.Claude, "https://api.anthropic.com")

	if cfg.Jobs.PollInterval <= 0 {
		cfg.Jobs.PollInterval = time.Second
	}
	if cfg.Jobs.MaxAttempts <= 0 {
		cfg.Jobs.MaxAttempts = 120
	}
	if cfg.Jobs.LockTTL <= 0 {
		cfg.Jobs.LockTTL = 30 * time.Second
	}
	if cfg.Jobs.HistoryLimit <= 0 {
		cfg.Jobs.HistoryLimit = 30
	}

	cfg.Storage.Kind = strings.ToLower(strings.TrimSpace(cfg.Storage.Kind))
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = "local"
	}
	if cfg.Storage.Kind == "local" && cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "data/outputs"
	}

	if cfg.Auth.TTL <= 0 {
		cfg.Auth.TTL = 12 * time.Hour
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}
}

func defaultEndpoint(p *ProviderConfig, endpoint string) {
	if p.Endpoint == "" {
		p.Endpoint = endpoint
	}
	if p.Timeout <= 0 {
		p.Timeout = 2 * time.Minute
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 4
	}
}

// Minimal validation
func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Vault.Passphrase == "" && !cfg.Runtime.Dev {
		return fmt.Errorf("vault.passphrase (or %s) is required", EnvVaultPassphrase)
	}
	switch cfg.Storage.Kind {
	case "none", "local":
	case "minio":
		if cfg.Storage.Endpoint == "" || cfg.Storage.Bucket == "" {
			return errors.New("storage.endpoint and storage.bucket are required for minio")
		}
	default:
		return fmt.Errorf("storage.kind %q is not supported", cfg.Storage.Kind)
	}
	if cfg.Auth.AdminPassword != "" && cfg.Auth.HMACSecret == "" {
		return errors.New("auth.hmac_secret is required when auth.admin_password is set")
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when telegram.token is set")
	}
	return nil
}
