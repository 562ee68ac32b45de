// Package config loads the service configuration from defaults, an optional
// YAML file, and UNDERWRITER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g.
// UNDERWRITER_SERVER_PORT for server.port.
const EnvPrefix = "UNDERWRITER"

// Loader resolves configuration. Precedence, highest first: bound flags,
// environment, config file, tier defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with environment overrides enabled.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying instance so callers can bind CLI flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads path (if not empty) and returns the merged configuration.
// Without a path, ./underwriter.yaml is used when present.
func (l *Loader) Load(path string) (*domain.Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName("underwriter")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("/etc/underwriter/")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The tier picks which profile supplies the defaults.
	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(l.v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(l.v, base)

	cfg := &domain.Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Tier = domain.Tier(strings.ToLower(string(cfg.Tier)))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is shorthand for NewLoader().Load(path).
func Load(path string) (*domain.Config, error) {
	return NewLoader().Load(path)
}

func setDefaults(v *viper.Viper, cfg *domain.Config) {
	v.SetDefault("tier", string(cfg.Tier))

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.rate_burst", cfg.Server.RateBurst)
	if len(cfg.Server.CORSOrigins) > 0 {
		v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	}

	v.SetDefault("repository.driver", cfg.Repository.Driver)
	v.SetDefault("repository.sqlite_path", cfg.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", cfg.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", cfg.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", cfg.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", cfg.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", cfg.Repository.PostgresDB)
	v.SetDefault("repository.postgres_ssl_mode", cfg.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", cfg.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", cfg.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", cfg.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.local_max_size", cfg.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", cfg.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", cfg.Cache.RedisDB)
	v.SetDefault("cache.breaker_threshold", cfg.Cache.BreakerThreshold)
	v.SetDefault("cache.breaker_timeout", cfg.Cache.BreakerTimeout)
	v.SetDefault("cache.enable_two_phase", cfg.Cache.EnableTwoPhase)

	v.SetDefault("event_bus.type", cfg.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", cfg.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", cfg.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", cfg.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", cfg.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", cfg.EventBus.NATSReconnectWait)

	v.SetDefault("engine.derived_fields", cfg.Engine.DerivedFields)
	v.SetDefault("engine.result_ttl", cfg.Engine.ResultTTL)

	v.SetDefault("worker.enabled", cfg.Worker.Enabled)
	v.SetDefault("worker.tenant_ids", cfg.Worker.TenantIDs)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
}

// Validate rejects combinations the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("unknown tier %q", cfg.Tier))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	if cfg.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository.driver %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache.type %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported event_bus.type %q", cfg.EventBus.Type))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported logging.format %q", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
