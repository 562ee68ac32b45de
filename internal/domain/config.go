package domain

import "time"

// Config holds the complete Underwriter configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier selects the default infrastructure profile
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`

	// Decision engine and async processing
	Engine EngineConfig `json:"engine" mapstructure:"engine"`
	Worker WorkerConfig `json:"worker" mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds

	// Per-tenant token bucket; zero disables limiting
	RateLimit float64 `json:"rateLimit" mapstructure:"rate_limit"` // requests per second
	RateBurst int     `json:"rateBurst" mapstructure:"rate_burst"`

	// Browser origins allowed by CORS; empty allows any
	CORSOrigins []string `json:"corsOrigins" mapstructure:"cors_origins"`
}

// EngineConfig holds decision engine settings.
type EngineConfig struct {
	// DerivedFields are CEL expressions added to every data record.
	DerivedFields []DerivedField `json:"derivedFields" mapstructure:"derived_fields"`

	// ResultTTL is how long evaluation results stay cached for lookups.
	ResultTTL time.Duration `json:"resultTtl" mapstructure:"result_ttl"`
}

// DerivedField is a named CEL expression over the proposal fields.
type DerivedField struct {
	Name       string `json:"name" mapstructure:"name" yaml:"name"`
	Expression string `json:"expression" mapstructure:"expression" yaml:"expression"`
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
	TenantIDs []string `json:"tenantIds" mapstructure:"tenant_ids"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// Tier represents the deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultDerivedFields are computed for every proposal unless overridden.
func DefaultDerivedFields() []DerivedField {
	return []DerivedField{
		{
			Name:       "sa_income_multiple",
			Expression: "applicant_income > 0.0 ? sum_assured / applicant_income : 0.0",
		},
		{
			Name:       "total_coverage",
			Expression: "sum_assured + existing_coverage",
		},
	}
}

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    50,
			RateBurst:    100,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./underwriter.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			DerivedFields: DefaultDerivedFields(),
			ResultTTL:     time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "underwriter",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "underwriter",
	}
	cfg.Cache = CacheConfig{
		Type:             "redis",
		RedisAddr:        "localhost:6379",
		EnableTwoPhase:   true,
		LocalMaxSize:     1000,
		LocalTTL:         time.Minute,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
