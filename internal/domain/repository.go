// Package domain defines the core interfaces and types for Underwriter.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for configuration and result persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Decision rules
	SaveRule(ctx context.Context, tenantID string, rule *DecisionRule) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*DecisionRule, error)
	ListRules(ctx context.Context, tenantID string, enabledOnly bool) ([]*DecisionRule, error)
	SetRuleEnabled(ctx context.Context, tenantID string, ruleID string, enabled bool) error

	// Execution stages
	SaveStage(ctx context.Context, tenantID string, stage *ExecutionStage) error
	ListStages(ctx context.Context, tenantID string, enabledOnly bool) ([]*ExecutionStage, error)
	SetStageEnabled(ctx context.Context, tenantID string, stageID string, enabled bool) error

	// Risk bands
	SaveRiskBand(ctx context.Context, tenantID string, band *RiskBand) error
	ListRiskBands(ctx context.Context, tenantID string, enabledOnly bool) ([]*RiskBand, error)
	SetRiskBandEnabled(ctx context.Context, tenantID string, bandID string, enabled bool) error

	// LoadSnapshot reads every enabled rule, stage, and risk band.
	LoadSnapshot(ctx context.Context, tenantID string) (*Snapshot, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *EvaluationResult) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*EvaluationResult, error)
	ListEvaluations(ctx context.Context, tenantID string, filter EvaluationFilter) ([]*EvaluationResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
