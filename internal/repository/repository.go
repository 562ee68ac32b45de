// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// History query bounds.
const (
	defaultEvaluationLimit = 50
	maxEvaluationLimit     = 500
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := NewWithDB(db, cfg.Driver)

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

var _ domain.Repository = (*SQLRepository)(nil)

// NewWithDB wraps an open handle without running migrations.
func NewWithDB(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// DECISION RULES
// ============================================================================

const ruleColumns = `id, tenant_id, name, description, category, stage_id,
	condition_group, action, priority, enabled, effective_from, effective_to,
	products, case_types, version, created_at, updated_at`

// SaveRule inserts a rule or replaces an existing one, bumping its version.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.DecisionRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	group, err := json.Marshal(rule.ConditionGroup)
	if err != nil {
		return fmt.Errorf("failed to encode condition group: %w", err)
	}
	action, err := json.Marshal(rule.Action)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	version := rule.Version
	if version < 1 {
		version = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO decision_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			stage_id = excluded.stage_id,
			condition_group = excluded.condition_group,
			action = excluded.action,
			priority = excluded.priority,
			enabled = excluded.enabled,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			products = excluded.products,
			case_types = excluded.case_types,
			version = decision_rules.version + 1,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, string(rule.Category), rule.StageID,
		string(group), string(action), rule.Priority, boolToInt(rule.IsEnabled),
		nullTime(rule.EffectiveFrom), nullTime(rule.EffectiveTo),
		jsonList(rule.Products), jsonList(rule.CaseTypes), version,
		now, now,
	)
	return err
}

// GetRule retrieves a rule by ID, enabled or not.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.DecisionRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM decision_rules WHERE tenant_id = ? AND id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules returns a tenant's rules ordered by stage and priority.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string, enabledOnly bool) ([]*domain.DecisionRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM decision_rules WHERE tenant_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY stage_id, priority, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.DecisionRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SetRuleEnabled toggles a rule and bumps its version.
func (r *SQLRepository) SetRuleEnabled(ctx context.Context, tenantID string, ruleID string, enabled bool) error {
	query := `
		UPDATE decision_rules
		SET enabled = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`
	return r.execOne(ctx, tenantID, query, boolToInt(enabled), time.Now().UTC(), tenantID, ruleID)
}

func scanRule(row scanner) (*domain.DecisionRule, error) {
	var rule domain.DecisionRule
	var description, stageID sql.NullString
	var category, group, action, products, caseTypes string
	var enabled int
	var from, to sql.NullTime

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &category, &stageID,
		&group, &action, &rule.Priority, &enabled, &from, &to,
		&products, &caseTypes, &rule.Version, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Category = domain.RuleCategory(category)
	rule.StageID = stageID.String
	rule.IsEnabled = enabled == 1
	rule.EffectiveFrom = timePtr(from)
	rule.EffectiveTo = timePtr(to)

	if err := json.Unmarshal([]byte(group), &rule.ConditionGroup); err != nil {
		return nil, fmt.Errorf("failed to parse condition group for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(action), &rule.Action); err != nil {
		return nil, fmt.Errorf("failed to parse action for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(products), &rule.Products); err != nil {
		return nil, fmt.Errorf("failed to parse products for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(caseTypes), &rule.CaseTypes); err != nil {
		return nil, fmt.Errorf("failed to parse case types for rule %s: %w", rule.ID, err)
	}

	return &rule, nil
}

// ============================================================================
// EXECUTION STAGES
// ============================================================================

const stageColumns = `id, tenant_id, name, description, execution_order,
	stop_on_fail, enabled, created_at, updated_at`

// SaveStage inserts or replaces an execution stage.
func (r *SQLRepository) SaveStage(ctx context.Context, tenantID string, stage *domain.ExecutionStage) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if stage == nil || stage.ID == "" {
		return fmt.Errorf("%w: stage id is required", ErrInvalidInput)
	}
	if stage.ID == domain.UnassignedStageID {
		return fmt.Errorf("%w: stage id %q is reserved", ErrInvalidInput, stage.ID)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO execution_stages (` + stageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			execution_order = excluded.execution_order,
			stop_on_fail = excluded.stop_on_fail,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		stage.ID, tenantID, stage.Name, stage.Description, stage.ExecutionOrder,
		boolToInt(stage.StopOnFail), boolToInt(stage.IsEnabled),
		now, now,
	)
	return err
}

// ListStages returns a tenant's stages in execution order.
func (r *SQLRepository) ListStages(ctx context.Context, tenantID string, enabledOnly bool) ([]*domain.ExecutionStage, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + stageColumns + ` FROM execution_stages WHERE tenant_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY execution_order, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stages := []*domain.ExecutionStage{}
	for rows.Next() {
		var s domain.ExecutionStage
		var description sql.NullString
		var stopOnFail, enabled int

		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.Name, &description, &s.ExecutionOrder,
			&stopOnFail, &enabled, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}

		s.Description = description.String
		s.StopOnFail = stopOnFail == 1
		s.IsEnabled = enabled == 1
		stages = append(stages, &s)
	}

	return stages, rows.Err()
}

// SetStageEnabled toggles a stage.
func (r *SQLRepository) SetStageEnabled(ctx context.Context, tenantID string, stageID string, enabled bool) error {
	query := `UPDATE execution_stages SET enabled = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
	return r.execOne(ctx, tenantID, query, boolToInt(enabled), time.Now().UTC(), tenantID, stageID)
}

// ============================================================================
// RISK BANDS
// ============================================================================

const bandColumns = `id, tenant_id, name, description, category, band_condition,
	loading_percentage, risk_score, products, priority, enabled, created_at, updated_at`

// SaveRiskBand inserts or replaces a risk band.
func (r *SQLRepository) SaveRiskBand(ctx context.Context, tenantID string, band *domain.RiskBand) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if band == nil || band.ID == "" {
		return fmt.Errorf("%w: risk band id is required", ErrInvalidInput)
	}

	condition, err := json.Marshal(band.Condition)
	if err != nil {
		return fmt.Errorf("failed to encode band condition: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_bands (` + bandColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			band_condition = excluded.band_condition,
			loading_percentage = excluded.loading_percentage,
			risk_score = excluded.risk_score,
			products = excluded.products,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		band.ID, tenantID, band.Name, band.Description, band.Category, string(condition),
		band.LoadingPercentage, band.RiskScore, jsonList(band.Products), band.Priority,
		boolToInt(band.IsEnabled), now, now,
	)
	return err
}

// ListRiskBands returns a tenant's risk bands ordered by priority.
func (r *SQLRepository) ListRiskBands(ctx context.Context, tenantID string, enabledOnly bool) ([]*domain.RiskBand, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + bandColumns + ` FROM risk_bands WHERE tenant_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY priority, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bands := []*domain.RiskBand{}
	for rows.Next() {
		var b domain.RiskBand
		var description sql.NullString
		var condition, products string
		var enabled int

		if err := rows.Scan(
			&b.ID, &b.TenantID, &b.Name, &description, &b.Category, &condition,
			&b.LoadingPercentage, &b.RiskScore, &products, &b.Priority, &enabled,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}

		b.Description = description.String
		b.IsEnabled = enabled == 1
		if err := json.Unmarshal([]byte(condition), &b.Condition); err != nil {
			return nil, fmt.Errorf("failed to parse condition for band %s: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(products), &b.Products); err != nil {
			return nil, fmt.Errorf("failed to parse products for band %s: %w", b.ID, err)
		}
		bands = append(bands, &b)
	}

	return bands, rows.Err()
}

// SetRiskBandEnabled toggles a risk band.
func (r *SQLRepository) SetRiskBandEnabled(ctx context.Context, tenantID string, bandID string, enabled bool) error {
	query := `UPDATE risk_bands SET enabled = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
	return r.execOne(ctx, tenantID, query, boolToInt(enabled), time.Now().UTC(), tenantID, bandID)
}

// LoadSnapshot reads the enabled configuration a single evaluation runs on.
func (r *SQLRepository) LoadSnapshot(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	rules, err := r.ListRules(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	stages, err := r.ListStages(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	bands, err := r.ListRiskBands(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk bands: %w", err)
	}

	return &domain.Snapshot{
		Rules:     rules,
		Stages:    stages,
		RiskBands: bands,
	}, nil
}

// ============================================================================
// EVALUATIONS
// ============================================================================

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.EvaluationResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, tenant_id, proposal_id, trace_id, stp_decision,
			case_type, scorecard_value, evaluated_at, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.ProposalID, eval.TraceID, eval.STPDecision,
		eval.CaseType, eval.ScorecardValue, eval.EvaluatedAt.UTC(), string(payload),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.EvaluationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT result FROM evaluations WHERE tenant_id = ? AND id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decodeEvaluation(payload, tenantID)
}

// ListEvaluations returns a tenant's most recent evaluations.
func (r *SQLRepository) ListEvaluations(ctx context.Context, tenantID string, filter domain.EvaluationFilter) ([]*domain.EvaluationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT result FROM evaluations WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.STPDecision != "" {
		query += ` AND stp_decision = ?`
		args = append(args, strings.ToUpper(filter.STPDecision))
	}
	if filter.ProposalID != "" {
		query += ` AND proposal_id = ?`
		args = append(args, filter.ProposalID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEvaluationLimit
	}
	if limit > maxEvaluationLimit {
		limit = maxEvaluationLimit
	}
	query += ` ORDER BY evaluated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evals := []*domain.EvaluationResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		eval, err := decodeEvaluation(payload, tenantID)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}

	return evals, rows.Err()
}

func decodeEvaluation(payload, tenantID string) (*domain.EvaluationResult, error) {
	var eval domain.EvaluationResult
	if err := json.Unmarshal([]byte(payload), &eval); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation: %w", err)
	}
	eval.TenantID = tenantID
	return &eval, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// ============================================================================
// HELPERS
// ============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// execOne runs a tenant-scoped update that must touch exactly one row.
func (r *SQLRepository) execOne(ctx context.Context, tenantID, query string, args ...any) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// jsonList encodes a list, storing nil as an empty array.
func jsonList[T any](v []T) string {
	if v == nil {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
