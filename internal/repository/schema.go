package repository

// Schema definitions for the Underwriter database.
// Compatible with both SQLite and PostgreSQL. Structured values (condition
// trees, actions, product lists) are stored as JSON text.

const schemaExecutionStages = `
CREATE TABLE IF NOT EXISTS execution_stages (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    execution_order INTEGER NOT NULL,
    stop_on_fail INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_execution_stages_order ON execution_stages(tenant_id, enabled, execution_order);
`

const schemaDecisionRules = `
CREATE TABLE IF NOT EXISTS decision_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    category TEXT NOT NULL,
    stage_id TEXT,
    condition_group TEXT NOT NULL,
    action TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 100,
    enabled INTEGER NOT NULL DEFAULT 1,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    products TEXT NOT NULL,
    case_types TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_decision_rules_enabled ON decision_rules(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_decision_rules_stage ON decision_rules(tenant_id, stage_id, priority);
`

const schemaRiskBands = `
CREATE TABLE IF NOT EXISTS risk_bands (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    category TEXT NOT NULL,
    band_condition TEXT NOT NULL,
    loading_percentage REAL NOT NULL DEFAULT 0,
    risk_score INTEGER NOT NULL DEFAULT 0,
    products TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 100,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_risk_bands_enabled ON risk_bands(tenant_id, enabled, priority);
`

// schemaEvaluations keeps the full result as JSON alongside the columns
// history queries filter on.
const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    proposal_id TEXT NOT NULL,
    trace_id TEXT,
    stp_decision TEXT NOT NULL,
    case_type INTEGER NOT NULL,
    scorecard_value INTEGER NOT NULL,
    evaluated_at TIMESTAMP NOT NULL,
    result TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id, evaluated_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_proposal ON evaluations(tenant_id, proposal_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(tenant_id, stp_decision);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaExecutionStages,
		schemaDecisionRules,
		schemaRiskBands,
		schemaEvaluations,
	}
}
