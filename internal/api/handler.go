package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/rules"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	service   *decision.Service
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	evaluator *rules.Evaluator
	schema    *jsonschema.Schema
	version   string
}

// NewHandler creates a new API handler. Cache and bus may be nil.
func NewHandler(service *decision.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, evaluator *rules.Evaluator, version string) (*Handler, error) {
	schema, err := compileProposalSchema()
	if err != nil {
		return nil, err
	}
	return &Handler{
		service:   service,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		evaluator: evaluator,
		schema:    schema,
		version:   version,
	}, nil
}

// Evaluate handles POST /underwriting/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := validateAgainst(h.schema, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var proposal domain.Proposal
	if err := json.Unmarshal(body, &proposal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	result, err := h.service.Evaluate(ctx, tenantID, traceID, &proposal)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidProposal) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("evaluation failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"proposal_id", proposal.ProposalID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health reports liveness plus the state of each backing component.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if len(h.checkComponents(r)) > 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns 503 until every configured component answers a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	failures := h.checkComponents(r)
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"errors": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) checkComponents(r *http.Request) map[string]string {
	ctx := r.Context()
	failures := map[string]string{}

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			failures["repository"] = err.Error()
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			failures["cache"] = err.Error()
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			failures["event_bus"] = err.Error()
		}
	}
	return failures
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	evalID := chi.URLParam(r, "id")

	eval, err := h.service.Get(ctx, GetTenantID(ctx), evalID)
	if err != nil {
		writeRepoError(w, err, "evaluation")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// ListEvaluations returns evaluation history, newest first.
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := domain.EvaluationFilter{
		STPDecision: q.Get("stp_decision"),
		ProposalID:  q.Get("proposal_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	evals, err := h.service.List(ctx, GetTenantID(ctx), filter)
	if err != nil {
		writeRepoError(w, err, "evaluations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": evals,
		"count":       len(evals),
	})
}

// ListRules returns all of the tenant's rules, enabled or not.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.repo.ListRules(ctx, GetTenantID(ctx), r.URL.Query().Get("enabled") == "true")
	if err != nil {
		writeRepoError(w, err, "rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rule, err := h.repo.GetRule(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule validates and stores a rule. Saving an existing id updates it
// and bumps its version.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	rule := domain.DecisionRule{IsEnabled: true}
	if !decodeBody(w, r, &rule) {
		return
	}
	if err := h.evaluator.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.SaveRule(ctx, tenantID, &rule); err != nil {
		writeRepoError(w, err, "rule")
		return
	}

	saved, err := h.repo.GetRule(ctx, tenantID, rule.ID)
	if err != nil {
		writeRepoError(w, err, "rule")
		return
	}

	slog.Info("rule saved",
		"rule_id", saved.ID,
		"tenant_id", tenantID,
		"version", saved.Version,
	)
	writeJSON(w, http.StatusCreated, saved)
}

// ToggleRule flips a rule between enabled and disabled.
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		writeRepoError(w, err, "rule")
		return
	}
	if err := h.repo.SetRuleEnabled(ctx, tenantID, ruleID, !rule.IsEnabled); err != nil {
		writeRepoError(w, err, "rule")
		return
	}
	writeToggled(w, ruleID, !rule.IsEnabled)
}

// ListStages returns the tenant's stages in execution order.
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stages, err := h.repo.ListStages(ctx, GetTenantID(ctx), r.URL.Query().Get("enabled") == "true")
	if err != nil {
		writeRepoError(w, err, "stages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": stages,
		"count":  len(stages),
	})
}

// CreateStage stores an execution stage.
func (h *Handler) CreateStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stage := domain.ExecutionStage{IsEnabled: true}
	if !decodeBody(w, r, &stage) {
		return
	}
	if stage.ID == "" || stage.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}

	if err := h.repo.SaveStage(ctx, GetTenantID(ctx), &stage); err != nil {
		writeRepoError(w, err, "stage")
		return
	}
	writeJSON(w, http.StatusCreated, stage)
}

// ToggleStage flips a stage between enabled and disabled.
func (h *Handler) ToggleStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	stageID := chi.URLParam(r, "id")

	stages, err := h.repo.ListStages(ctx, tenantID, false)
	if err != nil {
		writeRepoError(w, err, "stage")
		return
	}
	for _, stage := range stages {
		if stage.ID != stageID {
			continue
		}
		if err := h.repo.SetStageEnabled(ctx, tenantID, stageID, !stage.IsEnabled); err != nil {
			writeRepoError(w, err, "stage")
			return
		}
		writeToggled(w, stageID, !stage.IsEnabled)
		return
	}
	writeError(w, http.StatusNotFound, "stage not found")
}

// ListRiskBands returns the tenant's risk bands.
func (h *Handler) ListRiskBands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bands, err := h.repo.ListRiskBands(ctx, GetTenantID(ctx), r.URL.Query().Get("enabled") == "true")
	if err != nil {
		writeRepoError(w, err, "risk bands")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"risk_bands": bands,
		"count":      len(bands),
	})
}

// CreateRiskBand validates and stores a risk band.
func (h *Handler) CreateRiskBand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	band := domain.RiskBand{IsEnabled: true}
	if !decodeBody(w, r, &band) {
		return
	}
	if err := h.evaluator.ValidateRiskBand(&band); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.SaveRiskBand(ctx, GetTenantID(ctx), &band); err != nil {
		writeRepoError(w, err, "risk band")
		return
	}
	writeJSON(w, http.StatusCreated, band)
}

// ToggleRiskBand flips a risk band between enabled and disabled.
func (h *Handler) ToggleRiskBand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	bandID := chi.URLParam(r, "id")

	bands, err := h.repo.ListRiskBands(ctx, tenantID, false)
	if err != nil {
		writeRepoError(w, err, "risk band")
		return
	}
	for _, band := range bands {
		if band.ID != bandID {
			continue
		}
		if err := h.repo.SetRiskBandEnabled(ctx, tenantID, bandID, !band.IsEnabled); err != nil {
			writeRepoError(w, err, "risk band")
			return
		}
		writeToggled(w, bandID, !band.IsEnabled)
		return
	}
	writeError(w, http.StatusNotFound, "risk band not found")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func writeToggled(w http.ResponseWriter, id string, enabled bool) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         id,
		"is_enabled": enabled,
	})
}

// writeRepoError maps repository sentinels onto HTTP status codes.
func writeRepoError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository call failed", "resource", what, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load %s", what))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
