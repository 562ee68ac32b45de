// Package seed loads rule packs: YAML bundles of stages, rules, and risk
// bands that can be written to a repository or evaluated offline.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
)

//go:embed default_pack.yaml
var defaultPack []byte

// Pack is a complete tenant configuration.
type Pack struct {
	Name        string                   `yaml:"name"`
	Description string                   `yaml:"description,omitempty"`
	Stages      []*domain.ExecutionStage `yaml:"stages"`
	Rules       []*domain.DecisionRule   `yaml:"rules"`
	RiskBands   []*domain.RiskBand       `yaml:"risk_bands"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Stages    int `json:"stages"`
	Rules     int `json:"rules"`
	RiskBands int `json:"risk_bands"`
}

// Load decodes and validates a pack.
func Load(r io.Reader) (*Pack, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pack Pack
	if err := dec.Decode(&pack); err != nil {
		return nil, fmt.Errorf("failed to decode rule pack: %w", err)
	}
	if err := pack.Validate(rules.NewEvaluator()); err != nil {
		return nil, err
	}
	return &pack, nil
}

// LoadFile reads a pack from disk.
func LoadFile(path string) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule pack: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the embedded baseline pack.
func Default() *Pack {
	pack, err := Load(bytes.NewReader(defaultPack))
	if err != nil {
		panic(fmt.Sprintf("embedded rule pack is invalid: %v", err))
	}
	return pack
}

// Validate checks ids are unique and every rule and band is well formed.
// A rule naming an unknown stage is allowed; it runs in the unassigned stage.
func (p *Pack) Validate(ev *rules.Evaluator) error {
	var errs []error

	stages := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		switch {
		case s.ID == "":
			errs = append(errs, errors.New("stage without id"))
		case s.ID == domain.UnassignedStageID:
			errs = append(errs, fmt.Errorf("stage id %q is reserved", s.ID))
		case stages[s.ID]:
			errs = append(errs, fmt.Errorf("duplicate stage %q", s.ID))
		}
		stages[s.ID] = true
	}

	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if err := ev.ValidateRule(r); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.ID, err))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate rule %q", r.ID))
		}
		seen[r.ID] = true
		if r.StageID != "" && !stages[r.StageID] {
			slog.Warn("rule references unknown stage", "rule_id", r.ID, "stage_id", r.StageID)
		}
	}

	bands := make(map[string]bool, len(p.RiskBands))
	for _, b := range p.RiskBands {
		if err := ev.ValidateRiskBand(b); err != nil {
			errs = append(errs, fmt.Errorf("risk band %q: %w", b.ID, err))
			continue
		}
		if bands[b.ID] {
			errs = append(errs, fmt.Errorf("duplicate risk band %q", b.ID))
		}
		bands[b.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rule pack %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

// Apply writes every stage, band, and rule of the pack for tenantID.
// Existing entries with the same id are updated.
func Apply(ctx context.Context, repo domain.Repository, tenantID string, pack *Pack) (Summary, error) {
	var sum Summary

	for _, s := range pack.Stages {
		stage := *s
		if err := repo.SaveStage(ctx, tenantID, &stage); err != nil {
			return sum, fmt.Errorf("failed to save stage %s: %w", s.ID, err)
		}
		sum.Stages++
	}
	for _, b := range pack.RiskBands {
		band := *b
		if err := repo.SaveRiskBand(ctx, tenantID, &band); err != nil {
			return sum, fmt.Errorf("failed to save risk band %s: %w", b.ID, err)
		}
		sum.RiskBands++
	}
	for _, r := range pack.Rules {
		rule := *r
		if err := repo.SaveRule(ctx, tenantID, &rule); err != nil {
			return sum, fmt.Errorf("failed to save rule %s: %w", r.ID, err)
		}
		sum.Rules++
	}

	slog.Info("rule pack applied",
		"pack", pack.Name,
		"tenant_id", tenantID,
		"stages", sum.Stages,
		"rules", sum.Rules,
		"risk_bands", sum.RiskBands,
	)
	return sum, nil
}

// Snapshot returns the enabled part of the pack, as LoadSnapshot would after Apply.
func (p *Pack) Snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Rules:     []*domain.DecisionRule{},
		Stages:    []*domain.ExecutionStage{},
		RiskBands: []*domain.RiskBand{},
	}
	for _, s := range p.Stages {
		if s.IsEnabled {
			snap.Stages = append(snap.Stages, s)
		}
	}
	for _, r := range p.Rules {
		if r.IsEnabled {
			snap.Rules = append(snap.Rules, r)
		}
	}
	for _, b := range p.RiskBands {
		if b.IsEnabled {
			snap.RiskBands = append(snap.RiskBands, b)
		}
	}
	return snap
}
