package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const smokerProposal = `{
  "proposal_id": "P-CLI",
  "product_type": "term_life",
  "applicant_age": 40,
  "applicant_income": 1500000,
  "sum_assured": 6000000,
  "premium": 25000,
  "is_smoker": true,
  "bmi": 32
}`

func TestEvaluateCommand(t *testing.T) {
	t.Run("DefaultPack", func(t *testing.T) {
		out, err := run(t, "", "evaluate", "--proposal", writeFile(t, "p.json", smokerProposal))
		require.NoError(t, err)

		var result domain.EvaluationResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, domain.DecisionFail, result.STPDecision)
		assert.Contains(t, result.ReasonCodes, "STP002")
		assert.Equal(t, 37500.0, result.RiskLoading.LoadedPremium)
	})

	t.Run("Stdin", func(t *testing.T) {
		out, err := run(t, smokerProposal, "evaluate", "--proposal", "-")
		require.NoError(t, err)
		assert.Contains(t, out, `"proposal_id": "P-CLI"`)
	})

	t.Run("CustomPack", func(t *testing.T) {
		pack := writeFile(t, "pack.yaml", `
name: empty
stages: []
rules: []
risk_bands: []
`)
		out, err := run(t, "", "evaluate", "--proposal", writeFile(t, "p.json", smokerProposal), "--pack", pack)
		require.NoError(t, err)

		var result domain.EvaluationResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, domain.DecisionPass, result.STPDecision)
	})

	t.Run("InvalidProposal", func(t *testing.T) {
		_, err := run(t, `{"proposal_id": "P-X", "product_type": "annuity"}`, "evaluate", "--proposal", "-")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidProposal)
	})

	t.Run("MissingFlag", func(t *testing.T) {
		_, err := run(t, "", "evaluate")
		assert.Error(t, err)
	})
}

func TestSeedCommand(t *testing.T) {
	t.Setenv("UNDERWRITER_REPOSITORY_SQLITE_PATH", filepath.Join(t.TempDir(), "seed.db"))

	out, err := run(t, "", "seed", "--tenant", "tenant-cli")
	require.NoError(t, err)

	var summary struct {
		Stages    int `json:"stages"`
		Rules     int `json:"rules"`
		RiskBands int `json:"risk_bands"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 4, summary.Stages)
	assert.Equal(t, 10, summary.Rules)
	assert.Equal(t, 5, summary.RiskBands)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "underwriter dev")
}

func TestBadConfig(t *testing.T) {
	_, err := run(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.Error(t, err)

	_, err = run(t, "", "--log-level", "loud", "version")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(domain.LoggingConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "tenant_id", "t1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "tenant_id=t1")
}
