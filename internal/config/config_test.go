package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "underwriter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	want := domain.DefaultConfig()
	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, time.Hour, cfg.Engine.ResultTTL)
	assert.Len(t, cfg.Engine.DerivedFields, len(want.Engine.DerivedFields))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  rate_limit: 5
repository:
  sqlite_path: /tmp/uw.db
engine:
  result_ttl: 10m
  derived_fields:
    - name: age_band
      expression: "applicant_age / 10"
worker:
  enabled: true
  tenant_ids: [tenant-a, tenant-b]
logging:
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 100, cfg.Server.RateBurst, "unset keys keep their defaults")
	assert.Equal(t, "/tmp/uw.db", cfg.Repository.SQLitePath)
	assert.Equal(t, 10*time.Minute, cfg.Engine.ResultTTL)
	require.Len(t, cfg.Engine.DerivedFields, 1)
	assert.Equal(t, "age_band", cfg.Engine.DerivedFields[0].Name)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, cfg.Worker.TenantIDs)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("UNDERWRITER_SERVER_PORT", "7070")
	t.Setenv("UNDERWRITER_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "environment wins over file")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestProTier(t *testing.T) {
	t.Setenv("UNDERWRITER_TIER", "pro")
	t.Setenv("UNDERWRITER_CACHE_BREAKER_THRESHOLD", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, uint32(3), cfg.Cache.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Cache.BreakerTimeout)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Worker.Enabled)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("MalformedFile", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		_, err := Load(writeConfig(t, "repository:\n  driver: oracle\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repository.driver")
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(domain.DefaultConfig()))
	assert.NoError(t, Validate(domain.ProConfig()))

	cfg := domain.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Cache.Type = "memcached"
	cfg.EventBus.Type = "kafka"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "cache.type")
	assert.Contains(t, err.Error(), "event_bus.type")
}
