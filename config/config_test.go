package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "confirmed", cfg.Ledger.Commitment)
	assert.Equal(t, UnavailableSkip, cfg.Oracle.UnavailablePolicy)
	assert.Equal(t, 10, cfg.Relay.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.Relay.RateLimitWindow)
	assert.Equal(t, time.Hour, cfg.Oracle.VerificationInterval)
	assert.False(t, cfg.Archive.ArchiveEnabled())
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pact-oracle.toml")
	err := os.WriteFile(path, []byte(`
port = 4000
database_url = "sqlite://from-file.db"

[indexer]
refresh_interval = "2m"
participants_interval = "30s"

[oracle]
unavailable_policy = "eliminate"
settlement_at = "23:59"
`), 0o600)
	require.NoError(t, err)

	t.Setenv("PORT", "5000")
	t.Setenv("APP_VAULT_PRIVATE_KEY", "secret")
	t.Setenv("RELAY_RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port, "env wins over file")
	assert.Equal(t, "sqlite://from-file.db", cfg.DatabaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Indexer.RefreshInterval)
	assert.Equal(t, 30*time.Second, cfg.Indexer.ParticipantsInterval)
	assert.Equal(t, 30*time.Second, cfg.Relay.RateLimitWindow)
	assert.Equal(t, UnavailableEliminate, cfg.Oracle.UnavailablePolicy)
	assert.Equal(t, "secret", cfg.Ledger.SponsorKey)

	h, m, err := cfg.Oracle.SettlementClock()
	require.NoError(t, err)
	assert.Equal(t, uint(23), h)
	assert.Equal(t, uint(59), m)

	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.DatabaseURL = "postgres://localhost/pacts"
		cfg.Ledger.SponsorKey = "secret"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }},
		{"missing sponsor", func(c *Config) { c.Ledger.SponsorKey = "" }},
		{"bad commitment", func(c *Config) { c.Ledger.Commitment = "processed" }},
		{"bad policy", func(c *Config) { c.Oracle.UnavailablePolicy = "maybe" }},
		{"zero rate limit", func(c *Config) { c.Relay.RateLimitMax = 0 }},
		{"bad settlement clock", func(c *Config) { c.Oracle.SettlementAt = "25:00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
