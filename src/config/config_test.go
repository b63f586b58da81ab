package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "PLAID_CLIENT_ID", "PLAID_SECRET", "PLAID_ENV", "DEMO_API_KEY", "FAKE_PLAID", "DATABASE_URL", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	t.Setenv("PLAID_ENV", "sandbox")
	t.Setenv("FAKE_PLAID", "false")
	t.Setenv("PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.True(t, cfg.Sandbox())
	assert.False(t, cfg.FakePlaid)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Len(t, cfg.Warnings(), 3)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PLAID_ENV", "Production")
	t.Setenv("FAKE_PLAID", "true")
	t.Setenv("DEMO_API_KEY", "demo")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.PlaidEnv)
	assert.False(t, cfg.Sandbox())
	assert.True(t, cfg.FakePlaid)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.Warnings())
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("PLAID_ENV", "staging")
	_, err := Load()
	assert.ErrorContains(t, err, "PLAID_ENV")

	t.Setenv("PLAID_ENV", "sandbox")
	t.Setenv("FAKE_PLAID", "maybe")
	_, err = Load()
	assert.ErrorContains(t, err, "FAKE_PLAID")
}
