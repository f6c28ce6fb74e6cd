package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "public", cfg.DefaultNamespace)
	assert.Equal(t, 5*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 20*time.Second, cfg.SessionIdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.SessionGraceTimeout)
	assert.NotEmpty(t, cfg.RootUsername)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("BATATA_DEFAULT_NAMESPACE", "team-a")
	t.Setenv("BATATA_TOKEN_TTL", "1h")
	t.Setenv("BATATA_HTTP_ADDR", "127.0.0.1:18848")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "team-a", cfg.DefaultNamespace)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, "127.0.0.1:18848", cfg.HTTPAddr)
}

func TestLoadRejectsEmptyRootCredentials(t *testing.T) {
	t.Setenv("BATATA_ROOT_USERNAME", "")
	t.Setenv("BATATA_ROOT_PASSWORD", "")
	_, err := Load()
	require.Error(t, err)
}
