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

	assert.Equal(t, "http://localhost:8080/api/v1", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:8080/api/v1/ws", cfg.WSBaseURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, "8080", cfg.Stub.Port)
	assert.True(t, cfg.Stub.Typing)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QUENTO_API_URL", "https://api.quento.example/api/v1")
	t.Setenv("QUENTO_POLL_INTERVAL", "500ms")
	t.Setenv("QUENTO_PAGE_SIZE", "50")
	t.Setenv("QUENTO_STUB_TYPING", "off")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.quento.example/api/v1", cfg.APIBaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 50, cfg.PageSize)
	assert.False(t, cfg.Stub.Typing)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("QUENTO_POLL_INTERVAL", "soon")
	t.Setenv("QUENTO_PAGE_SIZE", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 20, cfg.PageSize)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.APIBaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg, _ = Load()
	cfg.PollInterval = 0
	assert.Error(t, cfg.Validate())
}
