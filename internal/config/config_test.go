package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medturn/portal/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 4*time.Second, cfg.SnackbarAutoDismiss)
	assert.Zero(t, cfg.FakeLatency)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORTAL_LOG_LEVEL", "debug")
	t.Setenv("PORTAL_LOG_FORMAT", "json")
	t.Setenv("PORTAL_SNACKBAR_TIMEOUT", "250ms")
	t.Setenv("PORTAL_FAKE_LATENCY", "10ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.SnackbarAutoDismiss)
	assert.Equal(t, 10*time.Millisecond, cfg.FakeLatency)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("PORTAL_SNACKBAR_TIMEOUT", "pronto")

	_, err := config.Load()
	assert.Error(t, err)
}
