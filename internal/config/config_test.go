package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hidro")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 30, cfg.WindowDays)
	assert.Equal(t, time.Second, cfg.RequestDelay)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.False(t, cfg.CircuitBreaker)
	assert.Empty(t, cfg.Stations)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DRY_RUN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDryRunFallsBackToMemory(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "memory://", cfg.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://hidro.db")
	t.Setenv("HIDRO_BASE_URL", "http://localhost:9000/")
	t.Setenv("HIDRO_IDENTIFICADOR", "user")
	t.Setenv("HIDRO_SENHA", "pass")
	t.Setenv("SYNC_WINDOW_DAYS", "7")
	t.Setenv("SYNC_REQUEST_DELAY", "250ms")
	t.Setenv("SYNC_STATIONS", "75650010, 12345678,,")
	t.Setenv("HIDRO_CIRCUIT_BREAKER", "true")
	t.Setenv("API_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
	assert.Equal(t, "user", cfg.Identifier)
	assert.Equal(t, "pass", cfg.Secret)
	assert.Equal(t, 7, cfg.WindowDays)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, []string{"75650010", "12345678"}, cfg.Stations)
	assert.True(t, cfg.CircuitBreaker)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SYNC_WINDOW_DAYS":      "0",
		"SYNC_REQUEST_DELAY":    "soon",
		"HIDRO_REQUEST_TIMEOUT": "-1s",
		"HIDRO_CIRCUIT_BREAKER": "maybe",
		"PORT":                  "http",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/hidro")
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
