package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DMXX_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	cfg := Load()
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 44, cfg.FrameRateHz)
	assert.Equal(t, 20, cfg.MinFrameRateHz)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.NotEmpty(t, cfg.Password)
	assert.NotEmpty(t, cfg.SecretKey)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"password": "house-pass",
		"secret_key": "house-secret",
		"ip_whitelist": ["192.168.1.*"],
		"host": "127.0.0.1",
		"port": 9000
	}`), 0644))
	t.Setenv("DMXX_CONFIG", path)

	cfg := Load()
	assert.Equal(t, "house-pass", cfg.Password)
	assert.Equal(t, "house-secret", cfg.SecretKey)
	assert.Equal(t, []string{"192.168.1.*"}, cfg.IPWhitelist)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"host": "127.0.0.1", "port": 9000}`), 0644))
	t.Setenv("DMXX_CONFIG", path)
	t.Setenv("DMXX_HOST", "10.0.0.5")
	t.Setenv("DMXX_PORT", "8123")

	cfg := Load()
	assert.Equal(t, "10.0.0.5:8123", cfg.Addr())
}

func TestFrameRateFloor(t *testing.T) {
	t.Setenv("DMXX_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("DMX_FRAME_RATE", "5")

	cfg := Load()
	assert.Equal(t, cfg.MinFrameRateHz, cfg.FrameRateHz)
}

func TestTuningFromEnv(t *testing.T) {
	t.Setenv("DMXX_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("WS_WRITE_DEADLINE_MS", "1500")
	t.Setenv("TRANSITION_RATE", "80")

	cfg := Load()
	assert.Equal(t, 1500*time.Millisecond, cfg.WriteDeadline)
	assert.Equal(t, 80, cfg.TransitionRateHz)
}

func TestBrokenConfigFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	t.Setenv("DMXX_CONFIG", path)

	cfg := Load()
	assert.Equal(t, 8000, cfg.Port)
}
