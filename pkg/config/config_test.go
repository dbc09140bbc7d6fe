package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"BOT_TOKEN", "ADMIN_ID", "LOG_LEVEL", "LOG_FORMAT",
	"CACHE_TTL", "REQUEST_TIMEOUT", "CONFIRM_TIMEOUT",
	"DATA_DISK_PATH", "SHELLY_URL", "ENERGY_COST",
	"QBIT_URL", "QBIT_USER", "QBIT_PASS",
	"FEATURE_DOCKER", "FEATURE_QBIT", "REDIS_URL", "HTTP_ADDR",
}

// clearEnv blanks every key the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(missingFile(t))
		require.NoError(t, err)

		assert.Equal(t, 5*time.Second, cfg.CacheTTL)
		assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
		assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
		assert.Equal(t, "/var/run/docker.sock", cfg.DockerSocket)
		assert.True(t, cfg.Features.Docker)
		assert.False(t, cfg.Features.Power, "power is off without SHELLY_URL")
		assert.False(t, cfg.Features.Qbit, "qbit is off without QBIT_URL")
	})

	t.Run("from environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BOT_TOKEN", "123:abc")
		t.Setenv("ADMIN_ID", "424242")
		t.Setenv("CACHE_TTL", "10")
		t.Setenv("REQUEST_TIMEOUT", "1500ms")
		t.Setenv("SHELLY_URL", "http://10.0.0.20")
		t.Setenv("ENERGY_COST", "0.31")
		t.Setenv("QBIT_URL", "http://localhost:8080")
		t.Setenv("FEATURE_DOCKER", "false")

		cfg, err := Load(missingFile(t))
		require.NoError(t, err)

		assert.Equal(t, "123:abc", cfg.BotToken)
		assert.Equal(t, int64(424242), cfg.AdminID)
		assert.Equal(t, 10*time.Second, cfg.CacheTTL)
		assert.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
		assert.Equal(t, "http://10.0.0.20", cfg.ShellyURL)
		assert.InDelta(t, 0.31, cfg.EnergyCost, 1e-9)
		assert.True(t, cfg.Features.Power)
		assert.True(t, cfg.Features.Qbit)
		assert.False(t, cfg.Features.Docker)
		require.NoError(t, cfg.Validate())
	})

	t.Run("env file with environment override", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), ".env")
		content := "BOT_TOKEN=from-file\nADMIN_ID=1001\nDATA_DISK_PATH=/srv/data\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Setenv("ADMIN_ID", "2002")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "from-file", cfg.BotToken)
		assert.Equal(t, int64(2002), cfg.AdminID, "environment wins over the file")
		assert.Equal(t, "/srv/data", cfg.DataDiskPath)
	})

	t.Run("invalid admin id", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADMIN_ID", "not-a-number")

		_, err := Load(missingFile(t))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "ADMIN_ID", cfgErr.Field)
	})

	t.Run("invalid duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CACHE_TTL", "soon")

		_, err := Load(missingFile(t))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("missing admin fails fast", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BotToken = "token"

		err := cfg.Validate()
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "ADMIN_ID", cfgErr.Field)
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AdminID = 1

		assert.Error(t, cfg.Validate())
	})

	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BotToken = "token"
		cfg.AdminID = 1

		assert.NoError(t, cfg.Validate())
	})

	t.Run("torrent toggle without endpoint loads and validates", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BOT_TOKEN", "token")
		t.Setenv("ADMIN_ID", "7")
		t.Setenv("FEATURE_QBIT", "true")

		cfg, err := Load(missingFile(t))
		require.NoError(t, err)
		assert.False(t, cfg.Features.Qbit, "the loader turns qbit off without QBIT_URL")
		assert.NoError(t, cfg.Validate())
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"5", 5 * time.Second, false},
		{"0.5", 500 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{" 3s ", 3 * time.Second, false},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := parseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}
