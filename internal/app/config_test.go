package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetForTest clears key for the duration of the test, restoring it afterwards.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "STORE_DRIVER", "RATE_LIMIT", "STOCK_SCAN_CRON", "NOTIFY_DISPATCH"} {
		unsetForTest(t, key)
	}
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 60, cfg.RateLimit)
	assert.Equal(t, "0 6 * * *", cfg.StockScanCron)
	assert.Equal(t, 720*time.Hour, cfg.AlertStateTTL)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.UsesRedis())
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	for _, key := range []string{"JWT_SECRET", "STORE_DRIVER", "REDIS_ADDR"} {
		unsetForTest(t, key)
	}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nSTORE_DRIVER=redis\nREDIS_ADDR=cache:6379\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, "cache:6379", cfg.AsynqOpts().Addr)
	assert.True(t, cfg.UsesRedis())
}

func TestLoadConfigEnvironmentWinsOverDotEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	unsetForTest(t, "JWT_SECRET")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := Config{JWTSecret: "secret", StoreDriver: StoreMemory, RateLimit: 10}
	require.NoError(t, base.Validate())

	unknown := base
	unknown.StoreDriver = "sqlite"
	require.Error(t, unknown.Validate())

	prod := base
	prod.AppEnv = "production"
	require.Error(t, prod.Validate())
	prod.JWTSecret = "0123456789abcdef0123456789abcdef"
	require.NoError(t, prod.Validate())

	limit := base
	limit.RateLimit = 0
	require.Error(t, limit.Validate())
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
