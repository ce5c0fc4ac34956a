package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "stockledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "stockledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, "half_up", cfg.Stock.RoundingMode)
		assert.Equal(t, 2, cfg.Stock.MaxAttempts)
		assert.Equal(t, 10*time.Second, cfg.Stock.LockTTL)
		assert.Equal(t, 50, cfg.Stock.LockRetryCount)
		assert.Equal(t, 100*time.Millisecond, cfg.Stock.LockRetryDelay)
		assert.False(t, cfg.Reconcile.Enabled)
		assert.Equal(t, 2, cfg.Reconcile.Workers)
		assert.Equal(t, time.Minute, cfg.Reconcile.CheckInterval)
	})

	t.Run("loads values from environment variables with STOCKLEDGER prefix", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_APP_PORT", "9000")
		t.Setenv("STOCKLEDGER_DATABASE_HOST", "testdb.local")
		t.Setenv("STOCKLEDGER_DATABASE_PORT", "5433")
		t.Setenv("STOCKLEDGER_REDIS_ENABLED", "true")
		t.Setenv("STOCKLEDGER_REDIS_HOST", "cache.local")
		t.Setenv("STOCKLEDGER_STOCK_ROUNDING_MODE", "bank")
		t.Setenv("STOCKLEDGER_STOCK_MAX_ATTEMPTS", "4")
		t.Setenv("STOCKLEDGER_STOCK_LOCK_TTL", "3s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "cache.local:6379", cfg.Redis.Addr())
		assert.Equal(t, "bank", cfg.Stock.RoundingMode)
		assert.Equal(t, 4, cfg.Stock.MaxAttempts)
		assert.Equal(t, 3*time.Second, cfg.Stock.LockTTL)
	})

	t.Run("sqlite driver uses the file path as DSN", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_DATABASE_DRIVER", "sqlite")
		t.Setenv("STOCKLEDGER_DATABASE_PATH", ":memory:")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":memory:", cfg.Database.DSN())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects unknown rounding mode", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_STOCK_ROUNDING_MODE", "truncate")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stock.rounding_mode")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("STOCKLEDGER_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects a sweep time outside the day", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_RECONCILE_HOUR", "24")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconcile.hour")
	})

	t.Run("rejects a sampling ratio above one", func(t *testing.T) {
		t.Setenv("STOCKLEDGER_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("STOCKLEDGER_APP_ENV", "production")
		t.Setenv("STOCKLEDGER_DATABASE_PASSWORD", "secure-password")
		t.Setenv("STOCKLEDGER_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKLEDGER_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKLEDGER_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("refuses sqlite in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKLEDGER_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite")
	})

	t.Run("refuses full SQL tracing in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKLEDGER_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
