package persistence

import (
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver)
	require.NoError(t, db.Ping())
	require.NoError(t, db.AutoMigrate())

	for _, table := range []string{"stock_parts", "stock_variants", "stock_movements", "stock_production_items", "stock_sale_items", "bmr_template_lines", "bmr_contributions"} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestNewDatabase_UnreachablePostgres(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{
		Driver:  "postgres",
		Host:    "127.0.0.1",
		Port:    1,
		User:    "stock",
		DBName:  "stock",
		SSLMode: "disable",
	})
	assert.Error(t, err)
}
