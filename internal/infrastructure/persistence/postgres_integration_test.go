//go:build integration

package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// setupPostgres starts a postgres container, applies the migrations and
// returns the connected database
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		User:            "postgres",
		Password:        "postgres",
		DBName:          "stockledger_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	migrator, err := migration.New(sqlDB, "", nil)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())

	status, err := migrator.Status()
	require.NoError(t, err)
	require.True(t, status.Applied)
	require.False(t, status.Dirty)

	return db.DB
}

func TestPostgres_RowLocksSerializeConcurrentMoves(t *testing.T) {
	ctx := context.Background()
	db := setupPostgres(t)
	scope := NewGormTransactionScope(db)

	// no service locker: the row locks alone must keep the quantities consistent
	settings := appstock.Settings{MaxAttempts: 5}
	receiveLot(t, appstock.NewReceiptService(scope, settings), "P", "V1", "10.00", "5.00", day(0))
	coordinator := appstock.NewTransferCoordinator(scope, settings)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.Move(ctx, appstock.MoveRequest{
				ScanCode:    "V1",
				Amount:      dec("1.00"),
				Destination: stock.Destination{Kind: stock.DestinationSales, SaleRef: "SO-1"},
			})
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, err := range failures {
		assert.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	}
	assert.Len(t, failures, 2)

	v, err := NewGormVariantRepository(db).FindByScanCode(ctx, "V1")
	require.NoError(t, err)
	assertDecimal(t, "0.00", v.AvailableQty)
	assertDecimal(t, "10.00", v.UsingQty)

	part, err := NewGormPartRepository(db).FindByPartNo(ctx, "P")
	require.NoError(t, err)
	assertDecimal(t, "0.00", part.Totals().Available)
	assertDecimal(t, "10.00", part.Totals().Using)
}

func TestPostgres_CheckConstraintsRejectNegativeBuckets(t *testing.T) {
	ctx := context.Background()
	db := setupPostgres(t)

	part := newTestPart(t, "P")
	require.NoError(t, NewGormPartRepository(db).Create(ctx, part))
	v := newTestVariant(part.ID, "V1", "1.00", "1.00", day(0))
	require.NoError(t, NewGormVariantRepository(db).Create(ctx, v))

	err := db.Exec("UPDATE stock_variants SET available_qty = -1 WHERE id = ?", v.ID).Error
	require.Error(t, err)
}
