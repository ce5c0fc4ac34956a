package persistence

import (
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestPart(t *testing.T, partNo string) *stock.Part {
	t.Helper()
	p, err := stock.NewPart(partNo, "Part "+partNo)
	require.NoError(t, err)
	return p
}

func newTestVariant(partID uuid.UUID, scanCode, available, price string, received time.Time) *stock.Variant {
	return &stock.Variant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartID:            partID,
		ScanCode:          scanCode,
		UnitPrice:         dec(price),
		AvailableQty:      dec(available),
		PendingTestingQty: decimal.Zero,
		UsingQty:          decimal.Zero,
		ReceivedDate:      received,
		TestingStatus:     stock.TestingCompleted,
	}
}
