package stock

import (
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}

func createTestVariant(partID uuid.UUID, scanCode, available, price string, received time.Time) Variant {
	return Variant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartID:            partID,
		ScanCode:          scanCode,
		UnitPrice:         dec(price),
		AvailableQty:      dec(available),
		PendingTestingQty: decimal.Zero,
		UsingQty:          decimal.Zero,
		ReceivedDate:      received,
		TestingStatus:     TestingCompleted,
	}
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}
