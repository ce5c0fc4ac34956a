package stock

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
)

// Observer receives notifications about stock operations, typically to record metrics.
type Observer interface {
	// MovementRecorded is called for every ledger entry appended
	MovementRecorded(ctx context.Context, entry *stock.MovementEntry)
	// OperationFinished is called once per service operation with its outcome
	OperationFinished(ctx context.Context, operation string, elapsed time.Duration, err error)
	// Compensated is called when a failed unit of work was undone or reconciled
	Compensated(ctx context.Context, operation string, err error)
}

type nopObserver struct{}

func (nopObserver) MovementRecorded(context.Context, *stock.MovementEntry) {}
func (nopObserver) OperationFinished(context.Context, string, time.Duration, error) {}
func (nopObserver) Compensated(context.Context, string, error) {}
