package stock

import (
	"context"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/shopspring/decimal"
)

// Movement describes one ledger entry to append.
type Movement struct {
	Direction   stock.Direction
	Bucket      stock.Bucket
	Amount      decimal.Decimal
	Reference   stock.ReferenceType
	ReferenceID string
	Reason      string
}

// MovementLedger appends audit entries for variant quantity changes. Entries
// are never updated or deleted; a compensated change gets a reversing entry.
type MovementLedger struct {
	observer Observer
}

// NewMovementLedger creates a ledger that reports appended entries to observer
func NewMovementLedger(observer Observer) *MovementLedger {
	if observer == nil {
		observer = nopObserver{}
	}
	return &MovementLedger{observer: observer}
}

// Record appends an entry for v. v must already carry the change so that the
// remaining balance is the available quantity after the move.
func (l *MovementLedger) Record(ctx context.Context, movements stock.MovementRepository, v *stock.Variant, m Movement) (*stock.MovementEntry, error) {
	entry, err := stock.NewMovementEntry(v, m.Direction, m.Bucket, m.Amount, m.Reference)
	if err != nil {
		return nil, err
	}
	entry.WithReference(m.ReferenceID).WithReason(m.Reason)

	if err := movements.Append(ctx, entry); err != nil {
		return nil, err
	}
	l.observer.MovementRecorded(ctx, entry)
	return entry, nil
}
