package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction of a movement relative to raw stock.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ReferenceType names the business reason behind a movement.
type ReferenceType string

const (
	RefManual           ReferenceType = "manual"
	RefProduction       ReferenceType = "production"
	RefProductionReturn ReferenceType = "production-return"
	RefSales            ReferenceType = "sales"
	RefSalesReturn      ReferenceType = "sales-return"
	RefBMRProcessing    ReferenceType = "bmr-processing"
	RefBMRReturn        ReferenceType = "bmr-return"
	RefManualUpdate     ReferenceType = "manual-update"
	RefTesting          ReferenceType = "testing"
)

// IsValid checks if the reference type is valid
func (r ReferenceType) IsValid() bool {
	switch r {
	case RefManual, RefProduction, RefProductionReturn, RefSales, RefSalesReturn,
		RefBMRProcessing, RefBMRReturn, RefManualUpdate, RefTesting:
		return true
	}
	return false
}

// MovementEntry is an immutable ledger row recording one quantity change of a variant.
type MovementEntry struct {
	ID               uuid.UUID
	VariantID        uuid.UUID
	PartID           uuid.UUID
	Direction        Direction
	Bucket           Bucket
	Amount           decimal.Decimal
	RemainingBalance decimal.Decimal
	ReferenceType    ReferenceType
	ReferenceID      string
	Reason           string
	CreatedAt        time.Time
}

// NewMovementEntry records a change of amount in bucket b of variant v. The
// remaining balance is the variant's available quantity after the change, so
// the entry must be built after the variant was mutated.
func NewMovementEntry(v *Variant, dir Direction, b Bucket, amount decimal.Decimal, ref ReferenceType) (*MovementEntry, error) {
	if v == nil {
		return nil, NewValidationError("variant is required for a movement entry")
	}
	if dir != DirectionIn && dir != DirectionOut {
		return nil, NewValidationError("invalid movement direction " + string(dir))
	}
	if !b.IsValid() {
		return nil, NewValidationError("invalid bucket " + string(b))
	}
	if !ref.IsValid() {
		return nil, NewValidationError("invalid reference type " + string(ref))
	}
	amount, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	return &MovementEntry{
		ID:               uuid.New(),
		VariantID:        v.ID,
		PartID:           v.PartID,
		Direction:        dir,
		Bucket:           b,
		Amount:           amount,
		RemainingBalance: v.AvailableQty,
		ReferenceType:    ref,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// NewMovementFromDelta turns a signed bucket delta into a ledger entry.
func NewMovementFromDelta(v *Variant, d BucketDelta, ref ReferenceType) (*MovementEntry, error) {
	dir := DirectionIn
	if d.Delta.IsNegative() {
		dir = DirectionOut
	}
	return NewMovementEntry(v, dir, d.Bucket, d.Delta.Abs(), ref)
}

// WithReference sets the destination or document the movement refers to
func (m *MovementEntry) WithReference(id string) *MovementEntry {
	m.ReferenceID = id
	return m
}

// WithReason sets a free-form reason
func (m *MovementEntry) WithReason(reason string) *MovementEntry {
	m.Reason = reason
	return m
}

// Reversal builds the entry that cancels m, used when a non-transactional unit
// of work is compensated. The ledger itself is never rewritten.
func (m *MovementEntry) Reversal(v *Variant) *MovementEntry {
	dir := DirectionIn
	if m.Direction == DirectionIn {
		dir = DirectionOut
	}
	return &MovementEntry{
		ID:               uuid.New(),
		VariantID:        m.VariantID,
		PartID:           m.PartID,
		Direction:        dir,
		Bucket:           m.Bucket,
		Amount:           m.Amount,
		RemainingBalance: v.AvailableQty,
		ReferenceType:    m.ReferenceType,
		ReferenceID:      m.ReferenceID,
		Reason:           "compensation of " + m.ID.String(),
		CreatedAt:        time.Now().UTC(),
	}
}

// SignedAmount returns the amount with its sign (+ in, - out)
func (m *MovementEntry) SignedAmount() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Amount.Neg()
	}
	return m.Amount
}
