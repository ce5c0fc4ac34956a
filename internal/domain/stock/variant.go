package stock

import (
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bucket is one of the three mutually exclusive quantity states of a variant.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketUsing     Bucket = "using"
	BucketPending   Bucket = "pending"
)

// IsValid checks if the bucket is one of the known buckets
func (b Bucket) IsValid() bool {
	switch b {
	case BucketAvailable, BucketUsing, BucketPending:
		return true
	}
	return false
}

// TestingStatus tracks quality testing of a received lot.
type TestingStatus string

const (
	TestingPending   TestingStatus = "pending"
	TestingCompleted TestingStatus = "completed"
	TestingRejected  TestingStatus = "rejected"
)

// IsValid checks if the testing status is valid
func (s TestingStatus) IsValid() bool {
	switch s {
	case TestingPending, TestingCompleted, TestingRejected:
		return true
	}
	return false
}

// Variant is a received lot of a part, identified by a unique scan code.
// Quantities live in three buckets, none of which may go negative.
type Variant struct {
	shared.BaseAggregateRoot
	PartID            uuid.UUID
	ScanCode          string
	LotNo             string
	SerialNo          string
	UnitPrice         decimal.Decimal
	AvailableQty      decimal.Decimal
	PendingTestingQty decimal.Decimal
	UsingQty          decimal.Decimal
	ReceivedDate      time.Time
	TestingStatus     TestingStatus
}

// ReceiptInfo carries lot attributes captured when stock is received.
type ReceiptInfo struct {
	ScanCode        string
	LotNo           string
	SerialNo        string
	UnitPrice       decimal.Decimal
	Quantity        decimal.Decimal
	RequiresTesting bool
	ReceivedDate    time.Time
}

// NewVariant creates a variant for a receipt. The received quantity lands in
// the pending-testing bucket when the lot requires testing, otherwise in available.
func NewVariant(partID uuid.UUID, info ReceiptInfo) (*Variant, error) {
	if partID == uuid.Nil {
		return nil, NewValidationError("part ID cannot be empty")
	}
	scanCode := strings.TrimSpace(info.ScanCode)
	if scanCode == "" {
		return nil, NewValidationError("scan code cannot be empty")
	}
	qty, err := ValidateAmount(info.Quantity)
	if err != nil {
		return nil, err
	}
	if info.UnitPrice.IsNegative() {
		return nil, NewInvalidAmountError(info.UnitPrice.String()).WithDetail("field", "unit_price")
	}

	received := info.ReceivedDate
	if received.IsZero() {
		received = time.Now().UTC()
	}

	v := &Variant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartID:            partID,
		ScanCode:          scanCode,
		LotNo:             strings.TrimSpace(info.LotNo),
		SerialNo:          strings.TrimSpace(info.SerialNo),
		UnitPrice:         Normalize(info.UnitPrice),
		AvailableQty:      decimal.Zero,
		PendingTestingQty: decimal.Zero,
		UsingQty:          decimal.Zero,
		ReceivedDate:      received,
		TestingStatus:     TestingCompleted,
	}
	if info.RequiresTesting {
		v.PendingTestingQty = qty
		v.TestingStatus = TestingPending
	} else {
		v.AvailableQty = qty
	}
	return v, nil
}

// TotalQty returns available + pending + using.
func (v *Variant) TotalQty() decimal.Decimal {
	return v.AvailableQty.Add(v.PendingTestingQty).Add(v.UsingQty)
}

// Qty returns the quantity held in a bucket.
func (v *Variant) Qty(b Bucket) decimal.Decimal {
	switch b {
	case BucketAvailable:
		return v.AvailableQty
	case BucketUsing:
		return v.UsingQty
	case BucketPending:
		return v.PendingTestingQty
	}
	return decimal.Zero
}

func (v *Variant) set(b Bucket, qty decimal.Decimal) {
	qty = Normalize(qty)
	switch b {
	case BucketAvailable:
		v.AvailableQty = qty
	case BucketUsing:
		v.UsingQty = qty
	case BucketPending:
		v.PendingTestingQty = qty
	}
}

// CanTake checks that a bucket holds at least amount, without mutating.
func (v *Variant) CanTake(b Bucket, amount decimal.Decimal) error {
	if !b.IsValid() {
		return NewValidationError("unknown bucket " + string(b))
	}
	if v.Qty(b).LessThan(amount) {
		return NewInsufficientQuantityError(string(b), v.Qty(b), amount)
	}
	return nil
}

// Transfer moves amount from one bucket to another. The total quantity of the
// variant is unchanged. Nothing is mutated when validation fails.
func (v *Variant) Transfer(from, to Bucket, amount decimal.Decimal) error {
	amount, err := ValidateAmount(amount)
	if err != nil {
		return err
	}
	if !to.IsValid() {
		return NewValidationError("unknown bucket " + string(to))
	}
	if err := v.CanTake(from, amount); err != nil {
		return err
	}
	v.set(from, v.Qty(from).Sub(amount))
	v.set(to, v.Qty(to).Add(amount))
	v.IncrementVersion()
	return nil
}

// Receive adds amount to a bucket (external receipt).
func (v *Variant) Receive(b Bucket, amount decimal.Decimal) error {
	amount, err := ValidateAmount(amount)
	if err != nil {
		return err
	}
	if !b.IsValid() {
		return NewValidationError("unknown bucket " + string(b))
	}
	v.set(b, v.Qty(b).Add(amount))
	v.IncrementVersion()
	return nil
}

// Consume removes amount from a bucket (external consumption or write-off).
func (v *Variant) Consume(b Bucket, amount decimal.Decimal) error {
	amount, err := ValidateAmount(amount)
	if err != nil {
		return err
	}
	if err := v.CanTake(b, amount); err != nil {
		return err
	}
	v.set(b, v.Qty(b).Sub(amount))
	v.IncrementVersion()
	return nil
}

// BucketDelta is the signed change applied to one bucket by a manual edit.
type BucketDelta struct {
	Bucket Bucket
	Delta  decimal.Decimal
}

// SetQuantities overwrites the three buckets (manual edit) and returns the
// non-zero signed deltas in bucket order. Negative targets are rejected.
func (v *Variant) SetQuantities(available, pending, using decimal.Decimal) ([]BucketDelta, error) {
	targets := []struct {
		bucket Bucket
		qty    decimal.Decimal
	}{
		{BucketAvailable, available},
		{BucketPending, pending},
		{BucketUsing, using},
	}
	for _, t := range targets {
		if t.qty.IsNegative() {
			return nil, NewInvalidAmountError(t.qty.String()).WithDetail("bucket", string(t.bucket))
		}
	}

	var deltas []BucketDelta
	for _, t := range targets {
		next := Normalize(t.qty)
		delta := next.Sub(v.Qty(t.bucket))
		if delta.IsZero() {
			continue
		}
		v.set(t.bucket, next)
		deltas = append(deltas, BucketDelta{Bucket: t.bucket, Delta: delta})
	}
	if len(deltas) > 0 {
		v.IncrementVersion()
	}
	return deltas, nil
}

// UpdateDetails changes the descriptive lot attributes. The scan code is immutable.
func (v *Variant) UpdateDetails(lotNo, serialNo string, unitPrice decimal.Decimal) error {
	if unitPrice.IsNegative() {
		return NewInvalidAmountError(unitPrice.String()).WithDetail("field", "unit_price")
	}
	v.LotNo = strings.TrimSpace(lotNo)
	v.SerialNo = strings.TrimSpace(serialNo)
	v.UnitPrice = Normalize(unitPrice)
	v.IncrementVersion()
	return nil
}

// ResolveTesting records the testing outcome. A completed test releases the
// pending quantity to available; a rejected test writes it off. The returned
// amount is the quantity that left the pending bucket.
func (v *Variant) ResolveTesting(outcome TestingStatus) (decimal.Decimal, error) {
	if outcome != TestingCompleted && outcome != TestingRejected {
		return decimal.Zero, NewValidationError("testing outcome must be completed or rejected")
	}
	if v.TestingStatus != TestingPending {
		return decimal.Zero, shared.NewDomainErrorf(shared.CodeInvalidInput,
			"variant %s is not pending testing (status %s)", v.ScanCode, v.TestingStatus)
	}
	released := v.PendingTestingQty
	if outcome == TestingCompleted {
		v.AvailableQty = Normalize(v.AvailableQty.Add(released))
	}
	v.PendingTestingQty = decimal.Zero
	v.TestingStatus = outcome
	v.IncrementVersion()
	return released, nil
}

// IsEmpty reports whether all three buckets are exactly zero.
func (v *Variant) IsEmpty() bool {
	return v.AvailableQty.IsZero() && v.PendingTestingQty.IsZero() && v.UsingQty.IsZero()
}

// CheckDeletable refuses deletion while any bucket holds quantity.
func (v *Variant) CheckDeletable() error {
	if !v.IsEmpty() {
		return NewNonDeletableError("variant", v.ScanCode, "quantity remains (available "+
			Format(v.AvailableQty)+", pending "+Format(v.PendingTestingQty)+", using "+Format(v.UsingQty)+")")
	}
	return nil
}

// Clone returns a copy suitable for undo snapshots.
func (v *Variant) Clone() *Variant {
	c := *v
	return &c
}
