package stock

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTotals are the per-part totals derived from a variant set.
type AggregateTotals struct {
	Available    decimal.Decimal
	Using        decimal.Decimal
	Pending      decimal.Decimal
	Received     decimal.Decimal
	AveragePrice decimal.Decimal
}

// Equal compares two totals value by value
func (t AggregateTotals) Equal(o AggregateTotals) bool {
	return t.Available.Equal(o.Available) &&
		t.Using.Equal(o.Using) &&
		t.Pending.Equal(o.Pending) &&
		t.Received.Equal(o.Received) &&
		t.AveragePrice.Equal(o.AveragePrice)
}

// Part is the aggregate stock record of one part number. Its totals are a
// derived cache of its variants: they can only change through Refresh.
type Part struct {
	shared.BaseAggregateRoot
	PartNo string
	Name   string
	totals AggregateTotals
}

// PartSnapshot is the stored shape of a part, used to rehydrate it from persistence.
type PartSnapshot struct {
	Base                shared.BaseAggregateRoot
	PartNo              string
	Name                string
	AveragePrice        decimal.Decimal
	TotalAvailable      decimal.Decimal
	TotalUsing          decimal.Decimal
	TotalPendingTesting decimal.Decimal
	TotalReceived       decimal.Decimal
}

// NewPart creates an empty part
func NewPart(partNo, name string) (*Part, error) {
	partNo = strings.TrimSpace(partNo)
	if partNo == "" {
		return nil, NewValidationError("part number cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = partNo
	}
	return &Part{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartNo:            partNo,
		Name:              name,
		totals:            ComputeTotals(nil),
	}, nil
}

// RehydratePart rebuilds a part from its stored snapshot.
func RehydratePart(s PartSnapshot) *Part {
	return &Part{
		BaseAggregateRoot: s.Base,
		PartNo:            s.PartNo,
		Name:              s.Name,
		totals: AggregateTotals{
			Available:    s.TotalAvailable,
			Using:        s.TotalUsing,
			Pending:      s.TotalPendingTesting,
			Received:     s.TotalReceived,
			AveragePrice: s.AveragePrice,
		},
	}
}

// Snapshot returns the stored shape of the part
func (p *Part) Snapshot() PartSnapshot {
	return PartSnapshot{
		Base:                p.BaseAggregateRoot,
		PartNo:              p.PartNo,
		Name:                p.Name,
		AveragePrice:        p.totals.AveragePrice,
		TotalAvailable:      p.totals.Available,
		TotalUsing:          p.totals.Using,
		TotalPendingTesting: p.totals.Pending,
		TotalReceived:       p.totals.Received,
	}
}

// Totals returns the cached aggregate totals
func (p *Part) Totals() AggregateTotals {
	return p.totals
}

// Refresh recomputes the totals from the part's variants. Variants that belong
// to another part are ignored. It reports whether the totals changed.
func (p *Part) Refresh(variants []Variant) bool {
	own := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.PartID == p.ID {
			own = append(own, v)
		}
	}
	next := ComputeTotals(own)
	if next.Equal(p.totals) {
		return false
	}
	p.totals = next
	p.IncrementVersion()
	return true
}

// Rename changes the display name
func (p *Part) Rename(name string) {
	name = strings.TrimSpace(name)
	if name == "" || name == p.Name {
		return
	}
	p.Name = name
	p.IncrementVersion()
}

// CheckDeletable refuses deletion while any of the part's variants still
// holds quantity. Empty variants are removed together with the part.
func (p *Part) CheckDeletable(variants []Variant) error {
	for i := range variants {
		v := &variants[i]
		if v.PartID == p.ID && !v.IsEmpty() {
			return NewNonDeletableError("part", p.PartNo, "variant "+v.ScanCode+" still holds quantity")
		}
	}
	return nil
}
