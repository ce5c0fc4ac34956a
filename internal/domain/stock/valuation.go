package stock

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComputeTotals derives part totals from a variant set. Each total is summed
// independently; received is the sum of the three buckets. An empty set
// yields zero totals and a zero average price.
func ComputeTotals(variants []Variant) AggregateTotals {
	available := decimal.Zero
	using := decimal.Zero
	pending := decimal.Zero
	received := decimal.Zero
	for i := range variants {
		v := &variants[i]
		available = available.Add(v.AvailableQty)
		using = using.Add(v.UsingQty)
		pending = pending.Add(v.PendingTestingQty)
		received = received.Add(v.TotalQty())
	}
	return AggregateTotals{
		Available:    Normalize(available),
		Using:        Normalize(using),
		Pending:      Normalize(pending),
		Received:     Normalize(received),
		AveragePrice: WeightedAveragePrice(variants),
	}
}

// WeightedAveragePrice is sum(total qty x unit price) / sum(total qty), or zero
// when no variant holds any quantity.
func WeightedAveragePrice(variants []Variant) decimal.Decimal {
	qty := decimal.Zero
	value := decimal.Zero
	for i := range variants {
		total := variants[i].TotalQty()
		qty = qty.Add(total)
		value = value.Add(total.Mul(variants[i].UnitPrice))
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return Normalize(value.Div(qty))
}

// FIFOValuation is the result of a FIFO-ordered valuation.
type FIFOValuation struct {
	Value decimal.Decimal
	// NextLot is the scan code of the earliest-received variant with a
	// nonzero total, i.e. the lot consumed next. Empty when all are zero.
	NextLot       string
	NextVariantID uuid.UUID
}

// SortFIFO returns the variants ordered oldest received first. Variants with
// the same received date keep their input order.
func SortFIFO(variants []Variant) []Variant {
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedDate.Before(sorted[j].ReceivedDate)
	})
	return sorted
}

// FIFOConsumptionValue scans variants in FIFO order and accumulates
// total qty x unit price from the first variant with a nonzero total onward.
func FIFOConsumptionValue(variants []Variant) FIFOValuation {
	result := FIFOValuation{Value: decimal.Zero}
	started := false
	for _, v := range SortFIFO(variants) {
		total := v.TotalQty()
		if !started {
			if total.IsZero() {
				continue
			}
			started = true
			result.NextLot = v.ScanCode
			result.NextVariantID = v.ID
		}
		result.Value = result.Value.Add(total.Mul(v.UnitPrice))
	}
	result.Value = Round(result.Value)
	return result
}

// IssueLine is the share of an issue taken from one lot.
type IssueLine struct {
	VariantID uuid.UUID
	ScanCode  string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Cost      decimal.Decimal
}

// IssuePlan describes which lots satisfy an issue of a given quantity.
type IssuePlan struct {
	Lines     []IssueLine
	TotalCost decimal.Decimal
	UnitCost  decimal.Decimal
	Shortfall decimal.Decimal
}

// FIFOIssue plans taking qty from the available bucket, oldest lots first.
// Shortfall is the part of qty that the available stock cannot cover.
func FIFOIssue(variants []Variant, qty decimal.Decimal) IssuePlan {
	plan := IssuePlan{TotalCost: decimal.Zero, UnitCost: decimal.Zero}
	remaining := Round(qty)
	for _, v := range SortFIFO(variants) {
		if !remaining.IsPositive() {
			break
		}
		if !v.AvailableQty.IsPositive() {
			continue
		}
		used := decimal.Min(remaining, v.AvailableQty)
		cost := used.Mul(v.UnitPrice)
		plan.Lines = append(plan.Lines, IssueLine{
			VariantID: v.ID,
			ScanCode:  v.ScanCode,
			Quantity:  used,
			UnitPrice: v.UnitPrice,
			Cost:      Round(cost),
		})
		plan.TotalCost = plan.TotalCost.Add(cost)
		remaining = remaining.Sub(used)
	}
	issued := Round(qty).Sub(remaining)
	if issued.IsPositive() {
		plan.UnitCost = Normalize(plan.TotalCost.Div(issued))
	}
	plan.TotalCost = Round(plan.TotalCost)
	plan.Shortfall = Normalize(remaining)
	return plan
}

// DisplayTotals are the summary figures shown for a variant set.
type DisplayTotals struct {
	Available    decimal.Decimal
	Using        decimal.Decimal
	Pending      decimal.Decimal
	Received     decimal.Decimal
	AveragePrice decimal.Decimal
	FIFOValue    decimal.Decimal
	NextLot      string
}

// ComputeDisplayTotals wraps the valuation functions for summary rendering.
func ComputeDisplayTotals(variants []Variant) DisplayTotals {
	totals := ComputeTotals(variants)
	fifo := FIFOConsumptionValue(variants)
	return DisplayTotals{
		Available:    totals.Available,
		Using:        totals.Using,
		Pending:      totals.Pending,
		Received:     totals.Received,
		AveragePrice: totals.AveragePrice,
		FIFOValue:    fifo.Value,
		NextLot:      fifo.NextLot,
	}
}
