package stock

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DestinationKind is a location outside raw stock that can hold moved quantity.
type DestinationKind string

const (
	DestinationProduction DestinationKind = "production"
	DestinationSales      DestinationKind = "sales"
	DestinationBMR        DestinationKind = "bmr"
)

// IsValid checks if the destination kind is valid
func (k DestinationKind) IsValid() bool {
	switch k {
	case DestinationProduction, DestinationSales, DestinationBMR:
		return true
	}
	return false
}

// MoveReference returns the ledger reference type for moving stock into k.
func (k DestinationKind) MoveReference() ReferenceType {
	switch k {
	case DestinationProduction:
		return RefProduction
	case DestinationSales:
		return RefSales
	default:
		return RefBMRProcessing
	}
}

// ReturnReference returns the ledger reference type for returning stock from k.
func (k DestinationKind) ReturnReference() ReferenceType {
	switch k {
	case DestinationProduction:
		return RefProductionReturn
	case DestinationSales:
		return RefSalesReturn
	default:
		return RefBMRReturn
	}
}

// Destination identifies where moved quantity goes. Exactly one context
// field is used, chosen by Kind.
type Destination struct {
	Kind         DestinationKind
	DepartmentID string
	SaleRef      string
	TemplateID   string
}

// ContextKey returns the kind-specific context value
func (d Destination) ContextKey() string {
	switch d.Kind {
	case DestinationProduction:
		return d.DepartmentID
	case DestinationSales:
		return d.SaleRef
	case DestinationBMR:
		return d.TemplateID
	}
	return ""
}

// Validate checks the destination kind and its context
func (d Destination) Validate() error {
	if !d.Kind.IsValid() {
		return NewValidationError("unknown destination kind " + string(d.Kind))
	}
	if strings.TrimSpace(d.ContextKey()) == "" {
		return NewValidationError("destination context is required for " + string(d.Kind))
	}
	return nil
}

// Allocation is the quantity of one variant currently held by a destination.
type Allocation struct {
	VariantID uuid.UUID
	PartID    uuid.UUID
	MoveQty   decimal.Decimal
}

// Add increases the held quantity
func (a *Allocation) Add(amount decimal.Decimal) {
	a.MoveQty = Normalize(a.MoveQty.Add(amount))
}

// Release decreases the held quantity. Releasing more than is outstanding fails.
func (a *Allocation) Release(holder string, amount decimal.Decimal) error {
	if a.MoveQty.LessThan(amount) {
		return NewInsufficientQuantityError(holder, a.MoveQty, amount)
	}
	a.MoveQty = Normalize(a.MoveQty.Sub(amount))
	return nil
}

// IsSettled reports whether nothing is outstanding, at which point the record is deleted.
func (a *Allocation) IsSettled() bool {
	return !a.MoveQty.IsPositive()
}

// ProductionItem holds quantity moved to a production department.
type ProductionItem struct {
	shared.BaseEntity
	Allocation
	DepartmentID string
}

// NewProductionItem creates a production item for a variant
func NewProductionItem(v *Variant, departmentID string) *ProductionItem {
	return &ProductionItem{
		BaseEntity:   shared.NewBaseEntity(),
		Allocation:   Allocation{VariantID: v.ID, PartID: v.PartID, MoveQty: decimal.Zero},
		DepartmentID: strings.TrimSpace(departmentID),
	}
}

// SaleItem holds quantity moved to a sale.
type SaleItem struct {
	shared.BaseEntity
	Allocation
	SaleRef string
}

// NewSaleItem creates a sale item for a variant
func NewSaleItem(v *Variant, saleRef string) *SaleItem {
	return &SaleItem{
		BaseEntity: shared.NewBaseEntity(),
		Allocation: Allocation{VariantID: v.ID, PartID: v.PartID, MoveQty: decimal.Zero},
		SaleRef:    strings.TrimSpace(saleRef),
	}
}
