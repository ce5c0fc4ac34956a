package stock

import (
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoveRequest moves quantity of a variant from available stock to a destination
type MoveRequest struct {
	ScanCode    string
	Amount      decimal.Decimal
	Destination stock.Destination
	Reason      string
}

// ReturnRequest returns quantity held by a destination record to available stock
type ReturnRequest struct {
	Kind          stock.DestinationKind
	DestinationID uuid.UUID
	Amount        decimal.Decimal
	Reason        string
}

// ConsumeRequest removes quantity held by a destination record for good
type ConsumeRequest struct {
	Kind          stock.DestinationKind
	DestinationID uuid.UUID
	Amount        decimal.Decimal
	Reason        string
}

// ContributionScan is one scanned lot contributed to a BMR template.
// PartNo is optional and only cross-checked; UnitPrice defaults to the lot price.
type ContributionScan struct {
	Barcode   string
	PartNo    string
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
}

// MergeContributionRequest merges a batch of scans into a BMR template
type MergeContributionRequest struct {
	TemplateID string
	Scans      []ContributionScan
}

// ReceiveRequest registers a received lot
type ReceiveRequest struct {
	PartNo          string
	Name            string
	ScanCode        string
	LotNo           string
	SerialNo        string
	UnitPrice       decimal.Decimal
	Quantity        decimal.Decimal
	RequiresTesting bool
	ReceivedDate    time.Time
	Reason          string
}

// UpdateVariantRequest is a manual edit of a variant. Nil fields stay unchanged.
type UpdateVariantRequest struct {
	ScanCode          string
	AvailableQty      *decimal.Decimal
	PendingTestingQty *decimal.Decimal
	UsingQty          *decimal.Decimal
	UnitPrice         *decimal.Decimal
	LotNo             *string
	SerialNo          *string
	Reason            string
}

// ResolveTestingRequest records the outcome of quality testing
type ResolveTestingRequest struct {
	ScanCode string
	Outcome  stock.TestingStatus
	Reason   string
}

// OverrideAvailableRequest sets a part's total available quantity by hand
type OverrideAvailableRequest struct {
	PartNo          string
	TargetAvailable decimal.Decimal
	Reason          string
}

// MovementListFilter represents pagination for ledger listings
type MovementListFilter struct {
	Page     int
	PageSize int
}

// TotalsResponse represents part totals in API responses
type TotalsResponse struct {
	Available    decimal.Decimal `json:"available"`
	Using        decimal.Decimal `json:"using"`
	Pending      decimal.Decimal `json:"pending_testing"`
	Received     decimal.Decimal `json:"received"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// PartResponse represents a part in API responses
type PartResponse struct {
	ID        uuid.UUID      `json:"id"`
	PartNo    string         `json:"part_no"`
	Name      string         `json:"name"`
	Totals    TotalsResponse `json:"totals"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VariantResponse represents a variant in API responses
type VariantResponse struct {
	ID                uuid.UUID       `json:"id"`
	PartID            uuid.UUID       `json:"part_id"`
	ScanCode          string          `json:"scan_code"`
	LotNo             string          `json:"lot_no,omitempty"`
	SerialNo          string          `json:"serial_no,omitempty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	AvailableQty      decimal.Decimal `json:"available_qty"`
	PendingTestingQty decimal.Decimal `json:"pending_testing_qty"`
	UsingQty          decimal.Decimal `json:"using_qty"`
	TotalQty          decimal.Decimal `json:"total_qty"`
	ReceivedDate      time.Time       `json:"received_date"`
	TestingStatus     string          `json:"testing_status"`
	Version           int             `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MovementResponse represents a ledger entry in API responses
type MovementResponse struct {
	ID               uuid.UUID       `json:"id"`
	VariantID        uuid.UUID       `json:"variant_id"`
	PartID           uuid.UUID       `json:"part_id"`
	Direction        string          `json:"direction"`
	Bucket           string          `json:"bucket"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	ReferenceType    string          `json:"reference_type"`
	ReferenceID      string          `json:"reference_id,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DestinationResponse represents a destination record in API responses
type DestinationResponse struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	VariantID uuid.UUID       `json:"variant_id"`
	Context   string          `json:"context"`
	MoveQty   decimal.Decimal `json:"move_qty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ContributionResponse represents a BMR contribution detail row
type ContributionResponse struct {
	ID        uuid.UUID       `json:"id"`
	VariantID uuid.UUID       `json:"variant_id"`
	Barcode   string          `json:"barcode"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Position  int             `json:"position"`
}

// BMRTemplateLineResponse represents a merged BMR template line
type BMRTemplateLineResponse struct {
	ID            uuid.UUID              `json:"id"`
	TemplateID    string                 `json:"template_id"`
	PartNo        string                 `json:"part_no"`
	Barcodes      []string               `json:"barcodes"`
	Quantity      decimal.Decimal        `json:"quantity"`
	AveragePrice  decimal.Decimal        `json:"average_price"`
	Contributions []ContributionResponse `json:"contributions"`
}

// DisplayTotalsResponse represents the summary cards of a part
type DisplayTotalsResponse struct {
	Available    decimal.Decimal `json:"available"`
	Using        decimal.Decimal `json:"using"`
	Pending      decimal.Decimal `json:"pending_testing"`
	Received     decimal.Decimal `json:"received"`
	AveragePrice decimal.Decimal `json:"average_price"`
	FIFOValue    decimal.Decimal `json:"fifo_value"`
	NextLot      string          `json:"next_lot,omitempty"`
}

// MoveResult is returned by Move, Return and Consume. Destination is nil when
// the destination record was settled and deleted.
type MoveResult struct {
	Variant     VariantResponse      `json:"variant"`
	Destination *DestinationResponse `json:"destination,omitempty"`
	Settled     bool                 `json:"settled"`
	Movement    MovementResponse     `json:"movement"`
	PartTotals  TotalsResponse       `json:"part_totals"`
}

// MergeContributionResult is returned by MergeContribution
type MergeContributionResult struct {
	TemplateID string                    `json:"template_id"`
	Lines      []BMRTemplateLineResponse `json:"lines"`
	Variants   []VariantResponse         `json:"variants"`
	Movements  []MovementResponse        `json:"movements"`
}

// ReceiptResult is returned by Receive
type ReceiptResult struct {
	Part        PartResponse     `json:"part"`
	Variant     VariantResponse  `json:"variant"`
	Movement    MovementResponse `json:"movement"`
	PartCreated bool             `json:"part_created"`
}

// VariantUpdateResult is returned by UpdateVariant and ResolveTesting
type VariantUpdateResult struct {
	Variant    VariantResponse    `json:"variant"`
	Movements  []MovementResponse `json:"movements"`
	PartTotals TotalsResponse     `json:"part_totals"`
}

// OverrideResult is returned by OverridePartAvailable
type OverrideResult struct {
	Part      PartResponse       `json:"part"`
	Movements []MovementResponse `json:"movements"`
}

// ReconcileResult is returned by Reconcile
type ReconcileResult struct {
	PartID  uuid.UUID      `json:"part_id"`
	PartNo  string         `json:"part_no"`
	Before  TotalsResponse `json:"before"`
	After   TotalsResponse `json:"after"`
	Drifted bool           `json:"drifted"`
}

// PartDetailResponse is a part with its variants and summary figures
type PartDetailResponse struct {
	Part     PartResponse          `json:"part"`
	Variants []VariantResponse     `json:"variants"`
	Display  DisplayTotalsResponse `json:"display"`
}

// ToTotalsResponse converts aggregate totals to a response
func ToTotalsResponse(t stock.AggregateTotals) TotalsResponse {
	return TotalsResponse{
		Available:    t.Available,
		Using:        t.Using,
		Pending:      t.Pending,
		Received:     t.Received,
		AveragePrice: t.AveragePrice,
	}
}

// ToPartResponse converts a part to a response
func ToPartResponse(p *stock.Part) PartResponse {
	return PartResponse{
		ID:        p.ID,
		PartNo:    p.PartNo,
		Name:      p.Name,
		Totals:    ToTotalsResponse(p.Totals()),
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ToVariantResponse converts a variant to a response
func ToVariantResponse(v *stock.Variant) VariantResponse {
	return VariantResponse{
		ID:                v.ID,
		PartID:            v.PartID,
		ScanCode:          v.ScanCode,
		LotNo:             v.LotNo,
		SerialNo:          v.SerialNo,
		UnitPrice:         v.UnitPrice,
		AvailableQty:      v.AvailableQty,
		PendingTestingQty: v.PendingTestingQty,
		UsingQty:          v.UsingQty,
		TotalQty:          v.TotalQty(),
		ReceivedDate:      v.ReceivedDate,
		TestingStatus:     string(v.TestingStatus),
		Version:           v.Version,
		UpdatedAt:         v.UpdatedAt,
	}
}

// ToVariantResponses converts variants to responses
func ToVariantResponses(variants []stock.Variant) []VariantResponse {
	responses := make([]VariantResponse, len(variants))
	for i := range variants {
		responses[i] = ToVariantResponse(&variants[i])
	}
	return responses
}

// ToMovementResponse converts a ledger entry to a response
func ToMovementResponse(m *stock.MovementEntry) MovementResponse {
	return MovementResponse{
		ID:               m.ID,
		VariantID:        m.VariantID,
		PartID:           m.PartID,
		Direction:        string(m.Direction),
		Bucket:           string(m.Bucket),
		Amount:           m.Amount,
		RemainingBalance: m.RemainingBalance,
		ReferenceType:    string(m.ReferenceType),
		ReferenceID:      m.ReferenceID,
		Reason:           m.Reason,
		CreatedAt:        m.CreatedAt,
	}
}

// ToMovementResponses converts ledger entries to responses
func ToMovementResponses(entries []stock.MovementEntry) []MovementResponse {
	responses := make([]MovementResponse, len(entries))
	for i := range entries {
		responses[i] = ToMovementResponse(&entries[i])
	}
	return responses
}

// ToProductionItemResponse converts a production item to a destination response
func ToProductionItemResponse(item *stock.ProductionItem) DestinationResponse {
	return DestinationResponse{
		ID:        item.ID,
		Kind:      string(stock.DestinationProduction),
		VariantID: item.VariantID,
		Context:   item.DepartmentID,
		MoveQty:   item.MoveQty,
		UpdatedAt: item.UpdatedAt,
	}
}

// ToSaleItemResponse converts a sale item to a destination response
func ToSaleItemResponse(item *stock.SaleItem) DestinationResponse {
	return DestinationResponse{
		ID:        item.ID,
		Kind:      string(stock.DestinationSales),
		VariantID: item.VariantID,
		Context:   item.SaleRef,
		MoveQty:   item.MoveQty,
		UpdatedAt: item.UpdatedAt,
	}
}

// ToContributionDestinationResponse converts a BMR contribution to a destination response
func ToContributionDestinationResponse(c *stock.BMRContribution) DestinationResponse {
	return DestinationResponse{
		ID:        c.ID,
		Kind:      string(stock.DestinationBMR),
		VariantID: c.VariantID,
		Context:   c.TemplateID,
		MoveQty:   c.MoveQty,
		UpdatedAt: c.UpdatedAt,
	}
}

// ToBMRTemplateLineResponse converts a BMR line to a response
func ToBMRTemplateLineResponse(l *stock.BMRTemplateLine) BMRTemplateLineResponse {
	contributions := make([]ContributionResponse, len(l.Contributions))
	for i, c := range l.Contributions {
		contributions[i] = ContributionResponse{
			ID:        c.ID,
			VariantID: c.VariantID,
			Barcode:   c.Barcode,
			UnitPrice: c.UnitPrice,
			Quantity:  c.MoveQty,
			Position:  c.Position,
		}
	}
	return BMRTemplateLineResponse{
		ID:            l.ID,
		TemplateID:    l.TemplateID,
		PartNo:        l.PartNo,
		Barcodes:      append([]string{}, l.Barcodes...),
		Quantity:      l.Quantity,
		AveragePrice:  l.AveragePrice,
		Contributions: contributions,
	}
}

// ToDisplayTotalsResponse converts display totals to a response
func ToDisplayTotalsResponse(d stock.DisplayTotals) DisplayTotalsResponse {
	return DisplayTotalsResponse{
		Available:    d.Available,
		Using:        d.Using,
		Pending:      d.Pending,
		Received:     d.Received,
		AveragePrice: d.AveragePrice,
		FIFOValue:    d.FIFOValue,
		NextLot:      d.NextLot,
	}
}
