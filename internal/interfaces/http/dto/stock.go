package dto

import (
	"time"

	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts travel as strings so operators' input ("4", "4.005") reaches the
// domain unparsed and is rounded there.

// ReceiveRequest registers a received lot
type ReceiveRequest struct {
	PartNo          string     `json:"part_no" binding:"required,max=100"`
	Name            string     `json:"name" binding:"max=200"`
	ScanCode        string     `json:"scan_code" binding:"required,max=100"`
	LotNo           string     `json:"lot_no" binding:"max=100"`
	SerialNo        string     `json:"serial_no" binding:"max=100"`
	UnitPrice       string     `json:"unit_price"`
	Quantity        string     `json:"quantity" binding:"required"`
	RequiresTesting bool       `json:"requires_testing"`
	ReceivedDate    *time.Time `json:"received_date"`
	Reason          string     `json:"reason" binding:"max=500"`
}

// ToCommand converts the request to an application request
func (r ReceiveRequest) ToCommand() (appstock.ReceiveRequest, error) {
	qty, err := stock.ParseAmount(r.Quantity)
	if err != nil {
		return appstock.ReceiveRequest{}, err
	}
	price, err := stock.ParseNonNegative("unit_price", r.UnitPrice)
	if err != nil {
		return appstock.ReceiveRequest{}, err
	}
	cmd := appstock.ReceiveRequest{
		PartNo:          r.PartNo,
		Name:            r.Name,
		ScanCode:        r.ScanCode,
		LotNo:           r.LotNo,
		SerialNo:        r.SerialNo,
		UnitPrice:       price,
		Quantity:        qty,
		RequiresTesting: r.RequiresTesting,
		Reason:          r.Reason,
	}
	if r.ReceivedDate != nil {
		cmd.ReceivedDate = *r.ReceivedDate
	}
	return cmd, nil
}

// MoveRequest moves available quantity of a lot to a destination
type MoveRequest struct {
	ScanCode     string `json:"scan_code" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Kind         string `json:"destination" binding:"required,oneof=production sales bmr"`
	DepartmentID string `json:"department_id" binding:"required_if=Kind production"`
	SaleRef      string `json:"sale_ref" binding:"required_if=Kind sales"`
	TemplateID   string `json:"template_id" binding:"required_if=Kind bmr"`
	Reason       string `json:"reason" binding:"max=500"`
}

// ToCommand converts the request to an application request
func (r MoveRequest) ToCommand() (appstock.MoveRequest, error) {
	amount, err := stock.ParseAmount(r.Amount)
	if err != nil {
		return appstock.MoveRequest{}, err
	}
	return appstock.MoveRequest{
		ScanCode: r.ScanCode,
		Amount:   amount,
		Destination: stock.Destination{
			Kind:         stock.DestinationKind(r.Kind),
			DepartmentID: r.DepartmentID,
			SaleRef:      r.SaleRef,
			TemplateID:   r.TemplateID,
		},
		Reason: r.Reason,
	}, nil
}

// ReleaseRequest returns or consumes quantity held by a destination record
type ReleaseRequest struct {
	Kind          string `json:"destination" binding:"required,oneof=production sales bmr"`
	DestinationID string `json:"destination_id" binding:"required,uuid"`
	Amount        string `json:"amount" binding:"required"`
	Reason        string `json:"reason" binding:"max=500"`
}

func (r ReleaseRequest) parse() (stock.DestinationKind, uuid.UUID, decimal.Decimal, error) {
	amount, err := stock.ParseAmount(r.Amount)
	if err != nil {
		return "", uuid.Nil, decimal.Zero, err
	}
	id, err := uuid.Parse(r.DestinationID)
	if err != nil {
		return "", uuid.Nil, decimal.Zero, stock.NewValidationError("destination_id must be a UUID")
	}
	return stock.DestinationKind(r.Kind), id, amount, nil
}

// ToReturnCommand converts the request to a return
func (r ReleaseRequest) ToReturnCommand() (appstock.ReturnRequest, error) {
	kind, id, amount, err := r.parse()
	if err != nil {
		return appstock.ReturnRequest{}, err
	}
	return appstock.ReturnRequest{Kind: kind, DestinationID: id, Amount: amount, Reason: r.Reason}, nil
}

// ToConsumeCommand converts the request to a consumption
func (r ReleaseRequest) ToConsumeCommand() (appstock.ConsumeRequest, error) {
	kind, id, amount, err := r.parse()
	if err != nil {
		return appstock.ConsumeRequest{}, err
	}
	return appstock.ConsumeRequest{Kind: kind, DestinationID: id, Amount: amount, Reason: r.Reason}, nil
}

// ContributionScanRequest is one scanned lot of a BMR merge
type ContributionScanRequest struct {
	Barcode   string  `json:"barcode" binding:"required"`
	PartNo    string  `json:"part_no"`
	Quantity  string  `json:"quantity" binding:"required"`
	UnitPrice *string `json:"unit_price"`
}

// MergeContributionRequest merges scanned lots into a BMR template
type MergeContributionRequest struct {
	Scans []ContributionScanRequest `json:"scans" binding:"required,min=1,dive"`
}

// ToCommand converts the request to an application request
func (r MergeContributionRequest) ToCommand(templateID string) (appstock.MergeContributionRequest, error) {
	cmd := appstock.MergeContributionRequest{
		TemplateID: templateID,
		Scans:      make([]appstock.ContributionScan, 0, len(r.Scans)),
	}
	for _, s := range r.Scans {
		qty, err := stock.ParseAmount(s.Quantity)
		if err != nil {
			return appstock.MergeContributionRequest{}, err
		}
		scan := appstock.ContributionScan{Barcode: s.Barcode, PartNo: s.PartNo, Quantity: qty}
		if s.UnitPrice != nil {
			price, err := stock.ParseNonNegative("unit_price", *s.UnitPrice)
			if err != nil {
				return appstock.MergeContributionRequest{}, err
			}
			scan.UnitPrice = &price
		}
		cmd.Scans = append(cmd.Scans, scan)
	}
	return cmd, nil
}

// UpdateVariantRequest edits a lot by hand. Omitted fields stay unchanged.
type UpdateVariantRequest struct {
	AvailableQty      *string `json:"available_qty"`
	PendingTestingQty *string `json:"pending_testing_qty"`
	UsingQty          *string `json:"using_qty"`
	UnitPrice         *string `json:"unit_price"`
	LotNo             *string `json:"lot_no" binding:"omitempty,max=100"`
	SerialNo          *string `json:"serial_no" binding:"omitempty,max=100"`
	Reason            string  `json:"reason" binding:"max=500"`
}

// ToCommand converts the request to an application request
func (r UpdateVariantRequest) ToCommand(scanCode string) (appstock.UpdateVariantRequest, error) {
	cmd := appstock.UpdateVariantRequest{
		ScanCode: scanCode,
		LotNo:    r.LotNo,
		SerialNo: r.SerialNo,
		Reason:   r.Reason,
	}
	fields := []struct {
		name string
		raw  *string
		dst  **decimal.Decimal
	}{
		{"available_qty", r.AvailableQty, &cmd.AvailableQty},
		{"pending_testing_qty", r.PendingTestingQty, &cmd.PendingTestingQty},
		{"using_qty", r.UsingQty, &cmd.UsingQty},
		{"unit_price", r.UnitPrice, &cmd.UnitPrice},
	}
	for _, f := range fields {
		if f.raw == nil {
			continue
		}
		d, err := stock.ParseNonNegative(f.name, *f.raw)
		if err != nil {
			return appstock.UpdateVariantRequest{}, err
		}
		*f.dst = &d
	}
	return cmd, nil
}

// ResolveTestingRequest records a quality testing outcome
type ResolveTestingRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=completed rejected"`
	Reason  string `json:"reason" binding:"max=500"`
}

// ToCommand converts the request to an application request
func (r ResolveTestingRequest) ToCommand(scanCode string) appstock.ResolveTestingRequest {
	return appstock.ResolveTestingRequest{
		ScanCode: scanCode,
		Outcome:  stock.TestingStatus(r.Outcome),
		Reason:   r.Reason,
	}
}

// OverrideAvailableRequest sets a part's total available quantity
type OverrideAvailableRequest struct {
	Available string `json:"available" binding:"required"`
	Reason    string `json:"reason" binding:"max=500"`
}

// ToCommand converts the request to an application request
func (r OverrideAvailableRequest) ToCommand(partNo string) (appstock.OverrideAvailableRequest, error) {
	target, err := stock.ParseNonNegative("available", r.Available)
	if err != nil {
		return appstock.OverrideAvailableRequest{}, err
	}
	return appstock.OverrideAvailableRequest{PartNo: partNo, TargetAvailable: target, Reason: r.Reason}, nil
}
