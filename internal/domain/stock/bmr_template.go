package stock

import (
	"sort"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionDetail is one scanned contribution to a BMR template line.
type ContributionDetail struct {
	Barcode   string
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
}

// BMRContribution is the detail row kept for every barcode merged into a line.
// It is also the destination record for quantity moved into the BMR process.
type BMRContribution struct {
	shared.BaseEntity
	Allocation
	LineID     uuid.UUID
	TemplateID string
	Barcode    string
	UnitPrice  decimal.Decimal
	Position   int
}

// BMRTemplateLine aggregates all contributions of one part number to a BMR
// template. Barcodes, Quantity and AveragePrice are derived from Contributions.
type BMRTemplateLine struct {
	shared.BaseAggregateRoot
	TemplateID    string
	PartNo        string
	Barcodes      []string
	Quantity      decimal.Decimal
	AveragePrice  decimal.Decimal
	Contributions []BMRContribution
}

// NewBMRTemplateLine creates an empty line for a part number
func NewBMRTemplateLine(templateID, partNo string) (*BMRTemplateLine, error) {
	templateID = strings.TrimSpace(templateID)
	partNo = strings.TrimSpace(partNo)
	if templateID == "" {
		return nil, NewValidationError("template ID cannot be empty")
	}
	if partNo == "" {
		return nil, NewValidationError("part number cannot be empty")
	}
	return &BMRTemplateLine{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TemplateID:        templateID,
		PartNo:            partNo,
		Barcodes:          []string{},
		Quantity:          decimal.Zero,
		AveragePrice:      decimal.Zero,
		Contributions:     []BMRContribution{},
	}, nil
}

// Merge folds a contribution into the line. Re-scanning a barcode already on
// the line adds to that barcode's quantity and takes the new unit price
// instead of creating a second detail row.
func (l *BMRTemplateLine) Merge(variantID, partID uuid.UUID, d ContributionDetail) (*BMRContribution, error) {
	barcode := strings.TrimSpace(d.Barcode)
	if barcode == "" {
		return nil, NewValidationError("barcode cannot be empty")
	}
	qty, err := ValidateAmount(d.Quantity)
	if err != nil {
		return nil, err
	}
	if d.UnitPrice.IsNegative() {
		return nil, NewInvalidAmountError(d.UnitPrice.String()).WithDetail("field", "unit_price")
	}

	if idx := l.indexOfBarcode(barcode); idx >= 0 {
		c := &l.Contributions[idx]
		c.Add(qty)
		c.UnitPrice = Normalize(d.UnitPrice)
		c.Touch()
		l.refold()
		return c, nil
	}

	next := 0
	for _, c := range l.Contributions {
		if c.Position >= next {
			next = c.Position + 1
		}
	}
	l.Contributions = append(l.Contributions, BMRContribution{
		BaseEntity: shared.NewBaseEntity(),
		Allocation: Allocation{VariantID: variantID, PartID: partID, MoveQty: qty},
		LineID:     l.ID,
		TemplateID: l.TemplateID,
		Barcode:    barcode,
		UnitPrice:  Normalize(d.UnitPrice),
		Position:   next,
	})
	l.refold()
	return &l.Contributions[len(l.Contributions)-1], nil
}

// Release takes amount back out of a contribution. A contribution whose
// outstanding quantity reaches zero is removed from the line.
func (l *BMRTemplateLine) Release(contributionID uuid.UUID, amount decimal.Decimal) (BMRContribution, bool, error) {
	idx := -1
	for i := range l.Contributions {
		if l.Contributions[i].ID == contributionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return BMRContribution{}, false, NewNotFoundError("bmr contribution", contributionID.String())
	}
	c := &l.Contributions[idx]
	if err := c.Release("bmr contribution", amount); err != nil {
		return BMRContribution{}, false, err
	}
	c.Touch()
	released := *c
	settled := c.IsSettled()
	if settled {
		l.Contributions = append(l.Contributions[:idx], l.Contributions[idx+1:]...)
	}
	l.refold()
	return released, settled, nil
}

// Contribution returns the contribution with the given ID, or nil
func (l *BMRTemplateLine) Contribution(id uuid.UUID) *BMRContribution {
	for i := range l.Contributions {
		if l.Contributions[i].ID == id {
			return &l.Contributions[i]
		}
	}
	return nil
}

// ContributionByBarcode returns the contribution for a barcode, or nil
func (l *BMRTemplateLine) ContributionByBarcode(barcode string) *BMRContribution {
	if idx := l.indexOfBarcode(strings.TrimSpace(barcode)); idx >= 0 {
		return &l.Contributions[idx]
	}
	return nil
}

// IsEmpty reports whether no contribution remains
func (l *BMRTemplateLine) IsEmpty() bool {
	return len(l.Contributions) == 0
}

// Clone returns a deep copy suitable for undo snapshots
func (l *BMRTemplateLine) Clone() *BMRTemplateLine {
	c := *l
	c.Barcodes = append([]string(nil), l.Barcodes...)
	c.Contributions = append([]BMRContribution(nil), l.Contributions...)
	return &c
}

func (l *BMRTemplateLine) indexOfBarcode(barcode string) int {
	for i := range l.Contributions {
		if l.Contributions[i].Barcode == barcode {
			return i
		}
	}
	return -1
}

// RehydrateBMRTemplateLine rebuilds a stored line from its contributions.
// The derived fields are recomputed without touching the version.
func RehydrateBMRTemplateLine(base shared.BaseAggregateRoot, templateID, partNo string, contributions []BMRContribution) *BMRTemplateLine {
	l := &BMRTemplateLine{
		BaseAggregateRoot: base,
		TemplateID:        templateID,
		PartNo:            partNo,
		Contributions:     contributions,
	}
	if l.Contributions == nil {
		l.Contributions = []BMRContribution{}
	}
	l.fold()
	return l
}

// refold recomputes the derived fields and bumps the version.
func (l *BMRTemplateLine) refold() {
	l.fold()
	l.IncrementVersion()
}

func (l *BMRTemplateLine) fold() {
	sort.SliceStable(l.Contributions, func(i, j int) bool {
		return l.Contributions[i].Position < l.Contributions[j].Position
	})

	seen := make(map[string]struct{}, len(l.Contributions))
	barcodes := make([]string, 0, len(l.Contributions))
	qty := decimal.Zero
	value := decimal.Zero
	for _, c := range l.Contributions {
		if _, ok := seen[c.Barcode]; !ok {
			seen[c.Barcode] = struct{}{}
			barcodes = append(barcodes, c.Barcode)
		}
		qty = qty.Add(c.MoveQty)
		value = value.Add(c.MoveQty.Mul(c.UnitPrice))
	}

	l.Barcodes = barcodes
	l.Quantity = Normalize(qty)
	if qty.IsZero() {
		l.AveragePrice = decimal.Zero
	} else {
		l.AveragePrice = Normalize(value.Div(qty))
	}
}

// ScannedContribution is an incoming BMR scan, tagged with its part number.
type ScannedContribution struct {
	PartNo    string
	VariantID uuid.UUID
	PartID    uuid.UUID
	ContributionDetail
}

// MergeScans groups scans by part number (first-seen order) and folds each
// group into the matching line of the template, creating lines for new part
// numbers. It returns the touched lines in group order.
func MergeScans(templateID string, existing []*BMRTemplateLine, scans []ScannedContribution) ([]*BMRTemplateLine, error) {
	byPart := make(map[string]*BMRTemplateLine, len(existing))
	for _, l := range existing {
		if l.TemplateID == templateID {
			byPart[l.PartNo] = l
		}
	}

	var order []string
	groups := make(map[string][]ScannedContribution)
	for _, s := range scans {
		partNo := strings.TrimSpace(s.PartNo)
		if _, ok := groups[partNo]; !ok {
			order = append(order, partNo)
		}
		groups[partNo] = append(groups[partNo], s)
	}

	touched := make([]*BMRTemplateLine, 0, len(order))
	for _, partNo := range order {
		line, ok := byPart[partNo]
		if !ok {
			var err error
			line, err = NewBMRTemplateLine(templateID, partNo)
			if err != nil {
				return nil, err
			}
			byPart[partNo] = line
		}
		for _, s := range groups[partNo] {
			if _, err := line.Merge(s.VariantID, s.PartID, s.ContributionDetail); err != nil {
				return nil, err
			}
		}
		touched = append(touched, line)
	}
	return touched, nil
}
