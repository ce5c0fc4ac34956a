package models

import (
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductionItemModel holds quantity moved to a production department.
type ProductionItemModel struct {
	BaseModel
	VariantID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_production_variant_dept,priority:1"`
	PartID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	DepartmentID string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_stock_production_variant_dept,priority:2"`
	MoveQty      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductionItemModel) TableName() string {
	return "stock_production_items"
}

// ToDomain converts the persistence model to a domain ProductionItem.
func (m *ProductionItemModel) ToDomain() *stock.ProductionItem {
	return &stock.ProductionItem{
		BaseEntity:   m.BaseModel.ToDomain(),
		Allocation:   stock.Allocation{VariantID: m.VariantID, PartID: m.PartID, MoveQty: m.MoveQty},
		DepartmentID: m.DepartmentID,
	}
}

// ProductionItemModelFromDomain creates a new persistence model from a domain ProductionItem.
func ProductionItemModelFromDomain(i *stock.ProductionItem) *ProductionItemModel {
	m := &ProductionItemModel{
		VariantID:    i.VariantID,
		PartID:       i.PartID,
		DepartmentID: i.DepartmentID,
		MoveQty:      i.MoveQty,
	}
	m.FromDomainBaseEntity(i.BaseEntity)
	return m
}

// SaleItemModel holds quantity moved to a sale.
type SaleItemModel struct {
	BaseModel
	VariantID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_sale_variant_ref,priority:1"`
	PartID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	SaleRef   string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_stock_sale_variant_ref,priority:2"`
	MoveQty   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (SaleItemModel) TableName() string {
	return "stock_sale_items"
}

// ToDomain converts the persistence model to a domain SaleItem.
func (m *SaleItemModel) ToDomain() *stock.SaleItem {
	return &stock.SaleItem{
		BaseEntity: m.BaseModel.ToDomain(),
		Allocation: stock.Allocation{VariantID: m.VariantID, PartID: m.PartID, MoveQty: m.MoveQty},
		SaleRef:    m.SaleRef,
	}
}

// SaleItemModelFromDomain creates a new persistence model from a domain SaleItem.
func SaleItemModelFromDomain(i *stock.SaleItem) *SaleItemModel {
	m := &SaleItemModel{
		VariantID: i.VariantID,
		PartID:    i.PartID,
		SaleRef:   i.SaleRef,
		MoveQty:   i.MoveQty,
	}
	m.FromDomainBaseEntity(i.BaseEntity)
	return m
}

// BMRTemplateLineModel is one part-number line of a BMR template. Quantity
// and AveragePrice are denormalized from the contributions for reporting.
type BMRTemplateLineModel struct {
	AggregateModel
	TemplateID   string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_bmr_lines_template_part,priority:1"`
	PartNo       string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_bmr_lines_template_part,priority:2"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	// Associations
	Contributions []BMRContributionModel `gorm:"foreignKey:LineID;references:ID"`
}

// TableName returns the table name for GORM
func (BMRTemplateLineModel) TableName() string {
	return "bmr_template_lines"
}

// ToDomain converts the persistence model, with its loaded contributions, to a domain line.
func (m *BMRTemplateLineModel) ToDomain() *stock.BMRTemplateLine {
	contributions := make([]stock.BMRContribution, len(m.Contributions))
	for i := range m.Contributions {
		contributions[i] = *m.Contributions[i].ToDomain()
	}
	return stock.RehydrateBMRTemplateLine(m.ToDomainAggregateRoot(), m.TemplateID, m.PartNo, contributions)
}

// BMRTemplateLineModelFromDomain creates a new persistence model, contributions included.
func BMRTemplateLineModelFromDomain(l *stock.BMRTemplateLine) *BMRTemplateLineModel {
	m := &BMRTemplateLineModel{
		TemplateID:    l.TemplateID,
		PartNo:        l.PartNo,
		Quantity:      l.Quantity,
		AveragePrice:  l.AveragePrice,
		Contributions: make([]BMRContributionModel, len(l.Contributions)),
	}
	m.FromDomainAggregateRoot(l.BaseAggregateRoot)
	for i := range l.Contributions {
		m.Contributions[i] = *BMRContributionModelFromDomain(&l.Contributions[i])
	}
	return m
}

// BMRContributionModel is the detail row of one barcode merged into a line.
type BMRContributionModel struct {
	BaseModel
	LineID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bmr_contributions_line_barcode,priority:1"`
	TemplateID string          `gorm:"type:varchar(100);not null;index"`
	VariantID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	PartID     uuid.UUID       `gorm:"type:uuid;not null"`
	Barcode    string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_bmr_contributions_line_barcode,priority:2"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	MoveQty    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Position   int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (BMRContributionModel) TableName() string {
	return "bmr_contributions"
}

// ToDomain converts the persistence model to a domain BMRContribution.
func (m *BMRContributionModel) ToDomain() *stock.BMRContribution {
	return &stock.BMRContribution{
		BaseEntity: m.BaseModel.ToDomain(),
		Allocation: stock.Allocation{VariantID: m.VariantID, PartID: m.PartID, MoveQty: m.MoveQty},
		LineID:     m.LineID,
		TemplateID: m.TemplateID,
		Barcode:    m.Barcode,
		UnitPrice:  m.UnitPrice,
		Position:   m.Position,
	}
}

// BMRContributionModelFromDomain creates a new persistence model from a domain BMRContribution.
func BMRContributionModelFromDomain(c *stock.BMRContribution) *BMRContributionModel {
	m := &BMRContributionModel{
		LineID:     c.LineID,
		TemplateID: c.TemplateID,
		VariantID:  c.VariantID,
		PartID:     c.PartID,
		Barcode:    c.Barcode,
		UnitPrice:  c.UnitPrice,
		MoveQty:    c.MoveQty,
		Position:   c.Position,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}

// All returns every model of the stock schema, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&PartModel{},
		&VariantModel{},
		&MovementModel{},
		&ProductionItemModel{},
		&SaleItemModel{},
		&BMRTemplateLineModel{},
		&BMRContributionModel{},
	}
}
