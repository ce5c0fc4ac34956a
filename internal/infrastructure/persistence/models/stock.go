package models

import (
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartModel is the persistence model for the Part aggregate root.
type PartModel struct {
	AggregateModel
	PartNo              string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_stock_parts_part_no"`
	Name                string          `gorm:"type:varchar(200);not null"`
	AveragePrice        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAvailable      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalUsing          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalPendingTesting decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalReceived       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (PartModel) TableName() string {
	return "stock_parts"
}

// ToDomain converts the persistence model to a domain Part.
func (m *PartModel) ToDomain() *stock.Part {
	return stock.RehydratePart(stock.PartSnapshot{
		Base:                m.ToDomainAggregateRoot(),
		PartNo:              m.PartNo,
		Name:                m.Name,
		AveragePrice:        m.AveragePrice,
		TotalAvailable:      m.TotalAvailable,
		TotalUsing:          m.TotalUsing,
		TotalPendingTesting: m.TotalPendingTesting,
		TotalReceived:       m.TotalReceived,
	})
}

// FromDomain populates the persistence model from a domain Part.
func (m *PartModel) FromDomain(p *stock.Part) {
	s := p.Snapshot()
	m.FromDomainAggregateRoot(s.Base)
	m.PartNo = s.PartNo
	m.Name = s.Name
	m.AveragePrice = s.AveragePrice
	m.TotalAvailable = s.TotalAvailable
	m.TotalUsing = s.TotalUsing
	m.TotalPendingTesting = s.TotalPendingTesting
	m.TotalReceived = s.TotalReceived
}

// PartModelFromDomain creates a new persistence model from a domain Part.
func PartModelFromDomain(p *stock.Part) *PartModel {
	m := &PartModel{}
	m.FromDomain(p)
	return m
}

// VariantModel is the persistence model for the Variant aggregate root.
type VariantModel struct {
	AggregateModel
	PartID            uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_variants_part_id"`
	ScanCode          string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_stock_variants_scan_code"`
	LotNo             string          `gorm:"type:varchar(100)"`
	SerialNo          string          `gorm:"type:varchar(100)"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AvailableQty      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PendingTestingQty decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	UsingQty          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ReceivedDate      time.Time       `gorm:"not null"`
	TestingStatus     string          `gorm:"type:varchar(20);not null;default:'completed'"`
}

// TableName returns the table name for GORM
func (VariantModel) TableName() string {
	return "stock_variants"
}

// ToDomain converts the persistence model to a domain Variant.
func (m *VariantModel) ToDomain() *stock.Variant {
	return &stock.Variant{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		PartID:            m.PartID,
		ScanCode:          m.ScanCode,
		LotNo:             m.LotNo,
		SerialNo:          m.SerialNo,
		UnitPrice:         m.UnitPrice,
		AvailableQty:      m.AvailableQty,
		PendingTestingQty: m.PendingTestingQty,
		UsingQty:          m.UsingQty,
		ReceivedDate:      m.ReceivedDate.UTC(),
		TestingStatus:     stock.TestingStatus(m.TestingStatus),
	}
}

// FromDomain populates the persistence model from a domain Variant.
func (m *VariantModel) FromDomain(v *stock.Variant) {
	m.FromDomainAggregateRoot(v.BaseAggregateRoot)
	m.PartID = v.PartID
	m.ScanCode = v.ScanCode
	m.LotNo = v.LotNo
	m.SerialNo = v.SerialNo
	m.UnitPrice = v.UnitPrice
	m.AvailableQty = v.AvailableQty
	m.PendingTestingQty = v.PendingTestingQty
	m.UsingQty = v.UsingQty
	m.ReceivedDate = v.ReceivedDate
	m.TestingStatus = string(v.TestingStatus)
}

// VariantModelFromDomain creates a new persistence model from a domain Variant.
func VariantModelFromDomain(v *stock.Variant) *VariantModel {
	m := &VariantModel{}
	m.FromDomain(v)
	return m
}

// MovementModel is one row of the append-only movement ledger.
type MovementModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	VariantID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_movements_variant,priority:1"`
	PartID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_movements_part,priority:1"`
	Direction        string          `gorm:"type:varchar(10);not null"`
	Bucket           string          `gorm:"type:varchar(20);not null"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	RemainingBalance decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ReferenceType    string          `gorm:"type:varchar(30);not null;index"`
	ReferenceID      string          `gorm:"type:varchar(100)"`
	Reason           string          `gorm:"type:varchar(500)"`
	CreatedAt        time.Time       `gorm:"not null;index:idx_stock_movements_variant,priority:2;index:idx_stock_movements_part,priority:2"`
}

// TableName returns the table name for GORM
func (MovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain MovementEntry.
func (m *MovementModel) ToDomain() *stock.MovementEntry {
	return &stock.MovementEntry{
		ID:               m.ID,
		VariantID:        m.VariantID,
		PartID:           m.PartID,
		Direction:        stock.Direction(m.Direction),
		Bucket:           stock.Bucket(m.Bucket),
		Amount:           m.Amount,
		RemainingBalance: m.RemainingBalance,
		ReferenceType:    stock.ReferenceType(m.ReferenceType),
		ReferenceID:      m.ReferenceID,
		Reason:           m.Reason,
		CreatedAt:        m.CreatedAt.UTC(),
	}
}

// MovementModelFromDomain creates a new persistence model from a domain MovementEntry.
func MovementModelFromDomain(e *stock.MovementEntry) *MovementModel {
	return &MovementModel{
		ID:               e.ID,
		VariantID:        e.VariantID,
		PartID:           e.PartID,
		Direction:        string(e.Direction),
		Bucket:           string(e.Bucket),
		Amount:           e.Amount,
		RemainingBalance: e.RemainingBalance,
		ReferenceType:    string(e.ReferenceType),
		ReferenceID:      e.ReferenceID,
		Reason:           e.Reason,
		CreatedAt:        e.CreatedAt,
	}
}
