package telemetry

import (
	"context"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStockGaugeProvider implements StockGaugeProvider with aggregate
// queries over the stock tables.
type GormStockGaugeProvider struct {
	db *gorm.DB
}

// NewGormStockGaugeProvider creates a new GormStockGaugeProvider.
func NewGormStockGaugeProvider(db *gorm.DB) *GormStockGaugeProvider {
	return &GormStockGaugeProvider{db: db}
}

// BucketTotals sums the bucket columns of stock_variants.
func (p *GormStockGaugeProvider) BucketTotals(ctx context.Context) (map[stock.Bucket]decimal.Decimal, error) {
	var row struct {
		Available decimal.Decimal `gorm:"column:available"`
		Using     decimal.Decimal `gorm:"column:using_total"`
		Pending   decimal.Decimal `gorm:"column:pending"`
	}
	err := p.db.WithContext(ctx).
		Table("stock_variants").
		Select("COALESCE(SUM(available_qty), 0) AS available, " +
			"COALESCE(SUM(using_qty), 0) AS using_total, " +
			"COALESCE(SUM(pending_testing_qty), 0) AS pending").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return map[stock.Bucket]decimal.Decimal{
		stock.BucketAvailable: row.Available,
		stock.BucketUsing:     row.Using,
		stock.BucketPending:   row.Pending,
	}, nil
}

// OpenDestinations counts production items, sale items and BMR
// contributions that still hold quantity.
func (p *GormStockGaugeProvider) OpenDestinations(ctx context.Context) (map[stock.DestinationKind]int64, error) {
	tables := map[stock.DestinationKind]string{
		stock.DestinationProduction: "stock_production_items",
		stock.DestinationSales:      "stock_sale_items",
		stock.DestinationBMR:        "bmr_contributions",
	}
	out := make(map[stock.DestinationKind]int64, len(tables))
	for kind, table := range tables {
		var count int64
		if err := p.db.WithContext(ctx).Table(table).Where("move_qty > 0").Count(&count).Error; err != nil {
			return nil, err
		}
		out[kind] = count
	}
	return out, nil
}
