package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormProductionItemRepository implements stock.ProductionItemRepository using GORM
type GormProductionItemRepository struct {
	db *gorm.DB
}

// NewGormProductionItemRepository creates a new GormProductionItemRepository
func NewGormProductionItemRepository(db *gorm.DB) *GormProductionItemRepository {
	return &GormProductionItemRepository{db: db}
}

// FindByID finds a production item by its ID
func (r *GormProductionItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.ProductionItem, error) {
	var model models.ProductionItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByVariantAndDepartment finds the item holding a variant's quantity in a department
func (r *GormProductionItemRepository) FindByVariantAndDepartment(ctx context.Context, variantID uuid.UUID, departmentID string) (*stock.ProductionItem, error) {
	var model models.ProductionItemModel
	if err := r.db.WithContext(ctx).
		Where("variant_id = ? AND department_id = ?", variantID, departmentID).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByVariantID lists the production items of a variant
func (r *GormProductionItemRepository) FindByVariantID(ctx context.Context, variantID uuid.UUID) ([]stock.ProductionItem, error) {
	var rows []models.ProductionItemModel
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]stock.ProductionItem, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items, nil
}

// Create inserts a production item
func (r *GormProductionItemRepository) Create(ctx context.Context, item *stock.ProductionItem) error {
	err := r.db.WithContext(ctx).Create(models.ProductionItemModelFromDomain(item)).Error
	if isDuplicateKey(err) {
		return versionConflict("production item")
	}
	return err
}

// Save updates the held quantity of a production item
func (r *GormProductionItemRepository) Save(ctx context.Context, item *stock.ProductionItem) error {
	result := r.db.WithContext(ctx).
		Model(&models.ProductionItemModel{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"move_qty":   item.MoveQty,
			"updated_at": item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete deletes a settled production item
func (r *GormProductionItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ProductionItemModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormSaleItemRepository implements stock.SaleItemRepository using GORM
type GormSaleItemRepository struct {
	db *gorm.DB
}

// NewGormSaleItemRepository creates a new GormSaleItemRepository
func NewGormSaleItemRepository(db *gorm.DB) *GormSaleItemRepository {
	return &GormSaleItemRepository{db: db}
}

// FindByID finds a sale item by its ID
func (r *GormSaleItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.SaleItem, error) {
	var model models.SaleItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByVariantAndSale finds the item holding a variant's quantity for a sale
func (r *GormSaleItemRepository) FindByVariantAndSale(ctx context.Context, variantID uuid.UUID, saleRef string) (*stock.SaleItem, error) {
	var model models.SaleItemModel
	if err := r.db.WithContext(ctx).
		Where("variant_id = ? AND sale_ref = ?", variantID, saleRef).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByVariantID lists the sale items of a variant
func (r *GormSaleItemRepository) FindByVariantID(ctx context.Context, variantID uuid.UUID) ([]stock.SaleItem, error) {
	var rows []models.SaleItemModel
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]stock.SaleItem, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items, nil
}

// Create inserts a sale item
func (r *GormSaleItemRepository) Create(ctx context.Context, item *stock.SaleItem) error {
	err := r.db.WithContext(ctx).Create(models.SaleItemModelFromDomain(item)).Error
	if isDuplicateKey(err) {
		return versionConflict("sale item")
	}
	return err
}

// Save updates the held quantity of a sale item
func (r *GormSaleItemRepository) Save(ctx context.Context, item *stock.SaleItem) error {
	result := r.db.WithContext(ctx).
		Model(&models.SaleItemModel{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"move_qty":   item.MoveQty,
			"updated_at": item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete deletes a settled sale item
func (r *GormSaleItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.SaleItemModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var (
	_ stock.ProductionItemRepository = (*GormProductionItemRepository)(nil)
	_ stock.SaleItemRepository       = (*GormSaleItemRepository)(nil)
)
