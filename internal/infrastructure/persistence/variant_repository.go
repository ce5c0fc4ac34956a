package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVariantRepository implements stock.VariantRepository using GORM
type GormVariantRepository struct {
	db *gorm.DB
}

// NewGormVariantRepository creates a new GormVariantRepository
func NewGormVariantRepository(db *gorm.DB) *GormVariantRepository {
	return &GormVariantRepository{db: db}
}

// FindByID finds a variant by its ID
func (r *GormVariantRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.Variant, error) {
	var model models.VariantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByScanCode finds a variant by its scan code
func (r *GormVariantRepository) FindByScanCode(ctx context.Context, scanCode string) (*stock.Variant, error) {
	var model models.VariantModel
	if err := r.db.WithContext(ctx).Where("scan_code = ?", scanCode).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds a variant and locks its row
func (r *GormVariantRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*stock.Variant, error) {
	var model models.VariantModel
	if err := forUpdate(r.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByPartID lists the variants of a part, oldest receipt first
func (r *GormVariantRepository) FindByPartID(ctx context.Context, partID uuid.UUID) ([]stock.Variant, error) {
	var rows []models.VariantModel
	if err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("received_date ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toVariants(rows), nil
}

// FindByPartIDForUpdate lists and locks the variants of a part. Rows are
// locked in ID order so that concurrent lockers cannot deadlock.
func (r *GormVariantRepository) FindByPartIDForUpdate(ctx context.Context, partID uuid.UUID) ([]stock.Variant, error) {
	var rows []models.VariantModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("part_id = ?", partID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toVariants(rows), nil
}

// ExistsByScanCode checks whether a scan code is taken
func (r *GormVariantRepository) ExistsByScanCode(ctx context.Context, scanCode string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.VariantModel{}).
		Where("scan_code = ?", scanCode).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByPartID counts the variants of a part
func (r *GormVariantRepository) CountByPartID(ctx context.Context, partID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.VariantModel{}).
		Where("part_id = ?", partID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts a variant. A taken scan code is reported as DUPLICATE_SCAN_CODE.
func (r *GormVariantRepository) Create(ctx context.Context, variant *stock.Variant) error {
	err := r.db.WithContext(ctx).Create(models.VariantModelFromDomain(variant)).Error
	if isDuplicateKey(err) {
		return stock.NewDuplicateScanCodeError(variant.ScanCode)
	}
	return err
}

// Save updates the variant if the stored version is older than the new one
func (r *GormVariantRepository) Save(ctx context.Context, variant *stock.Variant) error {
	model := models.VariantModelFromDomain(variant)
	result := r.db.WithContext(ctx).
		Model(&models.VariantModel{}).
		Where("id = ? AND version < ?", model.ID, model.Version).
		Updates(map[string]any{
			"lot_no":              model.LotNo,
			"serial_no":           model.SerialNo,
			"unit_price":          model.UnitPrice,
			"available_qty":       model.AvailableQty,
			"pending_testing_qty": model.PendingTestingQty,
			"using_qty":           model.UsingQty,
			"testing_status":      model.TestingStatus,
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict("variant")
	}
	return nil
}

// Delete deletes a variant. Its ledger entries are kept.
func (r *GormVariantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.VariantModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toVariants(rows []models.VariantModel) []stock.Variant {
	variants := make([]stock.Variant, len(rows))
	for i := range rows {
		variants[i] = *rows[i].ToDomain()
	}
	return variants
}

var _ stock.VariantRepository = (*GormVariantRepository)(nil)
