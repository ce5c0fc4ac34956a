package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPartRepository implements stock.PartRepository using GORM
type GormPartRepository struct {
	db *gorm.DB
}

// NewGormPartRepository creates a new GormPartRepository
func NewGormPartRepository(db *gorm.DB) *GormPartRepository {
	return &GormPartRepository{db: db}
}

// FindByID finds a part by its ID
func (r *GormPartRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.Part, error) {
	var model models.PartModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByPartNo finds a part by its part number
func (r *GormPartRepository) FindByPartNo(ctx context.Context, partNo string) (*stock.Part, error) {
	var model models.PartModel
	if err := r.db.WithContext(ctx).Where("part_no = ?", partNo).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// ListPartNos returns every part number in ascending order
func (r *GormPartRepository) ListPartNos(ctx context.Context) ([]string, error) {
	var partNos []string
	err := r.db.WithContext(ctx).
		Model(&models.PartModel{}).
		Order("part_no ASC").
		Pluck("part_no", &partNos).Error
	return partNos, err
}

// FindByIDForUpdate finds a part and locks its row
func (r *GormPartRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*stock.Part, error) {
	var model models.PartModel
	if err := forUpdate(r.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new part
func (r *GormPartRepository) Create(ctx context.Context, part *stock.Part) error {
	err := r.db.WithContext(ctx).Create(models.PartModelFromDomain(part)).Error
	if isDuplicateKey(err) {
		return shared.NewDomainErrorf(shared.CodeConcurrencyConflict, "part %s already exists", part.PartNo)
	}
	return err
}

// Save updates the part if the stored version is older than the new one
func (r *GormPartRepository) Save(ctx context.Context, part *stock.Part) error {
	model := models.PartModelFromDomain(part)
	result := r.db.WithContext(ctx).
		Model(&models.PartModel{}).
		Where("id = ? AND version < ?", model.ID, model.Version).
		Updates(map[string]any{
			"name":                  model.Name,
			"average_price":         model.AveragePrice,
			"total_available":       model.TotalAvailable,
			"total_using":           model.TotalUsing,
			"total_pending_testing": model.TotalPendingTesting,
			"total_received":        model.TotalReceived,
			"version":               model.Version,
			"updated_at":            model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict("part")
	}
	return nil
}

// Delete deletes a part
func (r *GormPartRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PartModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ stock.PartRepository = (*GormPartRepository)(nil)
