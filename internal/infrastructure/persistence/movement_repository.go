package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormMovementRepository implements the append-only stock.MovementRepository.
// It has no update or delete path.
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// Append inserts a ledger entry
func (r *GormMovementRepository) Append(ctx context.Context, entry *stock.MovementEntry) error {
	return r.db.WithContext(ctx).Create(models.MovementModelFromDomain(entry)).Error
}

// FindByVariantID pages the entries of a variant, newest first unless the filter says otherwise
func (r *GormMovementRepository) FindByVariantID(ctx context.Context, variantID uuid.UUID, filter shared.Filter) ([]stock.MovementEntry, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("variant_id = ?", variantID), filter)
}

// CountByVariantID counts the entries of a variant
func (r *GormMovementRepository) CountByVariantID(ctx context.Context, variantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MovementModel{}).
		Where("variant_id = ?", variantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindByPartID pages the entries of every variant of a part
func (r *GormMovementRepository) FindByPartID(ctx context.Context, partID uuid.UUID, filter shared.Filter) ([]stock.MovementEntry, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("part_id = ?", partID), filter)
}

func (r *GormMovementRepository) find(_ context.Context, query *gorm.DB, filter shared.Filter) ([]stock.MovementEntry, error) {
	var rows []models.MovementModel
	if err := applyPaging(query.Model(&models.MovementModel{}), filter, MovementSortFields, "created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]stock.MovementEntry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries, nil
}

var _ stock.MovementRepository = (*GormMovementRepository)(nil)
