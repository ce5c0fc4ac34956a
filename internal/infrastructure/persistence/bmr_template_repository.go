package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBMRTemplateRepository implements stock.BMRTemplateRepository using GORM.
// A line and its contributions are always loaded and written together.
type GormBMRTemplateRepository struct {
	db *gorm.DB
}

// NewGormBMRTemplateRepository creates a new GormBMRTemplateRepository
func NewGormBMRTemplateRepository(db *gorm.DB) *GormBMRTemplateRepository {
	return &GormBMRTemplateRepository{db: db}
}

func (r *GormBMRTemplateRepository) withContributions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Contributions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// FindLine returns the line of a template for a part number
func (r *GormBMRTemplateRepository) FindLine(ctx context.Context, templateID, partNo string) (*stock.BMRTemplateLine, error) {
	var model models.BMRTemplateLineModel
	if err := r.withContributions(ctx).
		Where("template_id = ? AND part_no = ?", templateID, partNo).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindLineByID finds a line by its ID
func (r *GormBMRTemplateRepository) FindLineByID(ctx context.Context, id uuid.UUID) (*stock.BMRTemplateLine, error) {
	var model models.BMRTemplateLineModel
	if err := r.withContributions(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindLineByContributionID returns the line holding a contribution
func (r *GormBMRTemplateRepository) FindLineByContributionID(ctx context.Context, contributionID uuid.UUID) (*stock.BMRTemplateLine, error) {
	var contribution models.BMRContributionModel
	if err := r.db.WithContext(ctx).Select("line_id").First(&contribution, "id = ?", contributionID).Error; err != nil {
		return nil, notFound(err)
	}
	return r.FindLineByID(ctx, contribution.LineID)
}

// FindLinesByTemplate lists the lines of a template ordered by part number
func (r *GormBMRTemplateRepository) FindLinesByTemplate(ctx context.Context, templateID string) ([]stock.BMRTemplateLine, error) {
	var rows []models.BMRTemplateLineModel
	if err := r.withContributions(ctx).
		Where("template_id = ?", templateID).
		Order("part_no ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	lines := make([]stock.BMRTemplateLine, len(rows))
	for i := range rows {
		lines[i] = *rows[i].ToDomain()
	}
	return lines, nil
}

// FindContributionsByVariantID lists the open contributions of a variant across templates
func (r *GormBMRTemplateRepository) FindContributionsByVariantID(ctx context.Context, variantID uuid.UUID) ([]stock.BMRContribution, error) {
	var rows []models.BMRContributionModel
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	contributions := make([]stock.BMRContribution, len(rows))
	for i := range rows {
		contributions[i] = *rows[i].ToDomain()
	}
	return contributions, nil
}

// SaveLine upserts the line with a version check, deletes contributions that
// are no longer on the line and upserts the remaining ones.
func (r *GormBMRTemplateRepository) SaveLine(ctx context.Context, line *stock.BMRTemplateLine) error {
	model := models.BMRTemplateLineModelFromDomain(line)
	contributions := model.Contributions
	model.Contributions = nil

	db := r.db.WithContext(ctx)
	result := db.Model(&models.BMRTemplateLineModel{}).
		Where("id = ? AND version < ?", model.ID, model.Version).
		Updates(map[string]any{
			"quantity":      model.Quantity,
			"average_price": model.AveragePrice,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.BMRTemplateLineModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return versionConflict("bmr template line")
		}
		if err := db.Omit("Contributions").Create(model).Error; err != nil {
			if isDuplicateKey(err) {
				return versionConflict("bmr template line")
			}
			return err
		}
	}

	keep := make([]uuid.UUID, 0, len(contributions))
	for i := range contributions {
		keep = append(keep, contributions[i].ID)
	}
	stale := db.Where("line_id = ?", model.ID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	if err := stale.Delete(&models.BMRContributionModel{}).Error; err != nil {
		return err
	}

	for i := range contributions {
		c := &contributions[i]
		res := db.Model(&models.BMRContributionModel{}).
			Where("id = ?", c.ID).
			Updates(map[string]any{
				"unit_price": c.UnitPrice,
				"move_qty":   c.MoveQty,
				"position":   c.Position,
				"updated_at": c.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := db.Create(c).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteLine deletes a line together with its contributions
func (r *GormBMRTemplateRepository) DeleteLine(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Delete(&models.BMRContributionModel{}, "line_id = ?", id).Error; err != nil {
		return err
	}
	result := db.Delete(&models.BMRTemplateLineModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ stock.BMRTemplateRepository = (*GormBMRTemplateRepository)(nil)
