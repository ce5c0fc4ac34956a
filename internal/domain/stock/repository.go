package stock

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// PartRepository persists part aggregate records
type PartRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Part, error)
	FindByPartNo(ctx context.Context, partNo string) (*Part, error)
	// FindByIDForUpdate loads the part and locks its row until the surrounding
	// transaction ends. Stores without row locks return the plain row.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Part, error)
	Create(ctx context.Context, part *Part) error
	// Save updates the part with an optimistic version check
	Save(ctx context.Context, part *Part) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// VariantRepository persists variants
type VariantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Variant, error)
	FindByScanCode(ctx context.Context, scanCode string) (*Variant, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Variant, error)
	// FindByPartID lists the variants of a part ordered by received date
	FindByPartID(ctx context.Context, partID uuid.UUID) ([]Variant, error)
	// FindByPartIDForUpdate lists and locks the variants of a part in ID order
	FindByPartIDForUpdate(ctx context.Context, partID uuid.UUID) ([]Variant, error)
	ExistsByScanCode(ctx context.Context, scanCode string) (bool, error)
	CountByPartID(ctx context.Context, partID uuid.UUID) (int64, error)
	Create(ctx context.Context, variant *Variant) error
	// Save updates the variant with an optimistic version check
	Save(ctx context.Context, variant *Variant) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MovementRepository is the append-only movement ledger
type MovementRepository interface {
	Append(ctx context.Context, entry *MovementEntry) error
	FindByVariantID(ctx context.Context, variantID uuid.UUID, filter shared.Filter) ([]MovementEntry, error)
	CountByVariantID(ctx context.Context, variantID uuid.UUID) (int64, error)
	FindByPartID(ctx context.Context, partID uuid.UUID, filter shared.Filter) ([]MovementEntry, error)
}

// ProductionItemRepository persists production destination records
type ProductionItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ProductionItem, error)
	FindByVariantAndDepartment(ctx context.Context, variantID uuid.UUID, departmentID string) (*ProductionItem, error)
	FindByVariantID(ctx context.Context, variantID uuid.UUID) ([]ProductionItem, error)
	Create(ctx context.Context, item *ProductionItem) error
	Save(ctx context.Context, item *ProductionItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SaleItemRepository persists sales destination records
type SaleItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*SaleItem, error)
	FindByVariantAndSale(ctx context.Context, variantID uuid.UUID, saleRef string) (*SaleItem, error)
	FindByVariantID(ctx context.Context, variantID uuid.UUID) ([]SaleItem, error)
	Create(ctx context.Context, item *SaleItem) error
	Save(ctx context.Context, item *SaleItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BMRTemplateRepository persists BMR template lines together with their contributions
type BMRTemplateRepository interface {
	// FindLine returns the line of a template for a part number, with contributions
	FindLine(ctx context.Context, templateID, partNo string) (*BMRTemplateLine, error)
	FindLineByID(ctx context.Context, id uuid.UUID) (*BMRTemplateLine, error)
	// FindLineByContributionID returns the line holding a contribution
	FindLineByContributionID(ctx context.Context, contributionID uuid.UUID) (*BMRTemplateLine, error)
	FindLinesByTemplate(ctx context.Context, templateID string) ([]BMRTemplateLine, error)
	FindContributionsByVariantID(ctx context.Context, variantID uuid.UUID) ([]BMRContribution, error)
	// SaveLine upserts the line and its contributions; contributions no longer
	// on the line are deleted
	SaveLine(ctx context.Context, line *BMRTemplateLine) error
	DeleteLine(ctx context.Context, id uuid.UUID) error
}
