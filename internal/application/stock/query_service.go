package stock

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
)

// QueryService serves read-only views of parts, variants, the ledger and BMR lines.
type QueryService struct {
	scope TransactionScope
}

// NewQueryService creates a new QueryService
func NewQueryService(scope TransactionScope) *QueryService {
	return &QueryService{scope: scope}
}

// GetPartWithVariants returns a part, its variants in FIFO order and the
// display totals derived from them.
func (s *QueryService) GetPartWithVariants(ctx context.Context, partNo string) (*PartDetailResponse, error) {
	partNo = strings.TrimSpace(partNo)
	var result *PartDetailResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		part, err := repos.Parts().FindByPartNo(ctx, partNo)
		if err != nil {
			return partLookupError(partNo, err)
		}
		variants, err := repos.Variants().FindByPartID(ctx, part.ID)
		if err != nil {
			return stepError(StepLoadVariant, err)
		}
		variants = stock.SortFIFO(variants)
		result = &PartDetailResponse{
			Part:     ToPartResponse(part),
			Variants: ToVariantResponses(variants),
			Display:  ToDisplayTotalsResponse(stock.ComputeDisplayTotals(variants)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetVariant returns a variant by scan code
func (s *QueryService) GetVariant(ctx context.Context, scanCode string) (*VariantResponse, error) {
	scanCode = strings.TrimSpace(scanCode)
	var result VariantResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		v, err := repos.Variants().FindByScanCode(ctx, scanCode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return stock.NewNotFoundError("variant", scanCode)
			}
			return stepError(StepLoadVariant, err)
		}
		result = ToVariantResponse(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMovements returns a page of the ledger of one variant, newest first,
// with the total number of entries.
func (s *QueryService) ListMovements(ctx context.Context, scanCode string, filter MovementListFilter) ([]MovementResponse, int64, error) {
	scanCode = strings.TrimSpace(scanCode)
	f := shared.DefaultFilter()
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}

	var (
		entries []stock.MovementEntry
		total   int64
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		v, err := repos.Variants().FindByScanCode(ctx, scanCode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return stock.NewNotFoundError("variant", scanCode)
			}
			return stepError(StepLoadVariant, err)
		}
		entries, err = repos.Movements().FindByVariantID(ctx, v.ID, f)
		if err != nil {
			return stepError(StepAppendLedger, err)
		}
		total, err = repos.Movements().CountByVariantID(ctx, v.ID)
		return stepError(StepAppendLedger, err)
	})
	if err != nil {
		return nil, 0, err
	}
	return ToMovementResponses(entries), total, nil
}

// ListTemplateLines returns the lines of a BMR template in part number order
func (s *QueryService) ListTemplateLines(ctx context.Context, templateID string) ([]BMRTemplateLineResponse, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return nil, stock.NewValidationError("template ID is required")
	}
	var lines []stock.BMRTemplateLine
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		lines, err = repos.BMRTemplates().FindLinesByTemplate(ctx, templateID)
		return stepError(StepMergeTemplate, err)
	})
	if err != nil {
		return nil, err
	}
	responses := make([]BMRTemplateLineResponse, len(lines))
	for i := range lines {
		responses[i] = ToBMRTemplateLineResponse(&lines[i])
	}
	return responses, nil
}
