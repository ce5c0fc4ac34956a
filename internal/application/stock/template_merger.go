package stock

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TemplateMerger folds scanned lots into BMR template lines. Every scanned
// quantity is moved out of the lot's available stock like a BMR move.
type TemplateMerger struct {
	runner *runner
	logger *zap.Logger
}

// NewTemplateMerger creates a new TemplateMerger
func NewTemplateMerger(scope TransactionScope, settings Settings) *TemplateMerger {
	r := newRunner(scope, settings)
	return &TemplateMerger{runner: r, logger: r.settings.Logger}
}

type preparedScan struct {
	barcode   string
	partNo    string
	quantity  decimal.Decimal
	unitPrice *decimal.Decimal
}

// MergeContribution merges a batch of scans into the template. Scans are
// grouped by part number; each group lands in the template line of that part
// number. Nothing is written unless every scan can be served.
func (m *TemplateMerger) MergeContribution(ctx context.Context, req MergeContributionRequest) (*MergeContributionResult, error) {
	templateID := strings.TrimSpace(req.TemplateID)
	if templateID == "" {
		return nil, stock.NewValidationError("template ID is required")
	}
	if len(req.Scans) == 0 {
		return nil, stock.NewValidationError("at least one scan is required")
	}

	scans := make([]preparedScan, 0, len(req.Scans))
	for _, s := range req.Scans {
		barcode := strings.TrimSpace(s.Barcode)
		if barcode == "" {
			return nil, stock.NewValidationError("barcode is required for every scan")
		}
		qty, err := stock.ValidateAmount(s.Quantity)
		if err != nil {
			return nil, err
		}
		if s.UnitPrice != nil && s.UnitPrice.IsNegative() {
			return nil, stock.NewInvalidAmountError(s.UnitPrice.String()).WithDetail("barcode", barcode)
		}
		scans = append(scans, preparedScan{
			barcode:   barcode,
			partNo:    strings.TrimSpace(s.PartNo),
			quantity:  qty,
			unitPrice: s.UnitPrice,
		})
	}

	ids, err := m.lookupVariantIDs(ctx, scans)
	if err != nil {
		return nil, err
	}
	release, err := acquireAll(ctx, m.runner.settings.Locker, []string{TemplateLockKey(templateID)}, ids...)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MergeContributionResult
	err = m.runner.run(ctx, "merge-contribution", func(uow *unitOfWork) error {
		r, err := m.mergeIn(uow, templateID, scans)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("bmr contributions merged",
		zap.String("template_id", templateID),
		zap.Int("scans", len(scans)),
		zap.Int("lines", len(result.Lines)),
	)
	return result, nil
}

func (m *TemplateMerger) mergeIn(uow *unitOfWork, templateID string, scans []preparedScan) (*MergeContributionResult, error) {
	ids := make([]uuid.UUID, 0, len(scans))
	byCode := make(map[string]*stock.Variant, len(scans))
	for _, s := range scans {
		if _, ok := byCode[s.barcode]; ok {
			continue
		}
		v, err := uow.repos.Variants().FindByScanCode(uow.ctx, s.barcode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, stock.NewNotFoundError("variant", s.barcode)
			}
			return nil, stepError(StepLoadVariant, err)
		}
		byCode[s.barcode] = v
		ids = append(ids, v.ID)
	}

	// lock rows in ID order
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	variants := make(map[uuid.UUID]*stock.Variant, len(ids))
	for _, id := range ids {
		v, err := uow.variantForUpdate(id)
		if err != nil {
			return nil, err
		}
		variants[id] = v
	}
	for code, v := range byCode {
		byCode[code] = variants[v.ID]
	}

	partNos := make(map[uuid.UUID]string)
	required := make(map[uuid.UUID]decimal.Decimal)
	for _, s := range scans {
		v := byCode[s.barcode]
		partNo, ok := partNos[v.PartID]
		if !ok {
			part, err := uow.repos.Parts().FindByID(uow.ctx, v.PartID)
			if err != nil {
				return nil, stepError(StepMergeTemplate, err)
			}
			partNo = part.PartNo
			partNos[v.PartID] = partNo
		}
		if s.partNo != "" && s.partNo != partNo {
			return nil, stock.NewValidationError("barcode " + s.barcode + " belongs to part " + partNo + ", not " + s.partNo)
		}
		required[v.ID] = required[v.ID].Add(s.quantity)
	}
	for _, id := range ids {
		if err := variants[id].CanTake(stock.BucketAvailable, required[id]); err != nil {
			return nil, err
		}
	}

	result := &MergeContributionResult{TemplateID: templateID}
	scanned := make([]stock.ScannedContribution, 0, len(scans))
	for _, s := range scans {
		v := byCode[s.barcode]
		before := v.Clone()
		if err := v.Transfer(stock.BucketAvailable, stock.BucketUsing, s.quantity); err != nil {
			return nil, err
		}
		if err := uow.saveVariant(before, v); err != nil {
			return nil, err
		}
		entry, err := uow.record(v, Movement{
			Direction:   stock.DirectionOut,
			Bucket:      stock.BucketAvailable,
			Amount:      s.quantity,
			Reference:   stock.RefBMRProcessing,
			ReferenceID: templateID,
		})
		if err != nil {
			return nil, err
		}
		result.Movements = append(result.Movements, ToMovementResponse(entry))

		price := v.UnitPrice
		if s.unitPrice != nil {
			price = *s.unitPrice
		}
		scanned = append(scanned, stock.ScannedContribution{
			PartNo:    partNos[v.PartID],
			VariantID: v.ID,
			PartID:    v.PartID,
			ContributionDetail: stock.ContributionDetail{
				Barcode:   v.ScanCode,
				UnitPrice: price,
				Quantity:  s.quantity,
			},
		})
	}

	existing := make([]*stock.BMRTemplateLine, 0, len(partNos))
	befores := make(map[string]*stock.BMRTemplateLine, len(partNos))
	for _, s := range scanned {
		if _, seen := befores[s.PartNo]; seen {
			continue
		}
		line, before, err := findLine(uow, templateID, s.PartNo)
		if err != nil {
			return nil, err
		}
		befores[s.PartNo] = before
		if before != nil {
			existing = append(existing, line)
		}
	}

	lines, err := stock.MergeScans(templateID, existing, scanned)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if err := uow.saveLine(befores[line.PartNo], line); err != nil {
			return nil, err
		}
		result.Lines = append(result.Lines, ToBMRTemplateLineResponse(line))
	}

	for _, id := range ids {
		v := variants[id]
		if _, err := uow.recompute(v.PartID); err != nil {
			return nil, err
		}
		result.Variants = append(result.Variants, ToVariantResponse(v))
	}
	return result, nil
}

func (m *TemplateMerger) lookupVariantIDs(ctx context.Context, scans []preparedScan) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.runner.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		for _, s := range scans {
			v, err := repos.Variants().FindByScanCode(ctx, s.barcode)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return stock.NewNotFoundError("variant", s.barcode)
				}
				return stepError(StepLoadVariant, err)
			}
			ids = append(ids, v.ID)
		}
		return nil
	})
	return ids, err
}

// findLine loads the line of a template for a part number. When none exists a
// new line is returned with a nil before state.
func findLine(uow *unitOfWork, templateID, partNo string) (line, before *stock.BMRTemplateLine, err error) {
	line, err = uow.repos.BMRTemplates().FindLine(uow.ctx, templateID, partNo)
	switch {
	case err == nil:
		return line, line.Clone(), nil
	case errors.Is(err, shared.ErrNotFound):
		line, err = stock.NewBMRTemplateLine(templateID, partNo)
		return line, nil, err
	default:
		return nil, nil, stepError(StepMergeTemplate, err)
	}
}

// mergeMoved records quantity moved to a BMR template as a contribution of
// the variant to the line of its part number.
func mergeMoved(uow *unitOfWork, templateID string, v *stock.Variant, amount decimal.Decimal) (stock.BMRContribution, error) {
	part, err := uow.repos.Parts().FindByID(uow.ctx, v.PartID)
	if err != nil {
		return stock.BMRContribution{}, stepError(StepMergeTemplate, err)
	}
	line, before, err := findLine(uow, templateID, part.PartNo)
	if err != nil {
		return stock.BMRContribution{}, err
	}
	contribution, err := line.Merge(v.ID, v.PartID, stock.ContributionDetail{
		Barcode:   v.ScanCode,
		UnitPrice: v.UnitPrice,
		Quantity:  amount,
	})
	if err != nil {
		return stock.BMRContribution{}, err
	}
	merged := *contribution
	if err := uow.saveLine(before, line); err != nil {
		return stock.BMRContribution{}, err
	}
	return merged, nil
}
