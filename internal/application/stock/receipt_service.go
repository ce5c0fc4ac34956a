package stock

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceiptService handles receipts, manual edits, testing outcomes and
// deletions of variants and parts.
type ReceiptService struct {
	runner *runner
	logger *zap.Logger
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(scope TransactionScope, settings Settings) *ReceiptService {
	r := newRunner(scope, settings)
	return &ReceiptService{runner: r, logger: r.settings.Logger}
}

// Receive registers a received lot as a new variant, creating the part on its
// first receipt.
func (s *ReceiptService) Receive(ctx context.Context, req ReceiveRequest) (*ReceiptResult, error) {
	partNo := strings.TrimSpace(req.PartNo)
	if partNo == "" {
		return nil, stock.NewValidationError("part number is required")
	}
	if _, err := stock.ValidateAmount(req.Quantity); err != nil {
		return nil, err
	}

	release, err := acquireAll(ctx, s.runner.settings.Locker, []string{PartLockKey(partNo)})
	if err != nil {
		return nil, err
	}
	defer release()

	var result *ReceiptResult
	err = s.runner.run(ctx, "receive", func(uow *unitOfWork) error {
		exists, err := uow.repos.Variants().ExistsByScanCode(uow.ctx, strings.TrimSpace(req.ScanCode))
		if err != nil {
			return stepError(StepLoadVariant, err)
		}
		if exists {
			return stock.NewDuplicateScanCodeError(strings.TrimSpace(req.ScanCode))
		}

		created := false
		part, err := uow.repos.Parts().FindByPartNo(uow.ctx, partNo)
		if errors.Is(err, shared.ErrNotFound) {
			part, err = stock.NewPart(partNo, req.Name)
			created = true
		}
		if err != nil {
			return stepError(StepUpdatePart, err)
		}

		v, err := stock.NewVariant(part.ID, stock.ReceiptInfo{
			ScanCode:        req.ScanCode,
			LotNo:           req.LotNo,
			SerialNo:        req.SerialNo,
			UnitPrice:       req.UnitPrice,
			Quantity:        req.Quantity,
			RequiresTesting: req.RequiresTesting,
			ReceivedDate:    req.ReceivedDate,
		})
		if err != nil {
			return err
		}

		if created {
			if err := uow.createPart(part); err != nil {
				return err
			}
		}
		if err := uow.createVariant(v); err != nil {
			return err
		}
		bucket := stock.BucketAvailable
		if req.RequiresTesting {
			bucket = stock.BucketPending
		}
		entry, err := uow.record(v, Movement{
			Direction: stock.DirectionIn,
			Bucket:    bucket,
			Amount:    v.Qty(bucket),
			Reference: stock.RefManual,
			Reason:    req.Reason,
		})
		if err != nil {
			return err
		}
		if _, err := uow.recompute(part.ID); err != nil {
			return err
		}
		refreshed, err := uow.repos.Parts().FindByID(uow.ctx, part.ID)
		if err != nil {
			return stepError(StepRecompute, err)
		}

		result = &ReceiptResult{
			Part:        ToPartResponse(refreshed),
			Variant:     ToVariantResponse(v),
			Movement:    ToMovementResponse(entry),
			PartCreated: created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock received",
		zap.String("part_no", partNo),
		zap.String("scan_code", result.Variant.ScanCode),
		zap.Bool("part_created", result.PartCreated),
		zap.Bool("requires_testing", req.RequiresTesting),
	)
	return result, nil
}

// UpdateVariant applies a manual edit. Every changed bucket is recorded in
// the ledger as a manual-update entry carrying the signed delta.
func (s *ReceiptService) UpdateVariant(ctx context.Context, req UpdateVariantRequest) (*VariantUpdateResult, error) {
	for _, q := range []*decimal.Decimal{req.AvailableQty, req.PendingTestingQty, req.UsingQty, req.UnitPrice} {
		if q != nil && q.IsNegative() {
			return nil, stock.NewInvalidAmountError(q.String())
		}
	}
	target, err := s.runner.lookupVariant(ctx, req.ScanCode)
	if err != nil {
		return nil, err
	}
	release, err := acquireAll(ctx, s.runner.settings.Locker, nil, target.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *VariantUpdateResult
	err = s.runner.run(ctx, "update-variant", func(uow *unitOfWork) error {
		v, err := uow.variantForUpdate(target.ID)
		if err != nil {
			return err
		}
		before := v.Clone()

		available, pending, using := v.AvailableQty, v.PendingTestingQty, v.UsingQty
		if req.AvailableQty != nil {
			available = *req.AvailableQty
		}
		if req.PendingTestingQty != nil {
			pending = *req.PendingTestingQty
		}
		if req.UsingQty != nil {
			using = *req.UsingQty
		}
		if using.LessThan(v.UsingQty) {
			held, _, err := uow.heldByDestinations(v.ID)
			if err != nil {
				return err
			}
			if using.LessThan(held) {
				return stock.NewInsufficientQuantityError("using", using, held).
					WithDetail("reason", "destination records hold more than the new using quantity")
			}
		}
		deltas, err := v.SetQuantities(available, pending, using)
		if err != nil {
			return err
		}

		if req.UnitPrice != nil || req.LotNo != nil || req.SerialNo != nil {
			lotNo, serialNo, price := v.LotNo, v.SerialNo, v.UnitPrice
			if req.LotNo != nil {
				lotNo = *req.LotNo
			}
			if req.SerialNo != nil {
				serialNo = *req.SerialNo
			}
			if req.UnitPrice != nil {
				price = *req.UnitPrice
			}
			if err := v.UpdateDetails(lotNo, serialNo, price); err != nil {
				return err
			}
		}
		if v.Version == before.Version {
			result = &VariantUpdateResult{Variant: ToVariantResponse(v), Movements: []MovementResponse{}}
			return nil
		}

		if err := uow.saveVariant(before, v); err != nil {
			return err
		}
		movements := make([]MovementResponse, 0, len(deltas))
		for _, d := range deltas {
			dir := stock.DirectionIn
			if d.Delta.IsNegative() {
				dir = stock.DirectionOut
			}
			entry, err := uow.record(v, Movement{
				Direction: dir,
				Bucket:    d.Bucket,
				Amount:    d.Delta.Abs(),
				Reference: stock.RefManualUpdate,
				Reason:    req.Reason,
			})
			if err != nil {
				return err
			}
			movements = append(movements, ToMovementResponse(entry))
		}
		totals, err := uow.recompute(v.PartID)
		if err != nil {
			return err
		}
		result = &VariantUpdateResult{
			Variant:    ToVariantResponse(v),
			Movements:  movements,
			PartTotals: ToTotalsResponse(totals),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveTesting records a testing outcome. Completed testing releases the
// pending quantity to available; rejected testing writes it off.
func (s *ReceiptService) ResolveTesting(ctx context.Context, req ResolveTestingRequest) (*VariantUpdateResult, error) {
	if req.Outcome != stock.TestingCompleted && req.Outcome != stock.TestingRejected {
		return nil, stock.NewValidationError("testing outcome must be completed or rejected")
	}
	target, err := s.runner.lookupVariant(ctx, req.ScanCode)
	if err != nil {
		return nil, err
	}
	release, err := acquireAll(ctx, s.runner.settings.Locker, nil, target.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *VariantUpdateResult
	err = s.runner.run(ctx, "resolve-testing", func(uow *unitOfWork) error {
		v, err := uow.variantForUpdate(target.ID)
		if err != nil {
			return err
		}
		before := v.Clone()
		released, err := v.ResolveTesting(req.Outcome)
		if err != nil {
			return err
		}
		if err := uow.saveVariant(before, v); err != nil {
			return err
		}

		movements := []MovementResponse{}
		if released.IsPositive() {
			m := Movement{
				Direction: stock.DirectionIn,
				Bucket:    stock.BucketAvailable,
				Amount:    released,
				Reference: stock.RefTesting,
				Reason:    req.Reason,
			}
			if req.Outcome == stock.TestingRejected {
				m.Direction = stock.DirectionOut
				m.Bucket = stock.BucketPending
			}
			entry, err := uow.record(v, m)
			if err != nil {
				return err
			}
			movements = append(movements, ToMovementResponse(entry))
		}
		totals, err := uow.recompute(v.PartID)
		if err != nil {
			return err
		}
		result = &VariantUpdateResult{
			Variant:    ToVariantResponse(v),
			Movements:  movements,
			PartTotals: ToTotalsResponse(totals),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("testing resolved",
		zap.String("scan_code", result.Variant.ScanCode),
		zap.String("outcome", string(req.Outcome)),
	)
	return result, nil
}

// OverridePartAvailable sets a part's total available quantity by hand. The
// difference is pushed to the variants (an increase lands on the newest lot,
// a decrease is taken oldest lot first), each change recorded as a
// manual-update entry, and the part is then recomputed from its variants.
func (s *ReceiptService) OverridePartAvailable(ctx context.Context, req OverrideAvailableRequest) (*OverrideResult, error) {
	partNo := strings.TrimSpace(req.PartNo)
	if req.TargetAvailable.IsNegative() {
		return nil, stock.NewInvalidAmountError(req.TargetAvailable.String()).WithDetail("field", "available")
	}
	target := stock.Round(req.TargetAvailable)

	variantIDs, err := s.runner.variantIDsOf(ctx, partNo)
	if err != nil {
		return nil, err
	}

	release, err := acquireAll(ctx, s.runner.settings.Locker, []string{PartLockKey(partNo)}, variantIDs...)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *OverrideResult
	err = s.runner.run(ctx, "override-available", func(uow *unitOfWork) error {
		part, err := uow.repos.Parts().FindByPartNo(uow.ctx, partNo)
		if err != nil {
			return partLookupError(partNo, err)
		}
		variants, err := uow.repos.Variants().FindByPartIDForUpdate(uow.ctx, part.ID)
		if err != nil {
			return stepError(StepLoadVariant, err)
		}
		current := stock.ComputeTotals(variants).Available
		delta := target.Sub(current)

		movements := []MovementResponse{}
		switch {
		case delta.IsPositive():
			if len(variants) == 0 {
				return stock.NewValidationError("part " + partNo + " has no variant to hold quantity")
			}
			ordered := stock.SortFIFO(variants)
			newest := ordered[len(ordered)-1]
			v := findVariant(variants, newest.ID)
			before := v.Clone()
			if err := v.Receive(stock.BucketAvailable, delta); err != nil {
				return err
			}
			if err := uow.saveVariant(before, v); err != nil {
				return err
			}
			entry, err := uow.record(v, Movement{
				Direction: stock.DirectionIn,
				Bucket:    stock.BucketAvailable,
				Amount:    delta,
				Reference: stock.RefManualUpdate,
				Reason:    req.Reason,
			})
			if err != nil {
				return err
			}
			movements = append(movements, ToMovementResponse(entry))

		case delta.IsNegative():
			plan := stock.FIFOIssue(variants, delta.Neg())
			for _, line := range plan.Lines {
				v := findVariant(variants, line.VariantID)
				before := v.Clone()
				if err := v.Consume(stock.BucketAvailable, line.Quantity); err != nil {
					return err
				}
				if err := uow.saveVariant(before, v); err != nil {
					return err
				}
				entry, err := uow.record(v, Movement{
					Direction: stock.DirectionOut,
					Bucket:    stock.BucketAvailable,
					Amount:    line.Quantity,
					Reference: stock.RefManualUpdate,
					Reason:    req.Reason,
				})
				if err != nil {
					return err
				}
				movements = append(movements, ToMovementResponse(entry))
			}
		}

		if _, err := uow.recompute(part.ID); err != nil {
			return err
		}
		refreshed, err := uow.repos.Parts().FindByID(uow.ctx, part.ID)
		if err != nil {
			return stepError(StepRecompute, err)
		}
		result = &OverrideResult{Part: ToPartResponse(refreshed), Movements: movements}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("part available overridden",
		zap.String("part_no", partNo),
		zap.String("target", stock.Format(target)),
		zap.Int("movements", len(result.Movements)),
	)
	return result, nil
}

// DeleteVariant removes an empty variant. The last variant of a part cannot
// be deleted on its own; delete the part instead.
func (s *ReceiptService) DeleteVariant(ctx context.Context, scanCode string) error {
	target, err := s.runner.lookupVariant(ctx, scanCode)
	if err != nil {
		return err
	}
	release, err := acquireAll(ctx, s.runner.settings.Locker, nil, target.ID)
	if err != nil {
		return err
	}
	defer release()

	err = s.runner.run(ctx, "delete-variant", func(uow *unitOfWork) error {
		v, err := uow.variantForUpdate(target.ID)
		if err != nil {
			return err
		}
		if err := v.CheckDeletable(); err != nil {
			return err
		}
		if _, records, err := uow.heldByDestinations(v.ID); err != nil {
			return err
		} else if records > 0 {
			return stock.NewNonDeletableError("variant", v.ScanCode, "destination records still reference it").
				WithDetail("records", records)
		}
		count, err := uow.repos.Variants().CountByPartID(uow.ctx, v.PartID)
		if err != nil {
			return stepError(StepLoadVariant, err)
		}
		if count <= 1 {
			return stock.NewNonDeletableError("variant", v.ScanCode, "it is the last variant of its part")
		}
		if err := uow.deleteVariant(v); err != nil {
			return err
		}
		_, err = uow.recompute(v.PartID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("variant deleted", zap.String("scan_code", target.ScanCode))
	return nil
}

// DeletePart removes a part together with its variants once none of them
// holds any quantity.
func (s *ReceiptService) DeletePart(ctx context.Context, partNo string) error {
	partNo = strings.TrimSpace(partNo)
	variantIDs, err := s.runner.variantIDsOf(ctx, partNo)
	if err != nil {
		return err
	}
	release, err := acquireAll(ctx, s.runner.settings.Locker, []string{PartLockKey(partNo)}, variantIDs...)
	if err != nil {
		return err
	}
	defer release()

	err = s.runner.run(ctx, "delete-part", func(uow *unitOfWork) error {
		part, err := uow.repos.Parts().FindByPartNo(uow.ctx, partNo)
		if err != nil {
			return partLookupError(partNo, err)
		}
		// variant rows first, then the part row, the order moves use
		variants, err := uow.repos.Variants().FindByPartIDForUpdate(uow.ctx, part.ID)
		if err != nil {
			return stepError(StepLoadVariant, err)
		}
		part, err = uow.repos.Parts().FindByIDForUpdate(uow.ctx, part.ID)
		if err != nil {
			return stepError(StepUpdatePart, err)
		}
		if err := part.CheckDeletable(variants); err != nil {
			return err
		}
		for i := range variants {
			if err := uow.deleteVariant(&variants[i]); err != nil {
				return err
			}
		}
		return uow.deletePart(part)
	})
	if err != nil {
		return err
	}

	s.logger.Info("part deleted", zap.String("part_no", partNo))
	return nil
}

func partLookupError(partNo string, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return stock.NewNotFoundError("part", partNo)
	}
	return stepError(StepUpdatePart, err)
}

func findVariant(variants []stock.Variant, id uuid.UUID) *stock.Variant {
	for i := range variants {
		if variants[i].ID == id {
			return &variants[i]
		}
	}
	return nil
}
