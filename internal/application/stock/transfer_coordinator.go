package stock

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferCoordinator moves variant quantity between available stock and the
// destinations (production, sales, BMR) as one unit of work per call.
type TransferCoordinator struct {
	runner *runner
	logger *zap.Logger
}

// NewTransferCoordinator creates a new TransferCoordinator
func NewTransferCoordinator(scope TransactionScope, settings Settings) *TransferCoordinator {
	r := newRunner(scope, settings)
	return &TransferCoordinator{runner: r, logger: r.settings.Logger}
}

// Move takes amount out of the available bucket of a variant and places it in
// the using bucket, held by the destination record of (variant, destination).
func (c *TransferCoordinator) Move(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	amount, err := stock.ValidateAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	dest := req.Destination
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	target, err := c.runner.lookupVariant(ctx, req.ScanCode)
	if err != nil {
		return nil, err
	}

	var leading []string
	if dest.Kind == stock.DestinationBMR {
		leading = append(leading, TemplateLockKey(dest.TemplateID))
	}
	release, err := acquireAll(ctx, c.runner.settings.Locker, leading, target.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MoveResult
	err = c.runner.run(ctx, "move", func(uow *unitOfWork) error {
		v, err := uow.variantForUpdate(target.ID)
		if err != nil {
			return err
		}
		before := v.Clone()
		if err := v.Transfer(stock.BucketAvailable, stock.BucketUsing, amount); err != nil {
			return err
		}
		if err := uow.saveVariant(before, v); err != nil {
			return err
		}
		entry, err := uow.record(v, Movement{
			Direction:   stock.DirectionOut,
			Bucket:      stock.BucketAvailable,
			Amount:      amount,
			Reference:   dest.Kind.MoveReference(),
			ReferenceID: dest.ContextKey(),
			Reason:      req.Reason,
		})
		if err != nil {
			return err
		}
		totals, err := uow.recompute(v.PartID)
		if err != nil {
			return err
		}
		held, err := c.upsertDestination(uow, v, dest, amount)
		if err != nil {
			return err
		}

		result = &MoveResult{
			Variant:     ToVariantResponse(v),
			Destination: &held,
			Movement:    ToMovementResponse(entry),
			PartTotals:  ToTotalsResponse(totals),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("stock moved",
		zap.String("scan_code", result.Variant.ScanCode),
		zap.String("destination", string(dest.Kind)),
		zap.String("context", dest.ContextKey()),
		zap.String("amount", stock.Format(amount)),
	)
	return result, nil
}

// Return puts amount held by a destination record back into available stock.
// A destination record whose outstanding quantity reaches zero is deleted.
func (c *TransferCoordinator) Return(ctx context.Context, req ReturnRequest) (*MoveResult, error) {
	return c.release(ctx, "return", req.Kind, req.DestinationID, req.Amount, req.Reason, true)
}

// Consume removes amount held by a destination record from the variant's
// using bucket for good, e.g. when production used up the material.
func (c *TransferCoordinator) Consume(ctx context.Context, req ConsumeRequest) (*MoveResult, error) {
	return c.release(ctx, "consume", req.Kind, req.DestinationID, req.Amount, req.Reason, false)
}

func (c *TransferCoordinator) release(ctx context.Context, op string, kind stock.DestinationKind, destinationID uuid.UUID, rawAmount decimal.Decimal, reason string, toStock bool) (*MoveResult, error) {
	amount, err := stock.ValidateAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if !kind.IsValid() {
		return nil, stock.NewValidationError("unknown destination kind " + string(kind))
	}

	var probe *heldQuantity
	err = c.runner.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		probe, err = loadHeld(ctx, repos, kind, destinationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var leading []string
	if kind == stock.DestinationBMR {
		leading = append(leading, TemplateLockKey(probe.contextKey))
	}
	unlock, err := acquireAll(ctx, c.runner.settings.Locker, leading, probe.variantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *MoveResult
	err = c.runner.run(ctx, op, func(uow *unitOfWork) error {
		held, err := loadHeld(uow.ctx, uow.repos, kind, destinationID)
		if err != nil {
			return err
		}
		if held.moveQty.LessThan(amount) {
			return stock.NewInsufficientQuantityError(held.holder, held.moveQty, amount)
		}
		v, err := uow.variantForUpdate(held.variantID)
		if err != nil {
			return err
		}

		before := v.Clone()
		movement := Movement{
			Amount:      amount,
			ReferenceID: destinationID.String(),
			Reason:      reason,
		}
		if toStock {
			err = v.Transfer(stock.BucketUsing, stock.BucketAvailable, amount)
			movement.Direction = stock.DirectionIn
			movement.Bucket = stock.BucketAvailable
			movement.Reference = kind.ReturnReference()
		} else {
			err = v.Consume(stock.BucketUsing, amount)
			movement.Direction = stock.DirectionOut
			movement.Bucket = stock.BucketUsing
			movement.Reference = kind.MoveReference()
		}
		if err != nil {
			return err
		}

		if err := uow.saveVariant(before, v); err != nil {
			return err
		}
		entry, err := uow.record(v, movement)
		if err != nil {
			return err
		}
		totals, err := uow.recompute(v.PartID)
		if err != nil {
			return err
		}
		remaining, err := held.release(uow, amount)
		if err != nil {
			return err
		}

		result = &MoveResult{
			Variant:     ToVariantResponse(v),
			Destination: remaining,
			Settled:     remaining == nil,
			Movement:    ToMovementResponse(entry),
			PartTotals:  ToTotalsResponse(totals),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("destination quantity released",
		zap.String("operation", op),
		zap.String("destination", string(kind)),
		zap.String("destination_id", destinationID.String()),
		zap.String("amount", stock.Format(amount)),
		zap.Bool("settled", result.Settled),
	)
	return result, nil
}

// upsertDestination adds amount to the record held for (variant, destination),
// creating it on first move.
func (c *TransferCoordinator) upsertDestination(uow *unitOfWork, v *stock.Variant, dest stock.Destination, amount decimal.Decimal) (DestinationResponse, error) {
	switch dest.Kind {
	case stock.DestinationProduction:
		var before *stock.ProductionItem
		item, err := uow.repos.ProductionItems().FindByVariantAndDepartment(uow.ctx, v.ID, dest.DepartmentID)
		switch {
		case err == nil:
			snapshot := *item
			before = &snapshot
		case errors.Is(err, shared.ErrNotFound):
			item = stock.NewProductionItem(v, dest.DepartmentID)
		default:
			return DestinationResponse{}, stepError(StepUpsertDestination, err)
		}
		item.Add(amount)
		item.Touch()
		if err := uow.saveProductionItem(before, item); err != nil {
			return DestinationResponse{}, err
		}
		return ToProductionItemResponse(item), nil

	case stock.DestinationSales:
		var before *stock.SaleItem
		item, err := uow.repos.SaleItems().FindByVariantAndSale(uow.ctx, v.ID, dest.SaleRef)
		switch {
		case err == nil:
			snapshot := *item
			before = &snapshot
		case errors.Is(err, shared.ErrNotFound):
			item = stock.NewSaleItem(v, dest.SaleRef)
		default:
			return DestinationResponse{}, stepError(StepUpsertDestination, err)
		}
		item.Add(amount)
		item.Touch()
		if err := uow.saveSaleItem(before, item); err != nil {
			return DestinationResponse{}, err
		}
		return ToSaleItemResponse(item), nil

	default:
		contribution, err := mergeMoved(uow, dest.TemplateID, v, amount)
		if err != nil {
			return DestinationResponse{}, err
		}
		return ToContributionDestinationResponse(&contribution), nil
	}
}

// heldQuantity is a destination record loaded for a return or consumption.
type heldQuantity struct {
	holder     string
	variantID  uuid.UUID
	contextKey string
	moveQty    decimal.Decimal
	// release takes amount off the record and persists it. It returns nil
	// when the record was settled and deleted.
	release func(uow *unitOfWork, amount decimal.Decimal) (*DestinationResponse, error)
}

func loadHeld(ctx context.Context, repos TransactionalRepositories, kind stock.DestinationKind, id uuid.UUID) (*heldQuantity, error) {
	switch kind {
	case stock.DestinationProduction:
		item, err := repos.ProductionItems().FindByID(ctx, id)
		if err != nil {
			return nil, destinationLookupError("production item", id, err)
		}
		return &heldQuantity{
			holder:     "production item",
			variantID:  item.VariantID,
			contextKey: item.DepartmentID,
			moveQty:    item.MoveQty,
			release: func(uow *unitOfWork, amount decimal.Decimal) (*DestinationResponse, error) {
				before := *item
				if err := item.Release("production item", amount); err != nil {
					return nil, err
				}
				item.Touch()
				if item.IsSettled() {
					return nil, uow.deleteProductionItem(&before)
				}
				if err := uow.saveProductionItem(&before, item); err != nil {
					return nil, err
				}
				resp := ToProductionItemResponse(item)
				return &resp, nil
			},
		}, nil

	case stock.DestinationSales:
		item, err := repos.SaleItems().FindByID(ctx, id)
		if err != nil {
			return nil, destinationLookupError("sale item", id, err)
		}
		return &heldQuantity{
			holder:     "sale item",
			variantID:  item.VariantID,
			contextKey: item.SaleRef,
			moveQty:    item.MoveQty,
			release: func(uow *unitOfWork, amount decimal.Decimal) (*DestinationResponse, error) {
				before := *item
				if err := item.Release("sale item", amount); err != nil {
					return nil, err
				}
				item.Touch()
				if item.IsSettled() {
					return nil, uow.deleteSaleItem(&before)
				}
				if err := uow.saveSaleItem(&before, item); err != nil {
					return nil, err
				}
				resp := ToSaleItemResponse(item)
				return &resp, nil
			},
		}, nil

	default:
		line, err := repos.BMRTemplates().FindLineByContributionID(ctx, id)
		if err != nil {
			return nil, destinationLookupError("bmr contribution", id, err)
		}
		contribution := line.Contribution(id)
		if contribution == nil {
			return nil, stock.NewNotFoundError("bmr contribution", id.String())
		}
		return &heldQuantity{
			holder:     "bmr contribution",
			variantID:  contribution.VariantID,
			contextKey: line.TemplateID,
			moveQty:    contribution.MoveQty,
			release: func(uow *unitOfWork, amount decimal.Decimal) (*DestinationResponse, error) {
				before := line.Clone()
				released, settled, err := line.Release(id, amount)
				if err != nil {
					return nil, err
				}
				if line.IsEmpty() {
					return nil, uow.deleteLine(before)
				}
				if err := uow.saveLine(before, line); err != nil {
					return nil, err
				}
				if settled {
					return nil, nil
				}
				resp := ToContributionDestinationResponse(&released)
				return &resp, nil
			},
		}, nil
	}
}

func destinationLookupError(resource string, id uuid.UUID, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return stock.NewNotFoundError(resource, id.String())
	}
	return stepError(StepUpsertDestination, err)
}
