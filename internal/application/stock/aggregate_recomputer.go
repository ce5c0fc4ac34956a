package stock

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AggregateRecomputer is the only writer of part totals. It derives them from
// the current variant set, so running it again without an intervening
// variant change is a no-op.
type AggregateRecomputer struct {
	scope  TransactionScope
	logger *zap.Logger
}

// NewAggregateRecomputer creates a new AggregateRecomputer
func NewAggregateRecomputer(scope TransactionScope, logger *zap.Logger) *AggregateRecomputer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregateRecomputer{scope: scope, logger: logger}
}

// Recompute refreshes the totals of a part in its own transaction
func (r *AggregateRecomputer) Recompute(ctx context.Context, partID uuid.UUID) (stock.AggregateTotals, error) {
	var totals stock.AggregateTotals
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		totals, err = r.recomputeIn(ctx, repos, partID)
		return err
	})
	return totals, err
}

// Reconcile recomputes a part looked up by part number and reports whether
// its stored totals had drifted from its variants.
func (r *AggregateRecomputer) Reconcile(ctx context.Context, partNo string) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		part, err := repos.Parts().FindByPartNo(ctx, partNo)
		if err != nil {
			return stepError(StepRecompute, err)
		}
		before := part.Totals()
		after, err := r.recomputeIn(ctx, repos, part.ID)
		if err != nil {
			return err
		}
		result = &ReconcileResult{
			PartID:  part.ID,
			PartNo:  part.PartNo,
			Before:  ToTotalsResponse(before),
			After:   ToTotalsResponse(after),
			Drifted: !before.Equal(after),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Drifted {
		r.logger.Warn("part totals drifted from variants",
			zap.String("part_no", result.PartNo),
			zap.String("available_before", result.Before.Available.String()),
			zap.String("available_after", result.After.Available.String()),
		)
	}
	return result, nil
}

// recomputeIn locks the part row, sums its variants and persists the totals
// when they changed.
func (r *AggregateRecomputer) recomputeIn(ctx context.Context, repos TransactionalRepositories, partID uuid.UUID) (stock.AggregateTotals, error) {
	part, err := repos.Parts().FindByIDForUpdate(ctx, partID)
	if err != nil {
		return stock.AggregateTotals{}, stepError(StepRecompute, err)
	}
	variants, err := repos.Variants().FindByPartID(ctx, partID)
	if err != nil {
		return stock.AggregateTotals{}, stepError(StepRecompute, fmt.Errorf("list variants of part %s: %w", part.PartNo, err))
	}
	if part.Refresh(variants) {
		if err := repos.Parts().Save(ctx, part); err != nil {
			return stock.AggregateTotals{}, stepError(StepRecompute, err)
		}
		r.logger.Debug("part totals recomputed",
			zap.String("part_no", part.PartNo),
			zap.Int("variants", len(variants)),
			zap.String("available", part.Totals().Available.String()),
		)
	}
	return part.Totals(), nil
}
