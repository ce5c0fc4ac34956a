package scheduler

import (
	"context"
	"errors"
	"sync/atomic"

	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// Reconciler recomputes a part's totals from its variants
type Reconciler interface {
	Reconcile(ctx context.Context, partNo string) (*appstock.ReconcileResult, error)
}

// ReconcileObserver is told about every reconciled part
type ReconcileObserver interface {
	PartReconciled(ctx context.Context, drifted bool)
}

type nopReconcileObserver struct{}

func (nopReconcileObserver) PartReconciled(context.Context, bool) {}

// ReconcileExecutor runs one part reconciliation per job
type ReconcileExecutor struct {
	reconciler Reconciler
	observer   ReconcileObserver
	logger     *zap.Logger

	reconciled atomic.Int64
	drifted    atomic.Int64
}

// NewReconcileExecutor creates a new executor. A nil observer or logger
// is replaced by a no-op.
func NewReconcileExecutor(reconciler Reconciler, observer ReconcileObserver, logger *zap.Logger) *ReconcileExecutor {
	if observer == nil {
		observer = nopReconcileObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileExecutor{reconciler: reconciler, observer: observer, logger: logger}
}

// Execute reconciles the job's part. A part deleted since the sweep was
// scheduled counts as done.
func (e *ReconcileExecutor) Execute(ctx context.Context, job *Job) error {
	result, err := e.reconciler.Reconcile(ctx, job.PartNo)
	if errors.Is(err, shared.ErrNotFound) {
		e.logger.Debug("Part vanished before reconcile", zap.String("part_no", job.PartNo))
		return nil
	}
	if err != nil {
		return err
	}

	e.reconciled.Add(1)
	if result.Drifted {
		job.Drifted = true
		e.drifted.Add(1)
	}
	e.observer.PartReconciled(ctx, result.Drifted)
	return nil
}

// Stats returns how many parts were reconciled and how many had drifted
func (e *ReconcileExecutor) Stats() (reconciled, drifted int64) {
	return e.reconciled.Load(), e.drifted.Load()
}
