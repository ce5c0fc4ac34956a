package stock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Unit-of-work steps reported in shared.PersistenceError.Step
const (
	StepLoadVariant       = "load-variant"
	StepUpdateVariant     = "update-variant"
	StepAppendLedger      = "append-ledger"
	StepRecompute         = "recompute-aggregate"
	StepUpsertDestination = "upsert-destination"
	StepMergeTemplate     = "merge-template"
	StepUpdatePart        = "update-part"
	StepCompensate        = "compensate"
)

// DefaultMaxAttempts is how often a unit of work runs before a persistence failure is surfaced
const DefaultMaxAttempts = 2

// Settings tune the services of this package.
type Settings struct {
	// MaxAttempts bounds the retries of a unit of work failing with a
	// persistence error or a concurrency conflict
	MaxAttempts int
	Locker      Locker
	Observer    Observer
	Logger      *zap.Logger
}

func (s Settings) withDefaults() Settings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.Locker == nil {
		s.Locker = nopLocker{}
	}
	if s.Observer == nil {
		s.Observer = nopObserver{}
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	return s
}

// runner executes units of work with retry, undo and reconciliation.
type runner struct {
	scope      TransactionScope
	recomputer *AggregateRecomputer
	ledger     *MovementLedger
	settings   Settings
}

func newRunner(scope TransactionScope, settings Settings) *runner {
	settings = settings.withDefaults()
	return &runner{
		scope:      scope,
		recomputer: NewAggregateRecomputer(scope, settings.Logger),
		ledger:     NewMovementLedger(settings.Observer),
		settings:   settings,
	}
}

// run executes fn inside the transaction scope. A failed attempt is undone
// (compensating writes on non-atomic scopes, rollback otherwise) and retried
// when the failure is transient. When every attempt failed, the aggregates
// of all touched parts are recomputed before the error is surfaced.
func (r *runner) run(ctx context.Context, op string, fn func(uow *unitOfWork) error) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock", op)
	defer span.End()

	start := time.Now()
	err := r.runAttempts(ctx, op, fn)
	r.settings.Observer.OperationFinished(ctx, op, time.Since(start), err)
	if err != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorCode, shared.ErrorCode(err))
		telemetry.RecordError(span, err)
	}
	return err
}

func (r *runner) runAttempts(ctx context.Context, op string, fn func(uow *unitOfWork) error) error {
	var (
		lastErr error
		touched []uuid.UUID
	)
	for attempt := 1; attempt <= r.settings.MaxAttempts; attempt++ {
		uow := newUnitOfWork(ctx, r)
		err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			uow.repos = repos
			return fn(uow)
		})
		if err == nil {
			return nil
		}
		touched = appendUnique(touched, uow.parts...)

		if !r.scope.Atomic() {
			if cerr := r.undo(ctx, op, uow); cerr != nil {
				return withCompensationError(err, cerr)
			}
		}
		if !isRetryable(err) {
			return err
		}

		lastErr = err
		telemetry.AddEvent(trace.SpanFromContext(ctx), "unit_of_work_retry",
			telemetry.SpanAttrAttempt, attempt,
			telemetry.SpanAttrErrorCode, shared.ErrorCode(err),
		)
		r.settings.Logger.Warn("stock unit of work failed",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.settings.MaxAttempts),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	if cerr := r.reconcile(ctx, op, touched); cerr != nil {
		return withCompensationError(lastErr, cerr)
	}
	return lastErr
}

// undo replays the journal of a failed unit of work and recomputes its parts.
func (r *runner) undo(ctx context.Context, op string, uow *unitOfWork) error {
	if uow.journal.empty() && len(uow.parts) == 0 {
		return nil
	}
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := uow.journal.replay(ctx, repos); err != nil {
			return err
		}
		for _, partID := range uow.parts {
			if _, err := r.recomputer.recomputeIn(ctx, repos, partID); err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	r.settings.Observer.Compensated(ctx, op, err)
	if err != nil {
		r.settings.Logger.Error("compensating writes failed",
			zap.String("operation", op),
			zap.Int("undo_steps", uow.journal.len()),
			zap.Error(err),
		)
		return err
	}
	r.settings.Logger.Info("failed unit of work compensated",
		zap.String("operation", op),
		zap.Int("undo_steps", uow.journal.len()),
	)
	return nil
}

// reconcile recomputes the aggregates of parts touched by failed attempts.
func (r *runner) reconcile(ctx context.Context, op string, partIDs []uuid.UUID) error {
	if len(partIDs) == 0 {
		return nil
	}
	var errs []error
	for _, partID := range partIDs {
		if _, err := r.recomputer.Recompute(ctx, partID); err != nil && !errors.Is(err, shared.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	r.settings.Observer.Compensated(ctx, op, err)
	if err != nil {
		r.settings.Logger.Error("reconciling recompute failed",
			zap.String("operation", op),
			zap.Int("parts", len(partIDs)),
			zap.Error(err),
		)
	}
	return err
}

// lookupVariant resolves a scan code outside of any unit of work, to find the
// lock keys before the unit starts.
func (r *runner) lookupVariant(ctx context.Context, scanCode string) (*stock.Variant, error) {
	scanCode = strings.TrimSpace(scanCode)
	if scanCode == "" {
		return nil, stock.NewValidationError("scan code is required")
	}
	var v *stock.Variant
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		v, err = repos.Variants().FindByScanCode(ctx, scanCode)
		if errors.Is(err, shared.ErrNotFound) {
			return stock.NewNotFoundError("variant", scanCode)
		}
		return stepError(StepLoadVariant, err)
	})
	return v, err
}

// variantIDsOf lists the variant IDs of a part so their locks can be taken
// before the unit of work starts.
func (r *runner) variantIDsOf(ctx context.Context, partNo string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		part, err := repos.Parts().FindByPartNo(ctx, partNo)
		if err != nil {
			return partLookupError(partNo, err)
		}
		variants, err := repos.Variants().FindByPartID(ctx, part.ID)
		if err != nil {
			return stepError(StepLoadVariant, err)
		}
		for _, v := range variants {
			ids = append(ids, v.ID)
		}
		return nil
	})
	return ids, err
}

// stepError tags store errors with the failing step. Domain errors pass through.
func stepError(step string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	var persistenceErr *shared.PersistenceError
	if errors.As(err, &persistenceErr) {
		return err
	}
	return shared.NewPersistenceError(step, err)
}

func isRetryable(err error) bool {
	return shared.IsPersistenceFailure(err) || errors.Is(err, shared.ErrConcurrencyConflict)
}

func withCompensationError(err, compensationErr error) error {
	var pe *shared.PersistenceError
	if errors.As(err, &pe) {
		return &shared.PersistenceError{Step: pe.Step, Err: pe.Err, CompensationErr: compensationErr}
	}
	return &shared.PersistenceError{Step: StepCompensate, Err: err, CompensationErr: compensationErr}
}

func appendUnique(ids []uuid.UUID, more ...uuid.UUID) []uuid.UUID {
	for _, id := range more {
		found := false
		for _, existing := range ids {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, id)
		}
	}
	return ids
}

type undoFunc func(ctx context.Context, repos TransactionalRepositories) error

// journal keeps the inverse of every write made by a unit of work.
type journal struct {
	steps []undoFunc
}

func (j *journal) push(fn undoFunc) {
	j.steps = append(j.steps, fn)
}

func (j *journal) empty() bool {
	return len(j.steps) == 0
}

func (j *journal) len() int {
	return len(j.steps)
}

// replay runs the inverse writes newest first
func (j *journal) replay(ctx context.Context, repos TransactionalRepositories) error {
	for i := len(j.steps) - 1; i >= 0; i-- {
		if err := j.steps[i](ctx, repos); err != nil {
			return err
		}
	}
	return nil
}

// unitOfWork wraps the repositories of one attempt. Every write goes through
// it so that the inverse write can be journaled.
type unitOfWork struct {
	ctx     context.Context
	repos   TransactionalRepositories
	runner  *runner
	journal *journal
	parts   []uuid.UUID
	// originals holds each variant as it was before this unit first wrote it
	originals map[uuid.UUID]*stock.Variant
}

func newUnitOfWork(ctx context.Context, r *runner) *unitOfWork {
	return &unitOfWork{
		ctx:       ctx,
		runner:    r,
		journal:   &journal{},
		originals: make(map[uuid.UUID]*stock.Variant),
	}
}

func (u *unitOfWork) variantForUpdate(id uuid.UUID) (*stock.Variant, error) {
	v, err := u.repos.Variants().FindByIDForUpdate(u.ctx, id)
	if err != nil {
		return nil, stepError(StepLoadVariant, err)
	}
	return v, nil
}

// heldByDestinations sums what production, sale and BMR records hold of a
// variant and counts those records.
func (u *unitOfWork) heldByDestinations(variantID uuid.UUID) (decimal.Decimal, int, error) {
	production, err := u.repos.ProductionItems().FindByVariantID(u.ctx, variantID)
	if err != nil {
		return decimal.Zero, 0, stepError(StepUpsertDestination, err)
	}
	sales, err := u.repos.SaleItems().FindByVariantID(u.ctx, variantID)
	if err != nil {
		return decimal.Zero, 0, stepError(StepUpsertDestination, err)
	}
	contributions, err := u.repos.BMRTemplates().FindContributionsByVariantID(u.ctx, variantID)
	if err != nil {
		return decimal.Zero, 0, stepError(StepMergeTemplate, err)
	}

	held := decimal.Zero
	for _, item := range production {
		held = held.Add(item.MoveQty)
	}
	for _, item := range sales {
		held = held.Add(item.MoveQty)
	}
	for _, c := range contributions {
		held = held.Add(c.MoveQty)
	}
	return stock.Normalize(held), len(production) + len(sales) + len(contributions), nil
}

func (u *unitOfWork) createVariant(v *stock.Variant) error {
	if err := u.repos.Variants().Create(u.ctx, v); err != nil {
		return stepError(StepUpdateVariant, err)
	}
	empty := v.Clone()
	empty.AvailableQty = decimal.Zero
	empty.UsingQty = decimal.Zero
	empty.PendingTestingQty = decimal.Zero
	u.originals[v.ID] = empty
	u.parts = appendUnique(u.parts, v.PartID)
	id := v.ID
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.Variants().Delete(ctx, id)
	})
	return nil
}

// saveVariant persists v; before is the state loaded by this unit.
func (u *unitOfWork) saveVariant(before, v *stock.Variant) error {
	if err := u.repos.Variants().Save(u.ctx, v); err != nil {
		return stepError(StepUpdateVariant, err)
	}
	if _, ok := u.originals[v.ID]; !ok {
		u.originals[v.ID] = before.Clone()
	}
	u.parts = appendUnique(u.parts, v.PartID)
	snapshot := before.Clone()
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		current, err := repos.Variants().FindByID(ctx, snapshot.ID)
		if err != nil {
			return err
		}
		restore := snapshot.Clone()
		restore.Version = current.Version
		restore.IncrementVersion()
		return repos.Variants().Save(ctx, restore)
	})
	return nil
}

func (u *unitOfWork) deleteVariant(v *stock.Variant) error {
	if err := u.repos.Variants().Delete(u.ctx, v.ID); err != nil {
		return stepError(StepUpdateVariant, err)
	}
	u.parts = appendUnique(u.parts, v.PartID)
	snapshot := v.Clone()
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.Variants().Create(ctx, snapshot)
	})
	return nil
}

// record appends a ledger entry for v, which must already carry the mutation.
func (u *unitOfWork) record(v *stock.Variant, m Movement) (*stock.MovementEntry, error) {
	entry, err := u.runner.ledger.Record(u.ctx, u.repos.Movements(), v, m)
	if err != nil {
		return nil, stepError(StepAppendLedger, err)
	}
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		balance := v.Clone()
		if original, ok := u.originals[entry.VariantID]; ok {
			balance = original
		}
		return repos.Movements().Append(ctx, entry.Reversal(balance))
	})
	return entry, nil
}

// recompute refreshes the part aggregate inside the unit
func (u *unitOfWork) recompute(partID uuid.UUID) (stock.AggregateTotals, error) {
	u.parts = appendUnique(u.parts, partID)
	totals, err := u.runner.recomputer.recomputeIn(u.ctx, u.repos, partID)
	if err != nil {
		return stock.AggregateTotals{}, stepError(StepRecompute, err)
	}
	return totals, nil
}

func (u *unitOfWork) createPart(p *stock.Part) error {
	if err := u.repos.Parts().Create(u.ctx, p); err != nil {
		return stepError(StepUpdatePart, err)
	}
	id := p.ID
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.Parts().Delete(ctx, id)
	})
	return nil
}

func (u *unitOfWork) deletePart(p *stock.Part) error {
	if err := u.repos.Parts().Delete(u.ctx, p.ID); err != nil {
		return stepError(StepUpdatePart, err)
	}
	snapshot := p.Snapshot()
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.Parts().Create(ctx, stock.RehydratePart(snapshot))
	})
	return nil
}

// saveProductionItem creates item when before is nil, otherwise updates it
func (u *unitOfWork) saveProductionItem(before, item *stock.ProductionItem) error {
	repo := u.repos.ProductionItems()
	if before == nil {
		if err := repo.Create(u.ctx, item); err != nil {
			return stepError(StepUpsertDestination, err)
		}
		id := item.ID
		u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
			return repos.ProductionItems().Delete(ctx, id)
		})
		return nil
	}
	if err := repo.Save(u.ctx, item); err != nil {
		return stepError(StepUpsertDestination, err)
	}
	snapshot := *before
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.ProductionItems().Save(ctx, &snapshot)
	})
	return nil
}

func (u *unitOfWork) deleteProductionItem(item *stock.ProductionItem) error {
	if err := u.repos.ProductionItems().Delete(u.ctx, item.ID); err != nil {
		return stepError(StepUpsertDestination, err)
	}
	snapshot := *item
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.ProductionItems().Create(ctx, &snapshot)
	})
	return nil
}

// saveSaleItem creates item when before is nil, otherwise updates it
func (u *unitOfWork) saveSaleItem(before, item *stock.SaleItem) error {
	repo := u.repos.SaleItems()
	if before == nil {
		if err := repo.Create(u.ctx, item); err != nil {
			return stepError(StepUpsertDestination, err)
		}
		id := item.ID
		u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
			return repos.SaleItems().Delete(ctx, id)
		})
		return nil
	}
	if err := repo.Save(u.ctx, item); err != nil {
		return stepError(StepUpsertDestination, err)
	}
	snapshot := *before
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.SaleItems().Save(ctx, &snapshot)
	})
	return nil
}

func (u *unitOfWork) deleteSaleItem(item *stock.SaleItem) error {
	if err := u.repos.SaleItems().Delete(u.ctx, item.ID); err != nil {
		return stepError(StepUpsertDestination, err)
	}
	snapshot := *item
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.SaleItems().Create(ctx, &snapshot)
	})
	return nil
}

// saveLine upserts a BMR line; before is nil for a line created by this unit
func (u *unitOfWork) saveLine(before, line *stock.BMRTemplateLine) error {
	if err := u.repos.BMRTemplates().SaveLine(u.ctx, line); err != nil {
		return stepError(StepMergeTemplate, err)
	}
	if before == nil {
		id := line.ID
		u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
			return repos.BMRTemplates().DeleteLine(ctx, id)
		})
		return nil
	}
	snapshot := before.Clone()
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.BMRTemplates().SaveLine(ctx, snapshot.Clone())
	})
	return nil
}

// deleteLine removes a line that has no contribution left; before is its last stored state
func (u *unitOfWork) deleteLine(before *stock.BMRTemplateLine) error {
	if err := u.repos.BMRTemplates().DeleteLine(u.ctx, before.ID); err != nil {
		return stepError(StepMergeTemplate, err)
	}
	snapshot := before.Clone()
	u.journal.push(func(ctx context.Context, repos TransactionalRepositories) error {
		return repos.BMRTemplates().SaveLine(ctx, snapshot.Clone())
	})
	return nil
}
