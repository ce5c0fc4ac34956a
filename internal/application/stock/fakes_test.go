package stock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory record set behind every repository of the
// package. Rows are copied in and out so callers never share state with it.
type memStore struct {
	mu         sync.Mutex
	parts      map[uuid.UUID]stock.PartSnapshot
	variants   map[uuid.UUID]stock.Variant
	movements  []stock.MovementEntry
	production map[uuid.UUID]stock.ProductionItem
	sales      map[uuid.UUID]stock.SaleItem
	lines      map[uuid.UUID]*stock.BMRTemplateLine
	faults     map[string]*fault
	calls      map[string]int
}

type fault struct {
	skip  int
	times int
}

func newMemStore() *memStore {
	return &memStore{
		parts:      make(map[uuid.UUID]stock.PartSnapshot),
		variants:   make(map[uuid.UUID]stock.Variant),
		production: make(map[uuid.UUID]stock.ProductionItem),
		sales:      make(map[uuid.UUID]stock.SaleItem),
		lines:      make(map[uuid.UUID]*stock.BMRTemplateLine),
		faults:     make(map[string]*fault),
		calls:      make(map[string]int),
	}
}

// failOn makes op fail times times after skip successful calls
func (s *memStore) failOn(op string, skip, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{skip: skip, times: times}
}

// check must be called with s.mu held
func (s *memStore) check(op string) error {
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	if f.times > 0 {
		f.times--
		return errStoreDown
	}
	return nil
}

func (s *memStore) scope() *NoOpTransactionScope {
	return NewNoOpTransactionScope(Repositories{
		Parts:           &memPartRepo{s},
		Variants:        &memVariantRepo{s},
		Movements:       &memMovementRepo{s},
		ProductionItems: &memProductionRepo{s},
		SaleItems:       &memSaleRepo{s},
		BMRTemplates:    &memBMRRepo{s},
	})
}

// seed stores a part with the given variants and consistent totals
func (s *memStore) seed(partNo string, variants ...stock.Variant) *stock.Part {
	part, err := stock.NewPart(partNo, partNo)
	if err != nil {
		panic(err)
	}
	for i := range variants {
		variants[i].PartID = part.ID
	}
	part.Refresh(variants)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[part.ID] = part.Snapshot()
	for _, v := range variants {
		s.variants[v.ID] = v
	}
	return part
}

func (s *memStore) variant(scanCode string) stock.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.variants {
		if v.ScanCode == scanCode {
			return v
		}
	}
	panic("no variant " + scanCode)
}

func (s *memStore) part(partNo string) *stock.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parts {
		if p.PartNo == partNo {
			return stock.RehydratePart(p)
		}
	}
	return nil
}

func (s *memStore) partVariants(partID uuid.UUID) []stock.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stock.Variant
	for _, v := range s.variants {
		if v.PartID == partID {
			out = append(out, v)
		}
	}
	return out
}

func (s *memStore) ledger(variantID uuid.UUID) []stock.MovementEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stock.MovementEntry
	for _, m := range s.movements {
		if m.VariantID == variantID {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) productionItems() []stock.ProductionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stock.ProductionItem, 0, len(s.production))
	for _, item := range s.production {
		out = append(out, item)
	}
	return out
}

func (s *memStore) saleItems() []stock.SaleItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stock.SaleItem, 0, len(s.sales))
	for _, item := range s.sales {
		out = append(out, item)
	}
	return out
}

func (s *memStore) templateLines(templateID string) []*stock.BMRTemplateLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*stock.BMRTemplateLine
	for _, l := range s.lines {
		if l.TemplateID == templateID {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNo < out[j].PartNo })
	return out
}

type memPartRepo struct{ s *memStore }

func (r *memPartRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.Part, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("parts.FindByID"); err != nil {
		return nil, err
	}
	p, ok := r.s.parts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return stock.RehydratePart(p), nil
}

func (r *memPartRepo) FindByPartNo(_ context.Context, partNo string) (*stock.Part, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("parts.FindByPartNo"); err != nil {
		return nil, err
	}
	for _, p := range r.s.parts {
		if p.PartNo == partNo {
			return stock.RehydratePart(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPartRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*stock.Part, error) {
	return r.FindByID(ctx, id)
}

func (r *memPartRepo) Create(_ context.Context, part *stock.Part) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("parts.Create"); err != nil {
		return err
	}
	r.s.parts[part.ID] = part.Snapshot()
	return nil
}

func (r *memPartRepo) Save(_ context.Context, part *stock.Part) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("parts.Save"); err != nil {
		return err
	}
	stored, ok := r.s.parts[part.ID]
	if !ok || stored.Base.Version >= part.Version {
		return shared.ErrConcurrencyConflict
	}
	r.s.parts[part.ID] = part.Snapshot()
	return nil
}

func (r *memPartRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("parts.Delete"); err != nil {
		return err
	}
	delete(r.s.parts, id)
	return nil
}

type memVariantRepo struct{ s *memStore }

func (r *memVariantRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.FindByID"); err != nil {
		return nil, err
	}
	v, ok := r.s.variants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &v, nil
}

func (r *memVariantRepo) FindByScanCode(_ context.Context, scanCode string) (*stock.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.FindByScanCode"); err != nil {
		return nil, err
	}
	for _, v := range r.s.variants {
		if v.ScanCode == scanCode {
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memVariantRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*stock.Variant, error) {
	return r.FindByID(ctx, id)
}

func (r *memVariantRepo) FindByPartID(_ context.Context, partID uuid.UUID) ([]stock.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.FindByPartID"); err != nil {
		return nil, err
	}
	var out []stock.Variant
	for _, v := range r.s.variants {
		if v.PartID == partID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedDate.Equal(out[j].ReceivedDate) {
			return out[i].ScanCode < out[j].ScanCode
		}
		return out[i].ReceivedDate.Before(out[j].ReceivedDate)
	})
	return out, nil
}

func (r *memVariantRepo) FindByPartIDForUpdate(ctx context.Context, partID uuid.UUID) ([]stock.Variant, error) {
	out, err := r.FindByPartID(ctx, partID)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *memVariantRepo) ExistsByScanCode(_ context.Context, scanCode string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.ExistsByScanCode"); err != nil {
		return false, err
	}
	for _, v := range r.s.variants {
		if v.ScanCode == scanCode {
			return true, nil
		}
	}
	return false, nil
}

func (r *memVariantRepo) CountByPartID(_ context.Context, partID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, v := range r.s.variants {
		if v.PartID == partID {
			n++
		}
	}
	return n, nil
}

func (r *memVariantRepo) Create(_ context.Context, v *stock.Variant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.variants {
		if existing.ScanCode == v.ScanCode {
			return stock.NewDuplicateScanCodeError(v.ScanCode)
		}
	}
	r.s.variants[v.ID] = *v
	return nil
}

func (r *memVariantRepo) Save(_ context.Context, v *stock.Variant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.Save"); err != nil {
		return err
	}
	stored, ok := r.s.variants[v.ID]
	if !ok || stored.Version >= v.Version {
		return shared.ErrConcurrencyConflict
	}
	r.s.variants[v.ID] = *v
	return nil
}

func (r *memVariantRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("variants.Delete"); err != nil {
		return err
	}
	delete(r.s.variants, id)
	return nil
}

type memMovementRepo struct{ s *memStore }

func (r *memMovementRepo) Append(_ context.Context, entry *stock.MovementEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("movements.Append"); err != nil {
		return err
	}
	r.s.movements = append(r.s.movements, *entry)
	return nil
}

func (r *memMovementRepo) FindByVariantID(_ context.Context, variantID uuid.UUID, filter shared.Filter) ([]stock.MovementEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []stock.MovementEntry
	for i := len(r.s.movements) - 1; i >= 0; i-- {
		if r.s.movements[i].VariantID == variantID {
			out = append(out, r.s.movements[i])
		}
	}
	return page(out, filter), nil
}

func (r *memMovementRepo) CountByVariantID(_ context.Context, variantID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.movements {
		if m.VariantID == variantID {
			n++
		}
	}
	return n, nil
}

func (r *memMovementRepo) FindByPartID(_ context.Context, partID uuid.UUID, filter shared.Filter) ([]stock.MovementEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []stock.MovementEntry
	for i := len(r.s.movements) - 1; i >= 0; i-- {
		if r.s.movements[i].PartID == partID {
			out = append(out, r.s.movements[i])
		}
	}
	return page(out, filter), nil
}

func page(entries []stock.MovementEntry, filter shared.Filter) []stock.MovementEntry {
	start := filter.Offset()
	if start >= len(entries) {
		return []stock.MovementEntry{}
	}
	end := len(entries)
	if filter.PageSize > 0 && start+filter.PageSize < end {
		end = start + filter.PageSize
	}
	return entries[start:end]
}

type memProductionRepo struct{ s *memStore }

func (r *memProductionRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.ProductionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.production[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &item, nil
}

func (r *memProductionRepo) FindByVariantAndDepartment(_ context.Context, variantID uuid.UUID, departmentID string) (*stock.ProductionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.production {
		if item.VariantID == variantID && item.DepartmentID == departmentID {
			return &item, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memProductionRepo) FindByVariantID(_ context.Context, variantID uuid.UUID) ([]stock.ProductionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []stock.ProductionItem
	for _, item := range r.s.production {
		if item.VariantID == variantID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memProductionRepo) Create(_ context.Context, item *stock.ProductionItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("production.Create"); err != nil {
		return err
	}
	r.s.production[item.ID] = *item
	return nil
}

func (r *memProductionRepo) Save(_ context.Context, item *stock.ProductionItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("production.Save"); err != nil {
		return err
	}
	r.s.production[item.ID] = *item
	return nil
}

func (r *memProductionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("production.Delete"); err != nil {
		return err
	}
	delete(r.s.production, id)
	return nil
}

type memSaleRepo struct{ s *memStore }

func (r *memSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.SaleItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.sales[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &item, nil
}

func (r *memSaleRepo) FindByVariantAndSale(_ context.Context, variantID uuid.UUID, saleRef string) (*stock.SaleItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.sales {
		if item.VariantID == variantID && item.SaleRef == saleRef {
			return &item, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memSaleRepo) FindByVariantID(_ context.Context, variantID uuid.UUID) ([]stock.SaleItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []stock.SaleItem
	for _, item := range r.s.sales {
		if item.VariantID == variantID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memSaleRepo) Create(_ context.Context, item *stock.SaleItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("sales.Create"); err != nil {
		return err
	}
	r.s.sales[item.ID] = *item
	return nil
}

func (r *memSaleRepo) Save(_ context.Context, item *stock.SaleItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("sales.Save"); err != nil {
		return err
	}
	r.s.sales[item.ID] = *item
	return nil
}

func (r *memSaleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("sales.Delete"); err != nil {
		return err
	}
	delete(r.s.sales, id)
	return nil
}

type memBMRRepo struct{ s *memStore }

func (r *memBMRRepo) FindLine(_ context.Context, templateID, partNo string) (*stock.BMRTemplateLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.lines {
		if l.TemplateID == templateID && l.PartNo == partNo {
			return l.Clone(), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBMRRepo) FindLineByID(_ context.Context, id uuid.UUID) (*stock.BMRTemplateLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lines[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *memBMRRepo) FindLineByContributionID(_ context.Context, contributionID uuid.UUID) (*stock.BMRTemplateLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.lines {
		if l.Contribution(contributionID) != nil {
			return l.Clone(), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBMRRepo) FindLinesByTemplate(_ context.Context, templateID string) ([]stock.BMRTemplateLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []stock.BMRTemplateLine
	for _, l := range r.s.lines {
		if l.TemplateID == templateID {
			out = append(out, *l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNo < out[j].PartNo })
	return out, nil
}

func (r *memBMRRepo) FindContributionsByVariantID(_ context.Context, variantID uuid.UUID) ([]stock.BMRContribution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []stock.BMRContribution
	for _, l := range r.s.lines {
		for _, c := range l.Contributions {
			if c.VariantID == variantID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (r *memBMRRepo) SaveLine(_ context.Context, line *stock.BMRTemplateLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("bmr.SaveLine"); err != nil {
		return err
	}
	r.s.lines[line.ID] = line.Clone()
	return nil
}

func (r *memBMRRepo) DeleteLine(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("bmr.DeleteLine"); err != nil {
		return err
	}
	delete(r.s.lines, id)
	return nil
}

// keyedLocker serializes callers per key in process
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	order []string
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *keyedLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.order = append(l.order, key)
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

// recordingObserver captures observer callbacks
type recordingObserver struct {
	mu          sync.Mutex
	movements   int
	operations  map[string]int
	failures    map[string]int
	compensated int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{operations: make(map[string]int), failures: make(map[string]int)}
}

func (o *recordingObserver) MovementRecorded(context.Context, *stock.MovementEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.movements++
}

func (o *recordingObserver) OperationFinished(_ context.Context, op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.operations[op]++
	if err != nil {
		o.failures[op]++
	}
}

func (o *recordingObserver) Compensated(context.Context, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compensated++
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestVariant(scanCode, available, price string, received time.Time) stock.Variant {
	return stock.Variant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ScanCode:          scanCode,
		UnitPrice:         dec(price),
		AvailableQty:      dec(available),
		PendingTestingQty: decimal.Zero,
		UsingQty:          decimal.Zero,
		ReceivedDate:      received,
		TestingStatus:     stock.TestingCompleted,
	}
}
