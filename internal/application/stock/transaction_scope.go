package stock

import (
	"context"

	"github.com/erp/stockledger/internal/domain/stock"
)

// TransactionScope provides transactional access to the stock repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
	// Atomic reports whether a failed Execute leaves no writes behind. Scopes
	// that are not atomic get compensating writes from the services.
	Atomic() bool
}

// TransactionalRepositories provides access to all stock repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Aggregate boundary notes:
//   - Variants: every quantity change goes through the variant, then the part is recomputed.
//   - Parts: totals are only written by AggregateRecomputer.
//   - Movements: append-only ledger, never updated or deleted.
//   - ProductionItems, SaleItems, BMRTemplates: destination records holding moved quantity.
type TransactionalRepositories interface {
	Parts() stock.PartRepository
	Variants() stock.VariantRepository
	Movements() stock.MovementRepository
	ProductionItems() stock.ProductionItemRepository
	SaleItems() stock.SaleItemRepository
	BMRTemplates() stock.BMRTemplateRepository
}

// Repositories groups plain repositories for scopes without real transactions.
type Repositories struct {
	Parts           stock.PartRepository
	Variants        stock.VariantRepository
	Movements       stock.MovementRepository
	ProductionItems stock.ProductionItemRepository
	SaleItems       stock.SaleItemRepository
	BMRTemplates    stock.BMRTemplateRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// Failed units of work are undone through compensating writes.
type NoOpTransactionScope struct {
	repos Repositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(repos Repositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Atomic is false: writes made before a failure stay in place.
func (s *NoOpTransactionScope) Atomic() bool {
	return false
}

// Parts returns the part repository.
func (s *NoOpTransactionScope) Parts() stock.PartRepository {
	return s.repos.Parts
}

// Variants returns the variant repository.
func (s *NoOpTransactionScope) Variants() stock.VariantRepository {
	return s.repos.Variants
}

// Movements returns the movement ledger repository.
func (s *NoOpTransactionScope) Movements() stock.MovementRepository {
	return s.repos.Movements
}

// ProductionItems returns the production item repository.
func (s *NoOpTransactionScope) ProductionItems() stock.ProductionItemRepository {
	return s.repos.ProductionItems
}

// SaleItems returns the sale item repository.
func (s *NoOpTransactionScope) SaleItems() stock.SaleItemRepository {
	return s.repos.SaleItems
}

// BMRTemplates returns the BMR template repository.
func (s *NoOpTransactionScope) BMRTemplates() stock.BMRTemplateRepository {
	return s.repos.BMRTemplates
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
