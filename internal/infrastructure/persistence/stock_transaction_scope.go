package persistence

import (
	"context"

	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/stock"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appstock.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// Atomic is true: a rolled back transaction leaves no writes behind.
func (s *GormTransactionScope) Atomic() bool {
	return true
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Parts returns the part repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Parts() stock.PartRepository {
	return NewGormPartRepository(r.tx)
}

// Variants returns the variant repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Variants() stock.VariantRepository {
	return NewGormVariantRepository(r.tx)
}

// Movements returns the movement ledger scoped to the current transaction.
func (r *gormTransactionalRepositories) Movements() stock.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

// ProductionItems returns the production item repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ProductionItems() stock.ProductionItemRepository {
	return NewGormProductionItemRepository(r.tx)
}

// SaleItems returns the sale item repository scoped to the current transaction.
func (r *gormTransactionalRepositories) SaleItems() stock.SaleItemRepository {
	return NewGormSaleItemRepository(r.tx)
}

// BMRTemplates returns the BMR template repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BMRTemplates() stock.BMRTemplateRepository {
	return NewGormBMRTemplateRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appstock.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appstock.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
