package persistence

import (
	"errors"

	"github.com/erp/stockledger/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// notFound maps gorm.ErrRecordNotFound to shared.ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

// forUpdate adds a row lock to the query. SQLite has no row locks; its
// writers are serialized by the database lock and the service locker.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// isDuplicateKey reports a unique constraint violation. The database is
// opened with TranslateError, so both drivers surface gorm.ErrDuplicatedKey.
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// versionConflict is returned when an optimistic version check matched no row
func versionConflict(resource string) error {
	return shared.ErrConcurrencyConflict.WithDetail("resource", resource)
}
