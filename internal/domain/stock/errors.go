package stock

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// NewNotFoundError reports a missing variant, part or destination record.
func NewNotFoundError(resource, key string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeNotFound, "%s %s not found", resource, key).
		WithDetail("resource", resource).
		WithDetail("key", key)
}

// NewInsufficientQuantityError reports a request exceeding what a bucket or
// destination record holds. The message carries both quantities.
func NewInsufficientQuantityError(holder string, available, requested decimal.Decimal) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInsufficientQuantity,
		"insufficient %s quantity: available %s, requested %s", holder, Format(available), Format(requested)).
		WithDetail("holder", holder).
		WithDetail("available", Format(available)).
		WithDetail("requested", Format(requested))
}

// NewInvalidAmountError reports a non-positive or non-numeric amount.
func NewInvalidAmountError(raw string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidAmount, "invalid amount %q: must be a positive number", raw).
		WithDetail("amount", raw)
}

// NewDuplicateScanCodeError reports an attempt to reuse an existing scan code.
func NewDuplicateScanCodeError(scanCode string) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeDuplicateScanCode, "scan code %s already exists", scanCode).
		WithDetail("scan_code", scanCode)
}

// NewNonDeletableError reports a deletion refused because quantity remains or
// the record is still required.
func NewNonDeletableError(resource, key, reason string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeNonDeletable, fmt.Sprintf("%s %s cannot be deleted: %s", resource, key, reason)).
		WithDetail("resource", resource).
		WithDetail("key", key)
}

// NewValidationError reports malformed input that is not an amount problem.
func NewValidationError(message string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInvalidInput, message)
}
