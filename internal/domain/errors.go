package domain

import "github.com/pkg/errors"

// Error kinds surfaced by the ledger. Callers classify with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrWalletAccessDenied   = errors.New("wallet access denied")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrInstrumentNotFound   = errors.New("instrument not found")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrTransientProvider    = errors.New("transient quote provider error")
)

// Invalid returns a validation error describing the offending input.
func Invalid(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
