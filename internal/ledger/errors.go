package ledger

import "errors"

var (
	// ErrValidation is returned for malformed or out-of-range input:
	// non-positive ids, amounts, or quantities, a missing instrument key,
	// or an initial balance above the seed-money ceiling.
	ErrValidation = errors.New("ledger: invalid input")

	// ErrState is returned when an operation is attempted from a status
	// that forbids it: executing a non-pending order, starting a non-ready
	// session, selling more than held, and so on.
	ErrState = errors.New("ledger: operation not allowed in current state")
)
