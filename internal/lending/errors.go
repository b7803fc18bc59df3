package lending

import "errors"

var (
	// ErrInvalidCopies is returned when a copy count falls outside its allowed range.
	ErrInvalidCopies = errors.New("invalid copy count")

	// ErrInvalidStrategy is returned for a fine strategy with a non-positive borrow period or a
	// negative daily rate.
	ErrInvalidStrategy = errors.New("invalid fine strategy")

	// ErrUnknownCategory is returned when no strategy is configured for a material category.
	ErrUnknownCategory = errors.New("unknown material category")

	// ErrNegativeAmount is returned when a fine or payment amount is below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrOverpayment is returned when a payment exceeds the outstanding fine balance.
	ErrOverpayment = errors.New("payment exceeds outstanding fine balance")

	// ErrLoanAlreadyReturned is returned when a return is attempted on a closed loan.
	ErrLoanAlreadyReturned = errors.New("loan already returned")

	// ErrInconsistentState signals a broken internal invariant, e.g. a copy that cannot be put back
	// for an open loan. It is a defect, never a user error.
	ErrInconsistentState = errors.New("internal consistency violation")
)
