package loan

import "errors"

// Domain errors for the loan lifecycle. All are detected before any state
// is mutated.
var (
	// ErrOutOfRange rejects an application whose principal, rate or term
	// falls outside the product bounds.
	ErrOutOfRange = errors.New("loan parameter out of range")

	// ErrLoanLimitReached rejects an application by a borrower already
	// holding the maximum number of active (PENDING or ACCEPTED) loans.
	ErrLoanLimitReached = errors.New("maximum active loan limit reached")

	// ErrInvalidAction rejects a decision other than accept or reject.
	ErrInvalidAction = errors.New("invalid action, use 'accept' or 'reject'")

	// ErrLoanAlreadyDecided rejects a decision on a loan that is no
	// longer PENDING. The decided state, including the accepted
	// timestamp, is immutable.
	ErrLoanAlreadyDecided = errors.New("loan has already been decided")

	// ErrLoanNotAccepted rejects a payment against a loan that has not
	// been accepted.
	ErrLoanNotAccepted = errors.New("loan is not yet accepted")

	// ErrLoanAlreadyPaid rejects a payment against a fully repaid loan.
	ErrLoanAlreadyPaid = errors.New("loan is already fully paid")

	// ErrPaymentExceedsRemaining rejects a payment larger than the
	// loan's remaining balance.
	ErrPaymentExceedsRemaining = errors.New("payment exceeds remaining balance")
)
