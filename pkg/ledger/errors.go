package ledger

import "errors"

// Domain errors for ledger operations. All are detected before any state is
// mutated; the HTTP layer maps them to status codes.
var (
	// ErrInvalidRequest covers a malformed operation, e.g. a transfer
	// without a recipient account number.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRecipientNotFound means the transfer's recipient account number
	// resolved to no account.
	ErrRecipientNotFound = errors.New("recipient account not found")

	// ErrSameAccount rejects a transfer whose source and recipient are
	// the same account.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrInsufficientFunds rejects a withdrawal or transfer exceeding
	// the current balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
