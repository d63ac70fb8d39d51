package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/anishbk/corebank/pkg/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrLoanNotFound    = errors.New("loan not found")

	// ErrDuplicateAccountNumber signals an account-number collision; the
	// caller generates a fresh number and retries.
	ErrDuplicateAccountNumber = errors.New("account number already exists")

	// ErrConflict is lock or version contention in the storage backend.
	// It is the only retryable error kind; everything else is permanent
	// for the given input.
	ErrConflict = errors.New("storage conflict, retry")
)

// TransactionFilter narrows a transaction listing. Zero values match all.
type TransactionFilter struct {
	Type   models.TransactionType
	Status models.TransactionStatus
}

// Storage defines the persistence operations for accounts, transactions,
// loans and loan payments. The Apply* methods persist their writes as one
// atomic unit: either every row lands or none does.
type Storage interface {
	CreateAccount(a *models.Account) error
	GetAccount(id uuid.UUID) (*models.Account, error)
	GetAccountByNumber(number string) (*models.Account, error)
	UpdateAccount(a *models.Account) error
	// ApplyTransaction persists the account's mutated balance together
	// with its completed transaction record.
	ApplyTransaction(a *models.Account, tx *models.Transaction) error
	// ApplyTransfer persists both mutated balances together with the
	// source-side transfer record.
	ApplyTransfer(src, dst *models.Account, tx *models.Transaction) error
	TransactionsForAccount(accountID uuid.UUID, f TransactionFilter) ([]*models.Transaction, error)

	CreateLoan(l *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(l *models.Loan) error
	LoansForBorrower(accountID uuid.UUID) ([]*models.Loan, error)
	LoansByStatus(status models.LoanStatus) ([]*models.Loan, error)
	// CountActiveLoans counts a borrower's PENDING and ACCEPTED loans.
	CountActiveLoans(accountID uuid.UUID) (int, error)
	// ApplyLoanPayment persists the loan's updated date/status fields
	// together with the new payment record.
	ApplyLoanPayment(l *models.Loan, p *models.LoanPayment) error
	PaymentsForLoan(loanID uuid.UUID) ([]*models.LoanPayment, error)
	// LoansDueBetween returns ACCEPTED loans whose next payment date
	// falls in [from, to].
	LoansDueBetween(from, to time.Time) ([]*models.Loan, error)
	// LoansPaidOn returns loans that reached PAID on the given day.
	LoansPaidOn(day time.Time) ([]*models.Loan, error)

	Stats() (*models.DashboardStats, error)

	Close() error
}
