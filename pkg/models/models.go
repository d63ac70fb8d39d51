package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/anishbk/corebank/pkg/money"
)

type AccountType string

const (
	AccountTypeSavings  AccountType = "SAVINGS"
	AccountTypeChecking AccountType = "CHECKING"
	AccountTypeBusiness AccountType = "BUSINESS"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeChecking, AccountTypeBusiness:
		return true
	}
	return false
}

// Account is a customer account. Balance is the sum of all completed
// transaction effects since creation and is never negative after a
// successful operation.
type Account struct {
	ID            uuid.UUID   `json:"id"`
	OwnerID       string      `json:"owner_id"` // link to external user system
	AccountNumber string      `json:"account_number"`
	Type          AccountType `json:"account_type"`
	Balance       money.Money `json:"balance"`
	Currency      string      `json:"currency"`
	Active        bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction records one completed balance mutation. BalanceAfter is the
// owning account's balance immediately after the effect was applied; a
// completed transaction is immutable.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	AccountID    uuid.UUID         `json:"account_id"`
	Type         TransactionType   `json:"transaction_type"`
	Amount       money.Money       `json:"amount"`
	BalanceAfter money.Money       `json:"balance_after"`
	Description  string            `json:"description"`
	RecipientID  *uuid.UUID        `json:"recipient_account_id,omitempty"` // TRANSFER only
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "PENDING"
	LoanStatusAccepted LoanStatus = "ACCEPTED"
	LoanStatusRejected LoanStatus = "REJECTED"
	LoanStatusPaid     LoanStatus = "PAID"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusPending, LoanStatusAccepted, LoanStatusRejected, LoanStatusPaid:
		return true
	}
	return false
}

// Loan is a flat-EMI amortized loan. MonthlyPayment is computed once at
// application time and never recomputed; repayment progress is derived from
// the loan's payments.
type Loan struct {
	ID              uuid.UUID   `json:"id"`
	BorrowerID      uuid.UUID   `json:"borrower_account_id"`
	Principal       money.Money `json:"loan_amount"`
	InterestRate    money.Money `json:"interest_rate"` // annual, percent
	TermMonths      int         `json:"loan_term_months"`
	MonthlyPayment  money.Money `json:"monthly_payment"`
	Status          LoanStatus  `json:"status"`
	Accepted        bool        `json:"is_accepted"`
	Purpose         string      `json:"purpose"`
	AppliedAt       time.Time   `json:"applied_date"`
	AcceptedAt      *time.Time  `json:"accepted_date,omitempty"`
	NextPaymentDate *time.Time  `json:"next_payment_date,omitempty"`
	LastPaymentDate *time.Time  `json:"last_payment_date,omitempty"`
	PaidAt          *time.Time  `json:"paid_date,omitempty"`
}

// LoanPayment is one repayment against an accepted loan. Immutable once
// created.
type LoanPayment struct {
	ID             uuid.UUID   `json:"id"`
	LoanID         uuid.UUID   `json:"loan_id"`
	Amount         money.Money `json:"amount"`
	PaidAt         time.Time   `json:"payment_date"`
	Method         string      `json:"payment_method"`
	Notes          string      `json:"notes"`
	TransactionRef string      `json:"transaction_id,omitempty"`
}

// DashboardStats are read-only aggregate counts for the admin surface.
type DashboardStats struct {
	TotalAccounts     int `json:"total_accounts"`
	ActiveAccounts    int `json:"active_accounts"`
	TotalLoans        int `json:"total_loans"`
	PendingLoans      int `json:"pending_loans"`
	AcceptedLoans     int `json:"approved_loans"`
	TotalTransactions int `json:"total_transactions"`
}
