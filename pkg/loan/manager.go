// Package loan implements the amortization engine and the loan lifecycle:
// application, decision, payment accrual and payoff, plus the scheduled
// payment-due and paid-today sweeps.
package loan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anishbk/corebank/pkg/locking"
	"github.com/anishbk/corebank/pkg/models"
	"github.com/anishbk/corebank/pkg/money"
	"github.com/anishbk/corebank/pkg/notify"
	"github.com/anishbk/corebank/pkg/store"
)

// Product bounds, checked at application time.
var (
	minPrincipal = money.FromInt(10000)
	maxPrincipal = money.FromInt(5000000)
	minRate      = money.FromInt(5)
	maxRate      = money.FromInt(25)
)

const (
	minTermMonths = 6
	maxTermMonths = 120

	// paymentCycle separates consecutive payment due dates.
	paymentCycle = 30 * 24 * time.Hour
)

// Manager drives the loan state machine over a Storage implementation.
// PENDING is initial; REJECTED and PAID are terminal.
type Manager struct {
	storage   store.Storage
	locks     *locking.Keyed
	events    notify.Publisher // may be nil
	log       *zap.Logger
	maxActive int
	now       func() time.Time
}

// NewManager creates a Manager. maxActive caps a borrower's PENDING plus
// ACCEPTED loans.
func NewManager(s store.Storage, events notify.Publisher, log *zap.Logger, maxActive int) *Manager {
	if maxActive <= 0 {
		maxActive = 3
	}
	return &Manager{
		storage:   s,
		locks:     locking.NewKeyed(),
		events:    events,
		log:       log,
		maxActive: maxActive,
		now:       time.Now,
	}
}

func (m *Manager) publish(ev notify.Event) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}

func validateBounds(principal, ratePercent money.Money, termMonths int) error {
	if principal.LessThan(minPrincipal) || principal.GreaterThan(maxPrincipal) {
		return fmt.Errorf("%w: principal %s outside [%s, %s]", ErrOutOfRange, principal, minPrincipal, maxPrincipal)
	}
	if ratePercent.LessThan(minRate) || ratePercent.GreaterThan(maxRate) {
		return fmt.Errorf("%w: interest rate %s outside [%s, %s]", ErrOutOfRange, ratePercent, minRate, maxRate)
	}
	if termMonths < minTermMonths || termMonths > maxTermMonths {
		return fmt.Errorf("%w: term %d months outside [%d, %d]", ErrOutOfRange, termMonths, minTermMonths, maxTermMonths)
	}
	return nil
}

// Apply creates a PENDING loan for the borrower account. The EMI is
// computed here, once, and never recomputed afterward.
func (m *Manager) Apply(accountID uuid.UUID, principal, ratePercent money.Money, termMonths int, purpose string) (*models.Loan, error) {
	if err := validateBounds(principal, ratePercent, termMonths); err != nil {
		return nil, err
	}
	borrower, err := m.storage.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	// Count and create under the borrower's lock so concurrent
	// applications cannot overshoot the cap.
	unlock := m.locks.Lock(accountID)
	defer unlock()

	active, err := m.storage.CountActiveLoans(accountID)
	if err != nil {
		return nil, err
	}
	if active >= m.maxActive {
		return nil, fmt.Errorf("%w: %d active loans, cap %d", ErrLoanLimitReached, active, m.maxActive)
	}

	l := &models.Loan{
		ID:             uuid.New(),
		BorrowerID:     borrower.ID,
		Principal:      principal,
		InterestRate:   ratePercent,
		TermMonths:     termMonths,
		MonthlyPayment: ComputeEMI(principal, ratePercent, termMonths),
		Status:         models.LoanStatusPending,
		Purpose:        purpose,
		AppliedAt:      m.now(),
	}
	if err := m.storage.CreateLoan(l); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	m.log.Info("loan application received",
		zap.String("loan_id", l.ID.String()),
		zap.String("borrower_id", borrower.ID.String()),
		zap.String("principal", principal.String()),
		zap.String("emi", l.MonthlyPayment.String()))
	return l, nil
}

// Decide accepts or rejects a PENDING loan. Accepting sets the accepted
// timestamp and schedules the first payment 30 days out. A loan that has
// left PENDING cannot be re-decided.
func (m *Manager) Decide(loanID uuid.UUID, action string) (*models.Loan, error) {
	action = strings.ToLower(action)
	if action != "accept" && action != "reject" {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidAction, action)
	}

	unlock := m.locks.Lock(loanID)
	defer unlock()

	l, err := m.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if l.Status != models.LoanStatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrLoanAlreadyDecided, l.Status)
	}

	now := m.now()
	if action == "accept" {
		next := now.Add(paymentCycle)
		l.Status = models.LoanStatusAccepted
		l.Accepted = true
		l.AcceptedAt = &now
		l.NextPaymentDate = &next
	} else {
		l.Status = models.LoanStatusRejected
		l.Accepted = false
	}
	if err := m.storage.UpdateLoan(l); err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}

	borrower, err := m.storage.GetAccount(l.BorrowerID)
	if err == nil {
		loanID := l.ID
		m.publish(notify.Event{
			Kind:      notify.KindLoanDecided,
			AccountID: borrower.ID,
			OwnerID:   borrower.OwnerID,
			Amount:    l.Principal,
			LoanID:    &loanID,
			Detail:    string(l.Status),
			At:        now,
		})
	}

	m.log.Info("loan decided",
		zap.String("loan_id", l.ID.String()),
		zap.String("status", string(l.Status)))
	return l, nil
}

// Get retrieves a loan by its ID.
func (m *Manager) Get(loanID uuid.UUID) (*models.Loan, error) {
	return m.storage.GetLoan(loanID)
}

// ForBorrower lists a borrower account's loans.
func (m *Manager) ForBorrower(accountID uuid.UUID) ([]*models.Loan, error) {
	if _, err := m.storage.GetAccount(accountID); err != nil {
		return nil, err
	}
	return m.storage.LoansForBorrower(accountID)
}

// ByStatus lists all loans holding the given status.
func (m *Manager) ByStatus(status models.LoanStatus) ([]*models.Loan, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidAction, status)
	}
	return m.storage.LoansByStatus(status)
}

// Remaining reports the loan's derived repayment figures: total payable,
// total paid and remaining. Recomputed from the full payment history on
// every call.
func (m *Manager) Remaining(l *models.Loan) (payable, paid, remaining money.Money, err error) {
	payments, err := m.storage.PaymentsForLoan(l.ID)
	if err != nil {
		return money.Zero, money.Zero, money.Zero, err
	}
	payable = TotalPayable(l.MonthlyPayment, l.TermMonths)
	paid = TotalPaid(payments)
	return payable, paid, RemainingAmount(payable, paid), nil
}

// RecordPayment applies a repayment to an ACCEPTED loan. The loan's date
// fields and the payment record are persisted as one atomic unit; the loan
// transitions to PAID exactly when the remaining balance reaches zero.
func (m *Manager) RecordPayment(loanID uuid.UUID, amount money.Money, method, notes string) (*models.LoanPayment, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(loanID)
	defer unlock()

	l, err := m.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if l.Status == models.LoanStatusPaid {
		return nil, ErrLoanAlreadyPaid
	}
	if !l.Accepted {
		return nil, ErrLoanNotAccepted
	}

	_, _, remaining, err := m.Remaining(l)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("%w: entered %s, remaining %s", ErrPaymentExceedsRemaining, amount, remaining)
	}

	now := m.now()
	next := now.Add(paymentCycle)
	l.LastPaymentDate = &now
	l.NextPaymentDate = &next

	payment := &models.LoanPayment{
		ID:     uuid.New(),
		LoanID: l.ID,
		Amount: amount,
		PaidAt: now,
		Method: method,
		Notes:  notes,
	}

	paidOff := !remaining.Sub(amount).IsPositive()
	if paidOff {
		l.Status = models.LoanStatusPaid
		l.PaidAt = &now
		l.NextPaymentDate = nil
	}

	if err := m.storage.ApplyLoanPayment(l, payment); err != nil {
		return nil, fmt.Errorf("failed to apply loan payment: %w", err)
	}

	borrower, err := m.storage.GetAccount(l.BorrowerID)
	if err == nil {
		lid := l.ID
		m.publish(notify.Event{
			Kind:      notify.KindLoanPaymentRecorded,
			AccountID: borrower.ID,
			OwnerID:   borrower.OwnerID,
			Amount:    amount,
			LoanID:    &lid,
			At:        now,
		})
		if paidOff {
			m.publish(notify.Event{
				Kind:      notify.KindLoanPaid,
				AccountID: borrower.ID,
				OwnerID:   borrower.OwnerID,
				Amount:    l.Principal,
				LoanID:    &lid,
				At:        now,
			})
		}
	}

	m.log.Info("loan payment recorded",
		zap.String("loan_id", l.ID.String()),
		zap.String("amount", amount.String()),
		zap.Bool("paid_off", paidOff))
	return payment, nil
}

// DuePaymentSweep returns ACCEPTED loans whose next payment date falls
// within the lookahead window. The caller notifies; this only selects.
func (m *Manager) DuePaymentSweep(withinDays int) ([]*models.Loan, error) {
	if withinDays < 0 {
		withinDays = 0
	}
	now := m.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, withinDays+1)
	return m.storage.LoansDueBetween(from, to)
}

// PaidOn returns loans that reached PAID on the given day, for the
// scheduled paid-today notification.
func (m *Manager) PaidOn(day time.Time) ([]*models.Loan, error) {
	return m.storage.LoansPaidOn(day)
}
