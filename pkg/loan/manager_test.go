package loan

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anishbk/corebank/pkg/models"
	"github.com/anishbk/corebank/pkg/money"
	"github.com/anishbk/corebank/pkg/store"
)

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore, *models.Account) {
	t.Helper()
	st := store.NewMemoryStore()
	account := &models.Account{
		ID:            uuid.New(),
		OwnerID:       "user-1",
		AccountNumber: "111122223333",
		Type:          models.AccountTypeSavings,
		Balance:       money.Zero,
		Currency:      "NPR",
		Active:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, st.CreateAccount(account))
	return NewManager(st, nil, zap.NewNop(), 3), st, account
}

func apply(t *testing.T, m *Manager, accountID uuid.UUID) *models.Loan {
	t.Helper()
	l, err := m.Apply(accountID, money.FromInt(120000), money.FromInt(12), 12, "home repairs")
	require.NoError(t, err)
	return l
}

func TestApply(t *testing.T) {
	m, _, account := newTestManager(t)

	l := apply(t, m, account.ID)
	assert.Equal(t, models.LoanStatusPending, l.Status)
	assert.False(t, l.Accepted)
	assert.Equal(t, "10661.85", l.MonthlyPayment.String())
	assert.Nil(t, l.NextPaymentDate)
}

func TestApplyBounds(t *testing.T) {
	m, _, account := newTestManager(t)

	tests := []struct {
		name      string
		principal money.Money
		rate      money.Money
		term      int
	}{
		{"principal below minimum", money.FromInt(9999), money.FromInt(12), 12},
		{"principal above maximum", money.FromInt(5000001), money.FromInt(12), 12},
		{"rate below minimum", money.FromInt(120000), money.FromInt(4), 12},
		{"rate above maximum", money.FromInt(120000), money.FromInt(26), 12},
		{"term too short", money.FromInt(120000), money.FromInt(12), 5},
		{"term too long", money.FromInt(120000), money.FromInt(12), 121},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Apply(account.ID, tt.principal, tt.rate, tt.term, "")
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestApplyUnknownAccount(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Apply(uuid.New(), money.FromInt(120000), money.FromInt(12), 12, "")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestApplyLoanLimit(t *testing.T) {
	m, _, account := newTestManager(t)

	for i := 0; i < 3; i++ {
		apply(t, m, account.ID)
	}
	_, err := m.Apply(account.ID, money.FromInt(120000), money.FromInt(12), 12, "")
	assert.ErrorIs(t, err, ErrLoanLimitReached)

	// Rejected loans do not count against the cap.
	loans, err := m.ByStatus(models.LoanStatusPending)
	require.NoError(t, err)
	_, err = m.Decide(loans[0].ID, "reject")
	require.NoError(t, err)

	_, err = m.Apply(account.ID, money.FromInt(120000), money.FromInt(12), 12, "")
	assert.NoError(t, err)
}

func TestApplyConcurrentRespectsLimit(t *testing.T) {
	m, st, account := newTestManager(t)

	var succeeded int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Apply(account.ID, money.FromInt(120000), money.FromInt(12), 12, "")
			if err == nil {
				atomic.AddInt64(&succeeded, 1)
			} else {
				assert.ErrorIs(t, err, ErrLoanLimitReached)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, succeeded)
	n, err := st.CountActiveLoans(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDecideAccept(t *testing.T) {
	m, _, account := newTestManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	l := apply(t, m, account.ID)
	decided, err := m.Decide(l.ID, "accept")
	require.NoError(t, err)

	assert.Equal(t, models.LoanStatusAccepted, decided.Status)
	assert.True(t, decided.Accepted)
	require.NotNil(t, decided.AcceptedAt)
	assert.True(t, decided.AcceptedAt.Equal(now))
	require.NotNil(t, decided.NextPaymentDate)
	assert.True(t, decided.NextPaymentDate.Equal(now.AddDate(0, 0, 30)))
}

func TestDecideReject(t *testing.T) {
	m, _, account := newTestManager(t)

	l := apply(t, m, account.ID)
	decided, err := m.Decide(l.ID, "reject")
	require.NoError(t, err)

	assert.Equal(t, models.LoanStatusRejected, decided.Status)
	assert.False(t, decided.Accepted)
	assert.Nil(t, decided.NextPaymentDate)
}

func TestDecideValidation(t *testing.T) {
	m, _, account := newTestManager(t)
	l := apply(t, m, account.ID)

	_, err := m.Decide(l.ID, "approve")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = m.Decide(uuid.New(), "accept")
	assert.ErrorIs(t, err, store.ErrLoanNotFound)

	// A decided loan cannot be re-decided.
	_, err = m.Decide(l.ID, "accept")
	require.NoError(t, err)
	_, err = m.Decide(l.ID, "reject")
	assert.ErrorIs(t, err, ErrLoanAlreadyDecided)
}

func acceptLoan(t *testing.T, m *Manager, accountID uuid.UUID) *models.Loan {
	t.Helper()
	l := apply(t, m, accountID)
	accepted, err := m.Decide(l.ID, "accept")
	require.NoError(t, err)
	return accepted
}

func TestRecordPayment(t *testing.T) {
	m, st, account := newTestManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	l := acceptLoan(t, m, account.ID)

	p, err := m.RecordPayment(l.ID, l.MonthlyPayment, "Online Transfer", "first installment")
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(l.MonthlyPayment))

	updated, err := m.Get(l.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastPaymentDate)
	assert.True(t, updated.LastPaymentDate.Equal(now))
	require.NotNil(t, updated.NextPaymentDate)
	assert.True(t, updated.NextPaymentDate.Equal(now.AddDate(0, 0, 30)))
	assert.Equal(t, models.LoanStatusAccepted, updated.Status)

	payments, err := st.PaymentsForLoan(l.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRecordPaymentStateChecks(t *testing.T) {
	m, _, account := newTestManager(t)

	pending := apply(t, m, account.ID)
	_, err := m.RecordPayment(pending.ID, money.FromInt(100), "", "")
	assert.ErrorIs(t, err, ErrLoanNotAccepted)

	_, err = m.RecordPayment(pending.ID, money.FromInt(-1), "", "")
	assert.ErrorIs(t, err, money.ErrInvalidAmount)

	_, err = m.RecordPayment(uuid.New(), money.FromInt(100), "", "")
	assert.ErrorIs(t, err, store.ErrLoanNotFound)
}

func TestRecordPaymentExceedsRemaining(t *testing.T) {
	m, st, account := newTestManager(t)
	l := acceptLoan(t, m, account.ID)

	_, _, remaining, err := m.Remaining(l)
	require.NoError(t, err)

	over := remaining.Add(amount(t, "0.01"))
	_, err = m.RecordPayment(l.ID, over, "", "")
	assert.ErrorIs(t, err, ErrPaymentExceedsRemaining)

	// No payment record may survive the failure.
	payments, err := st.PaymentsForLoan(l.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestLoanPayoff(t *testing.T) {
	m, _, account := newTestManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	l := acceptLoan(t, m, account.ID)
	payable, _, remaining, err := m.Remaining(l)
	require.NoError(t, err)
	assert.True(t, payable.Equal(remaining))

	// Eleven regular installments, then the balance.
	for i := 0; i < 11; i++ {
		_, err := m.RecordPayment(l.ID, l.MonthlyPayment, "", "")
		require.NoError(t, err)
	}
	_, _, remaining, err = m.Remaining(l)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(l.MonthlyPayment))

	_, err = m.RecordPayment(l.ID, remaining, "", "")
	require.NoError(t, err)

	paid, err := m.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, _, remaining, err = m.Remaining(paid)
	require.NoError(t, err)
	assert.True(t, remaining.IsZero())

	// Terminal: no further payments.
	_, err = m.RecordPayment(l.ID, money.FromInt(1), "", "")
	assert.ErrorIs(t, err, ErrLoanAlreadyPaid)
}

func TestDuePaymentSweep(t *testing.T) {
	m, _, account := newTestManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	accepted := acceptLoan(t, m, account.ID) // due now+30d
	apply(t, m, account.ID)                  // pending, never due

	due, err := m.DuePaymentSweep(3)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Move the clock to two days before the due date.
	m.now = func() time.Time { return now.AddDate(0, 0, 28) }
	due, err = m.DuePaymentSweep(3)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, accepted.ID, due[0].ID)
}

func TestPaidOn(t *testing.T) {
	m, _, account := newTestManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	l := acceptLoan(t, m, account.ID)
	_, _, remaining, err := m.Remaining(l)
	require.NoError(t, err)
	_, err = m.RecordPayment(l.ID, remaining, "", "")
	require.NoError(t, err)

	paid, err := m.PaidOn(now)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, l.ID, paid[0].ID)

	paid, err = m.PaidOn(now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, paid)
}
