package ledger

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anishbk/corebank/pkg/models"
	"github.com/anishbk/corebank/pkg/money"
	"github.com/anishbk/corebank/pkg/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewLedger(st, nil, zap.NewNop()), st
}

func openAccount(t *testing.T, l *Ledger) *models.Account {
	t.Helper()
	a, err := l.OpenAccount("user-1", models.AccountTypeSavings, "")
	require.NoError(t, err)
	return a
}

func TestOpenAccount(t *testing.T) {
	l, _ := newTestLedger(t)

	a := openAccount(t, l)
	assert.Len(t, a.AccountNumber, 12)
	assert.Regexp(t, `^\d{12}$`, a.AccountNumber)
	assert.Equal(t, "NPR", a.Currency)
	assert.True(t, a.Active)
	assert.True(t, a.Balance.IsZero())

	b := openAccount(t, l)
	assert.NotEqual(t, a.AccountNumber, b.AccountNumber)
}

func TestOpenAccountValidation(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.OpenAccount("", models.AccountTypeSavings, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.OpenAccount("user-1", models.AccountType("PREMIUM"), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// Two ledgers with identically seeded number generators over one SQLite
// store: the second must hit the unique constraint and retry with a fresh
// number rather than surface the collision.
func TestOpenAccountRetriesCollision(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	la := NewLedger(st, nil, zap.NewNop())
	la.randSrc = rand.New(rand.NewSource(7))
	first, err := la.OpenAccount("user-1", models.AccountTypeSavings, "")
	require.NoError(t, err)

	lb := NewLedger(st, nil, zap.NewNop())
	lb.randSrc = rand.New(rand.NewSource(7))
	second, err := lb.OpenAccount("user-2", models.AccountTypeSavings, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.AccountNumber, second.AccountNumber)
}

func TestCloseAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)

	require.NoError(t, l.CloseAccount(a.ID))

	got, err := l.GetAccount(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestDeposit(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)

	tx, err := l.Deposit(a.ID, money.FromInt(500), "salary")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeDeposit, tx.Type)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, "500.00", tx.BalanceAfter.String())

	balance, err := l.Balance(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", balance.String())
}

func TestDepositValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)

	for _, amt := range []money.Money{money.Zero, money.FromInt(-10)} {
		_, err := l.Deposit(a.ID, amt, "")
		assert.ErrorIs(t, err, money.ErrInvalidAmount)
	}

	balance, err := l.Balance(a.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWithdraw(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)
	_, err := l.Deposit(a.ID, money.FromInt(500), "")
	require.NoError(t, err)

	tx, err := l.Withdraw(a.ID, mustMoney(t, "199.99"), "groceries")
	require.NoError(t, err)
	assert.Equal(t, "300.01", tx.BalanceAfter.String())

	// Withdrawing the exact balance is allowed.
	_, err = l.Withdraw(a.ID, mustMoney(t, "300.01"), "")
	require.NoError(t, err)
	balance, err := l.Balance(a.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)
	_, err := l.Deposit(a.ID, money.FromInt(100), "")
	require.NoError(t, err)

	_, err = l.Withdraw(a.ID, mustMoney(t, "100.01"), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed attempt must leave no trace.
	balance, err := l.Balance(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance.String())
	txs, err := l.Transactions(a.ID, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestTransfer(t *testing.T) {
	l, _ := newTestLedger(t)
	src := openAccount(t, l)
	dst := openAccount(t, l)
	_, err := l.Deposit(src.ID, money.FromInt(1000), "")
	require.NoError(t, err)

	tx, err := l.Transfer(src.ID, dst.AccountNumber, mustMoney(t, "250.50"), "rent")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeTransfer, tx.Type)
	assert.Equal(t, "749.50", tx.BalanceAfter.String())
	require.NotNil(t, tx.RecipientID)
	assert.Equal(t, dst.ID, *tx.RecipientID)

	srcBalance, err := l.Balance(src.ID)
	require.NoError(t, err)
	assert.Equal(t, "749.50", srcBalance.String())
	dstBalance, err := l.Balance(dst.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.50", dstBalance.String())
}

func TestTransferValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	src := openAccount(t, l)
	_, err := l.Deposit(src.ID, money.FromInt(1000), "")
	require.NoError(t, err)

	_, err = l.Transfer(src.ID, "", money.FromInt(10), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = l.Transfer(src.ID, "000000000000", money.FromInt(10), "")
	assert.ErrorIs(t, err, ErrRecipientNotFound)

	_, err = l.Transfer(src.ID, src.AccountNumber, money.FromInt(10), "")
	assert.ErrorIs(t, err, ErrSameAccount)

	dst := openAccount(t, l)
	_, err = l.Transfer(src.ID, dst.AccountNumber, money.FromInt(1001), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// None of the failures may move money.
	srcBalance, err := l.Balance(src.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", srcBalance.String())
	dstBalance, err := l.Balance(dst.ID)
	require.NoError(t, err)
	assert.True(t, dstBalance.IsZero())
}

func TestTransactionFilters(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)
	_, err := l.Deposit(a.ID, money.FromInt(100), "")
	require.NoError(t, err)
	_, err = l.Deposit(a.ID, money.FromInt(200), "")
	require.NoError(t, err)
	_, err = l.Withdraw(a.ID, money.FromInt(50), "")
	require.NoError(t, err)

	all, err := l.Transactions(a.ID, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	deposits, err := l.Transactions(a.ID, store.TransactionFilter{Type: models.TransactionTypeDeposit})
	require.NoError(t, err)
	assert.Len(t, deposits, 2)

	withdrawals, err := l.Transactions(a.ID, store.TransactionFilter{Type: models.TransactionTypeWithdrawal})
	require.NoError(t, err)
	assert.Len(t, withdrawals, 1)
}

// Concurrent transfers across a ring of accounts must conserve the total.
func TestConcurrentTransfersConserveMoney(t *testing.T) {
	l, _ := newTestLedger(t)

	const accounts = 4
	const transfersPerPair = 25

	var accs []*models.Account
	for i := 0; i < accounts; i++ {
		a := openAccount(t, l)
		_, err := l.Deposit(a.ID, money.FromInt(10000), "seed")
		require.NoError(t, err)
		accs = append(accs, a)
	}

	var wg sync.WaitGroup
	for i := 0; i < accounts; i++ {
		for j := 0; j < accounts; j++ {
			if i == j {
				continue
			}
			wg.Add(1)
			go func(src, dst *models.Account) {
				defer wg.Done()
				for k := 0; k < transfersPerPair; k++ {
					_, err := l.Transfer(src.ID, dst.AccountNumber, mustMoney(t, "1.37"), "churn")
					if err != nil {
						panic(fmt.Sprintf("transfer failed: %v", err))
					}
				}
			}(accs[i], accs[j])
		}
	}
	wg.Wait()

	total := money.Zero
	for _, a := range accs {
		balance, err := l.Balance(a.ID)
		require.NoError(t, err)
		assert.False(t, balance.IsNegative())
		total = total.Add(balance)
	}
	assert.Equal(t, "40000.00", total.String())
}

// Crossing transfers of equal amounts between the same two accounts must not
// deadlock and must leave both balances unchanged.
func TestCrossingTransfers(t *testing.T) {
	l, _ := newTestLedger(t)
	a := openAccount(t, l)
	b := openAccount(t, l)
	for _, acc := range []*models.Account{a, b} {
		_, err := l.Deposit(acc.ID, money.FromInt(1000), "")
		require.NoError(t, err)
	}

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := l.Transfer(a.ID, b.AccountNumber, money.FromInt(10), ""); err != nil {
				panic(err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := l.Transfer(b.ID, a.AccountNumber, money.FromInt(10), ""); err != nil {
				panic(err)
			}
		}
	}()
	wg.Wait()

	for _, acc := range []*models.Account{a, b} {
		balance, err := l.Balance(acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "1000.00", balance.String())
	}
}

func mustMoney(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.FromString(s)
	require.NoError(t, err)
	return m
}
