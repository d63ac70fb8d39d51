// Package ledger implements the transactional account ledger: deposits,
// withdrawals and transfers with exclusive per-account access, each applied
// all-or-nothing against the backing store.
package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anishbk/corebank/pkg/locking"
	"github.com/anishbk/corebank/pkg/models"
	"github.com/anishbk/corebank/pkg/money"
	"github.com/anishbk/corebank/pkg/notify"
	"github.com/anishbk/corebank/pkg/store"
)

const (
	accountNumberDigits   = 12
	accountNumberAttempts = 5
)

// Ledger handles the business logic for accounts and transactions.
type Ledger struct {
	storage store.Storage
	locks   *locking.Keyed
	events  notify.Publisher // may be nil
	log     *zap.Logger

	randMu  sync.Mutex
	randSrc *rand.Rand // assigns account numbers
}

// NewLedger creates a Ledger over the given Storage implementation.
func NewLedger(s store.Storage, events notify.Publisher, log *zap.Logger) *Ledger {
	return &Ledger{
		storage: s,
		locks:   locking.NewKeyed(),
		events:  events,
		log:     log,
		randSrc: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (l *Ledger) publish(ev notify.Event) {
	if l.events != nil {
		l.events.Publish(ev)
	}
}

// generateAccountNumber returns a random 12-digit account number. The
// store's unique constraint catches the rare collision.
func (l *Ledger) generateAccountNumber() string {
	l.randMu.Lock()
	defer l.randMu.Unlock()
	digits := make([]byte, accountNumberDigits)
	for i := range digits {
		digits[i] = byte('0' + l.randSrc.Intn(10))
	}
	return string(digits)
}

// OpenAccount creates an active account with a zero balance and a freshly
// assigned account number.
func (l *Ledger) OpenAccount(ownerID string, accountType models.AccountType, currency string) (*models.Account, error) {
	if ownerID == "" || !accountType.Valid() {
		return nil, fmt.Errorf("%w: owner and valid account type required", ErrInvalidRequest)
	}
	if currency == "" {
		currency = "NPR"
	}

	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		now := time.Now()
		account := &models.Account{
			ID:            uuid.New(),
			OwnerID:       ownerID,
			AccountNumber: l.generateAccountNumber(),
			Type:          accountType,
			Balance:       money.Zero,
			Currency:      currency,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err := l.storage.CreateAccount(account)
		if err == nil {
			l.log.Info("account opened",
				zap.String("account_id", account.ID.String()),
				zap.String("owner_id", ownerID),
				zap.String("type", string(accountType)))
			return account, nil
		}
		if errors.Is(err, store.ErrDuplicateAccountNumber) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("could not assign a unique account number after %d attempts", accountNumberAttempts)
}

// CloseAccount soft-deactivates an account. Transactions referencing it are
// kept.
func (l *Ledger) CloseAccount(accountID uuid.UUID) error {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	account, err := l.storage.GetAccount(accountID)
	if err != nil {
		return err
	}
	account.Active = false
	account.UpdatedAt = time.Now()
	return l.storage.UpdateAccount(account)
}

// GetAccount retrieves an account by its ID.
func (l *Ledger) GetAccount(accountID uuid.UUID) (*models.Account, error) {
	return l.storage.GetAccount(accountID)
}

// Balance returns the account's current balance as recorded by the store.
// Balances are never cached across operations.
func (l *Ledger) Balance(accountID uuid.UUID) (money.Money, error) {
	account, err := l.storage.GetAccount(accountID)
	if err != nil {
		return money.Zero, err
	}
	return account.Balance, nil
}

// Transactions lists an account's transactions, newest first, optionally
// filtered by type and status.
func (l *Ledger) Transactions(accountID uuid.UUID, filter store.TransactionFilter) ([]*models.Transaction, error) {
	if _, err := l.storage.GetAccount(accountID); err != nil {
		return nil, err
	}
	return l.storage.TransactionsForAccount(accountID, filter)
}

// Deposit increases the account balance and writes a COMPLETED DEPOSIT
// transaction snapshotting the new balance.
func (l *Ledger) Deposit(accountID uuid.UUID, amount money.Money, description string) (*models.Transaction, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(accountID)
	defer unlock()

	account, err := l.storage.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	account.Balance = account.Balance.Add(amount)
	account.UpdatedAt = time.Now()

	tx := &models.Transaction{
		ID:           uuid.New(),
		AccountID:    account.ID,
		Type:         models.TransactionTypeDeposit,
		Amount:       amount,
		BalanceAfter: account.Balance,
		Description:  description,
		Status:       models.TransactionStatusCompleted,
		CreatedAt:    time.Now(),
	}
	if err := l.storage.ApplyTransaction(account, tx); err != nil {
		return nil, fmt.Errorf("failed to apply deposit: %w", err)
	}

	l.publish(notify.Event{
		Kind:      notify.KindTransactionCompleted,
		AccountID: account.ID,
		OwnerID:   account.OwnerID,
		Amount:    amount,
		Detail:    string(models.TransactionTypeDeposit),
		At:        tx.CreatedAt,
	})
	return tx, nil
}

// Withdraw decreases the account balance and writes a COMPLETED WITHDRAWAL
// transaction. The balance never goes negative.
func (l *Ledger) Withdraw(accountID uuid.UUID, amount money.Money, description string) (*models.Transaction, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(accountID)
	defer unlock()

	account, err := l.storage.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, account.Balance, amount)
	}

	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = time.Now()

	tx := &models.Transaction{
		ID:           uuid.New(),
		AccountID:    account.ID,
		Type:         models.TransactionTypeWithdrawal,
		Amount:       amount,
		BalanceAfter: account.Balance,
		Description:  description,
		Status:       models.TransactionStatusCompleted,
		CreatedAt:    time.Now(),
	}
	if err := l.storage.ApplyTransaction(account, tx); err != nil {
		return nil, fmt.Errorf("failed to apply withdrawal: %w", err)
	}

	l.publish(notify.Event{
		Kind:      notify.KindTransactionCompleted,
		AccountID: account.ID,
		OwnerID:   account.OwnerID,
		Amount:    amount,
		Detail:    string(models.TransactionTypeWithdrawal),
		At:        tx.CreatedAt,
	})
	return tx, nil
}

// Transfer debits the source, credits the recipient and writes one COMPLETED
// TRANSFER transaction on the source referencing the recipient. Both account
// locks are taken in ascending id order; on any validation failure nothing
// is persisted.
func (l *Ledger) Transfer(sourceID uuid.UUID, recipientNumber string, amount money.Money, description string) (*models.Transaction, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, err
	}
	if recipientNumber == "" {
		return nil, fmt.Errorf("%w: recipient account number is required", ErrInvalidRequest)
	}

	// Resolve the recipient id first so both locks can be ordered.
	recipient, err := l.storage.GetAccountByNumber(recipientNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == sourceID {
		return nil, ErrSameAccount
	}

	unlock := l.locks.LockPair(sourceID, recipient.ID)
	defer unlock()

	// Re-read both rows under the locks; balances are never trusted
	// across lock boundaries.
	source, err := l.storage.GetAccount(sourceID)
	if err != nil {
		return nil, err
	}
	recipient, err = l.storage.GetAccount(recipient.ID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if source.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, source.Balance, amount)
	}

	now := time.Now()
	source.Balance = source.Balance.Sub(amount)
	source.UpdatedAt = now
	recipient.Balance = recipient.Balance.Add(amount)
	recipient.UpdatedAt = now

	recipientID := recipient.ID
	tx := &models.Transaction{
		ID:           uuid.New(),
		AccountID:    source.ID,
		Type:         models.TransactionTypeTransfer,
		Amount:       amount,
		BalanceAfter: source.Balance,
		Description:  description,
		RecipientID:  &recipientID,
		Status:       models.TransactionStatusCompleted,
		CreatedAt:    now,
	}
	if err := l.storage.ApplyTransfer(source, recipient, tx); err != nil {
		return nil, fmt.Errorf("failed to apply transfer: %w", err)
	}

	l.publish(notify.Event{
		Kind:      notify.KindTransactionCompleted,
		AccountID: source.ID,
		OwnerID:   source.OwnerID,
		Amount:    amount,
		Detail:    string(models.TransactionTypeTransfer),
		At:        now,
	})
	l.publish(notify.Event{
		Kind:      notify.KindTransferReceived,
		AccountID: recipient.ID,
		OwnerID:   recipient.OwnerID,
		Amount:    amount,
		Detail:    "transfer from " + source.AccountNumber,
		At:        now,
	})
	return tx, nil
}
