package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anishbk/corebank/pkg/models"
)

// MemoryStore is an in-memory Storage implementation. It backs engine tests
// and ephemeral deployments; a single mutex serializes all access so the
// Apply* methods are atomic the same way the SQLite transactions are.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	byNumber map[string]uuid.UUID
	txs      []*models.Transaction
	loans    map[uuid.UUID]*models.Loan
	payments []*models.LoanPayment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*models.Account),
		byNumber: make(map[string]uuid.UUID),
		loans:    make(map[uuid.UUID]*models.Loan),
	}
}

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	return &cp
}

func copyLoan(l *models.Loan) *models.Loan {
	cp := *l
	return &cp
}

func (m *MemoryStore) CreateAccount(a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byNumber[a.AccountNumber]; ok {
		return ErrDuplicateAccountNumber
	}
	m.accounts[a.ID] = copyAccount(a)
	m.byNumber[a.AccountNumber] = a.ID
	return nil
}

func (m *MemoryStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (m *MemoryStore) GetAccountByNumber(number string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byNumber[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(m.accounts[id]), nil
}

func (m *MemoryStore) UpdateAccount(a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[a.ID] = copyAccount(a)
	return nil
}

func (m *MemoryStore) ApplyTransaction(a *models.Account, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[a.ID] = copyAccount(a)
	cp := *t
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *MemoryStore) ApplyTransfer(src, dst *models.Account, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[src.ID]; !ok {
		return ErrAccountNotFound
	}
	if _, ok := m.accounts[dst.ID]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[src.ID] = copyAccount(src)
	m.accounts[dst.ID] = copyAccount(dst)
	cp := *t
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *MemoryStore) TransactionsForAccount(accountID uuid.UUID, f TransactionFilter) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, t := range m.txs {
		if t.AccountID != accountID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateLoan(l *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[l.ID] = copyLoan(l)
	return nil
}

func (m *MemoryStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return copyLoan(l), nil
}

func (m *MemoryStore) UpdateLoan(l *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[l.ID]; !ok {
		return ErrLoanNotFound
	}
	m.loans[l.ID] = copyLoan(l)
	return nil
}

func (m *MemoryStore) LoansForBorrower(accountID uuid.UUID) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Loan
	for _, l := range m.loans {
		if l.BorrowerID == accountID {
			out = append(out, copyLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

func (m *MemoryStore) LoansByStatus(status models.LoanStatus) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Loan
	for _, l := range m.loans {
		if l.Status == status {
			out = append(out, copyLoan(l))
		}
	}
	return out, nil
}

func (m *MemoryStore) CountActiveLoans(accountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.loans {
		if l.BorrowerID == accountID && (l.Status == models.LoanStatusPending || l.Status == models.LoanStatusAccepted) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ApplyLoanPayment(l *models.Loan, p *models.LoanPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[l.ID]; !ok {
		return ErrLoanNotFound
	}
	m.loans[l.ID] = copyLoan(l)
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *MemoryStore) PaymentsForLoan(loanID uuid.UUID) ([]*models.LoanPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LoanPayment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) LoansDueBetween(from, to time.Time) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Loan
	for _, l := range m.loans {
		if l.Status != models.LoanStatusAccepted || l.NextPaymentDate == nil {
			continue
		}
		d := *l.NextPaymentDate
		if !d.Before(from) && !d.After(to) {
			out = append(out, copyLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPaymentDate.Before(*out[j].NextPaymentDate) })
	return out, nil
}

func (m *MemoryStore) LoansPaidOn(day time.Time) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	var out []*models.Loan
	for _, l := range m.loans {
		if l.Status != models.LoanStatusPaid || l.PaidAt == nil {
			continue
		}
		if !l.PaidAt.Before(start) && l.PaidAt.Before(end) {
			out = append(out, copyLoan(l))
		}
	}
	return out, nil
}

func (m *MemoryStore) Stats() (*models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &models.DashboardStats{
		TotalAccounts:     len(m.accounts),
		TotalLoans:        len(m.loans),
		TotalTransactions: len(m.txs),
	}
	for _, a := range m.accounts {
		if a.Active {
			st.ActiveAccounts++
		}
	}
	for _, l := range m.loans {
		switch l.Status {
		case models.LoanStatusPending:
			st.PendingLoans++
		case models.LoanStatusAccepted:
			st.AcceptedLoans++
		}
	}
	return st, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
