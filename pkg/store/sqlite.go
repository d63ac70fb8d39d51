package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/anishbk/corebank/pkg/models"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		account_number TEXT NOT NULL UNIQUE,
		account_type TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		recipient_id TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		borrower_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		monthly_payment TEXT NOT NULL,
		status TEXT NOT NULL,
		accepted INTEGER NOT NULL DEFAULT 0,
		purpose TEXT NOT NULL DEFAULT '',
		applied_at DATETIME NOT NULL,
		accepted_at DATETIME,
		next_payment_date DATETIME,
		last_payment_date DATETIME,
		paid_at DATETIME,
		FOREIGN KEY(borrower_id) REFERENCES accounts(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS loan_payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at DATETIME NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		transaction_ref TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower_id);
	CREATE INDEX IF NOT EXISTS idx_loans_next_payment ON loans(status, next_payment_date);
	CREATE INDEX IF NOT EXISTS idx_loan_payments_loan ON loan_payments(loan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// mapErr converts driver-level failures into the store's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case se.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %v", ErrDuplicateAccountNumber, err)
		}
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// CreateAccount inserts a new account.
func (s *SQLiteStore) CreateAccount(a *models.Account) error {
	_, err := s.db.Exec(
		`INSERT INTO accounts (id, owner_id, account_number, account_type, balance, currency, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OwnerID, a.AccountNumber, string(a.Type), a.Balance, a.Currency, a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapErr(err))
	}
	return nil
}

const accountColumns = `id, owner_id, account_number, account_type, balance, currency, active, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	var idStr string
	err := row.Scan(&idStr, &a.OwnerID, &a.AccountNumber, &a.Type, &a.Balance, &a.Currency, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.ID = uuid.MustParse(idStr)
	return &a, nil
}

// GetAccount retrieves an account by its ID.
func (s *SQLiteStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	return scanAccount(row)
}

// GetAccountByNumber retrieves an account by its external account number.
func (s *SQLiteStore) GetAccountByNumber(number string) (*models.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE account_number = ?`, number)
	return scanAccount(row)
}

// UpdateAccount updates an existing account's mutable fields.
func (s *SQLiteStore) UpdateAccount(a *models.Account) error {
	result, err := s.db.Exec(
		`UPDATE accounts SET balance = ?, active = ?, updated_at = ? WHERE id = ?`,
		a.Balance, a.Active, a.UpdatedAt, a.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", mapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func insertTransaction(tx *sql.Tx, t *models.Transaction) error {
	_, err := tx.Exec(
		`INSERT INTO transactions (id, account_id, type, amount, balance_after, description, recipient_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.AccountID.String(), string(t.Type), t.Amount, t.BalanceAfter, t.Description, nullUUID(t.RecipientID), string(t.Status), t.CreatedAt,
	)
	return err
}

func updateBalance(tx *sql.Tx, a *models.Account) error {
	result, err := tx.Exec(
		`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
		a.Balance, a.UpdatedAt, a.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ApplyTransaction writes the new balance and the transaction record in one
// database transaction. Nothing is persisted on failure.
func (s *SQLiteStore) ApplyTransaction(a *models.Account, t *models.Transaction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	if err := updateBalance(tx, a); err != nil {
		return fmt.Errorf("failed to update balance: %w", mapErr(err))
	}
	if err := insertTransaction(tx, t); err != nil {
		return fmt.Errorf("failed to create transaction record: %w", mapErr(err))
	}
	return mapErr(tx.Commit())
}

// ApplyTransfer writes both mutated balances and the source-side transfer
// record in one database transaction.
func (s *SQLiteStore) ApplyTransfer(src, dst *models.Account, t *models.Transaction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	if err := updateBalance(tx, src); err != nil {
		return fmt.Errorf("failed to debit source: %w", mapErr(err))
	}
	if err := updateBalance(tx, dst); err != nil {
		return fmt.Errorf("failed to credit recipient: %w", mapErr(err))
	}
	if err := insertTransaction(tx, t); err != nil {
		return fmt.Errorf("failed to create transfer record: %w", mapErr(err))
	}
	return mapErr(tx.Commit())
}

// TransactionsForAccount lists an account's transactions, newest first,
// optionally filtered by type and status.
func (s *SQLiteStore) TransactionsForAccount(accountID uuid.UUID, f TransactionFilter) ([]*models.Transaction, error) {
	query := `SELECT id, account_id, type, amount, balance_after, description, recipient_id, status, created_at
		FROM transactions WHERE account_id = ?`
	args := []interface{}{accountID.String()}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var idStr, accStr string
		var recipient sql.NullString
		if err := rows.Scan(&idStr, &accStr, &t.Type, &t.Amount, &t.BalanceAfter, &t.Description, &recipient, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.ID = uuid.MustParse(idStr)
		t.AccountID = uuid.MustParse(accStr)
		if recipient.Valid {
			rid := uuid.MustParse(recipient.String)
			t.RecipientID = &rid
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return out, nil
}

// CreateLoan inserts a new loan.
func (s *SQLiteStore) CreateLoan(l *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (id, borrower_id, principal, interest_rate, term_months, monthly_payment, status, accepted, purpose, applied_at, accepted_at, next_payment_date, last_payment_date, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.BorrowerID.String(), l.Principal, l.InterestRate, l.TermMonths, l.MonthlyPayment, string(l.Status), l.Accepted, l.Purpose,
		l.AppliedAt, nullTime(l.AcceptedAt), nullTime(l.NextPaymentDate), nullTime(l.LastPaymentDate), nullTime(l.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", mapErr(err))
	}
	return nil
}

const loanColumns = `id, borrower_id, principal, interest_rate, term_months, monthly_payment, status, accepted, purpose, applied_at, accepted_at, next_payment_date, last_payment_date, paid_at`

func scanLoanRow(scan func(dest ...interface{}) error) (*models.Loan, error) {
	var l models.Loan
	var idStr, borrowerStr string
	var acceptedAt, nextPayment, lastPayment, paidAt sql.NullTime
	err := scan(&idStr, &borrowerStr, &l.Principal, &l.InterestRate, &l.TermMonths, &l.MonthlyPayment, &l.Status, &l.Accepted, &l.Purpose,
		&l.AppliedAt, &acceptedAt, &nextPayment, &lastPayment, &paidAt)
	if err != nil {
		return nil, err
	}
	l.ID = uuid.MustParse(idStr)
	l.BorrowerID = uuid.MustParse(borrowerStr)
	l.AcceptedAt = timePtr(acceptedAt)
	l.NextPaymentDate = timePtr(nextPayment)
	l.LastPaymentDate = timePtr(lastPayment)
	l.PaidAt = timePtr(paidAt)
	return &l, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	l, err := scanLoanRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return l, nil
}

// UpdateLoan updates an existing loan.
func (s *SQLiteStore) UpdateLoan(l *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET status = ?, accepted = ?, accepted_at = ?, next_payment_date = ?, last_payment_date = ?, paid_at = ? WHERE id = ?`,
		string(l.Status), l.Accepted, nullTime(l.AcceptedAt), nullTime(l.NextPaymentDate), nullTime(l.LastPaymentDate), nullTime(l.PaidAt), l.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", mapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (s *SQLiteStore) queryLoans(query string, args ...interface{}) ([]*models.Loan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		l, err := scanLoanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// LoansForBorrower lists a borrower account's loans, newest first.
func (s *SQLiteStore) LoansForBorrower(accountID uuid.UUID) ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE borrower_id = ? ORDER BY applied_at DESC`, accountID.String())
}

// LoansByStatus lists all loans holding the given status, newest first.
func (s *SQLiteStore) LoansByStatus(status models.LoanStatus) ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY applied_at DESC`, string(status))
}

// CountActiveLoans counts a borrower's PENDING and ACCEPTED loans.
func (s *SQLiteStore) CountActiveLoans(accountID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM loans WHERE borrower_id = ? AND status IN (?, ?)`,
		accountID.String(), string(models.LoanStatusPending), string(models.LoanStatusAccepted),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active loans: %w", err)
	}
	return n, nil
}

// ApplyLoanPayment writes the loan's updated fields and the payment record
// in one database transaction.
func (s *SQLiteStore) ApplyLoanPayment(l *models.Loan, p *models.LoanPayment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE loans SET status = ?, next_payment_date = ?, last_payment_date = ?, paid_at = ? WHERE id = ?`,
		string(l.Status), nullTime(l.NextPaymentDate), nullTime(l.LastPaymentDate), nullTime(l.PaidAt), l.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", mapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrLoanNotFound
	}

	_, err = tx.Exec(
		`INSERT INTO loan_payments (id, loan_id, amount, paid_at, method, notes, transaction_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.Amount, p.PaidAt, p.Method, p.Notes, p.TransactionRef,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan payment: %w", mapErr(err))
	}
	return mapErr(tx.Commit())
}

// PaymentsForLoan lists all payments recorded against a loan.
func (s *SQLiteStore) PaymentsForLoan(loanID uuid.UUID) ([]*models.LoanPayment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, paid_at, method, notes, transaction_ref FROM loan_payments WHERE loan_id = ? ORDER BY paid_at DESC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.LoanPayment
	for rows.Next() {
		var p models.LoanPayment
		var idStr, loanStr string
		if err := rows.Scan(&idStr, &loanStr, &p.Amount, &p.PaidAt, &p.Method, &p.Notes, &p.TransactionRef); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.LoanID = uuid.MustParse(loanStr)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// LoansDueBetween returns ACCEPTED loans with a next payment date inside
// [from, to].
func (s *SQLiteStore) LoansDueBetween(from, to time.Time) ([]*models.Loan, error) {
	return s.queryLoans(
		`SELECT `+loanColumns+` FROM loans WHERE status = ? AND next_payment_date IS NOT NULL AND next_payment_date >= ? AND next_payment_date <= ? ORDER BY next_payment_date ASC`,
		string(models.LoanStatusAccepted), from, to,
	)
}

// LoansPaidOn returns loans that transitioned to PAID on the given day.
func (s *SQLiteStore) LoansPaidOn(day time.Time) ([]*models.Loan, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	return s.queryLoans(
		`SELECT `+loanColumns+` FROM loans WHERE status = ? AND paid_at IS NOT NULL AND paid_at >= ? AND paid_at < ?`,
		string(models.LoanStatusPaid), start, end,
	)
}

// Stats returns aggregate counts for the admin dashboard.
func (s *SQLiteStore) Stats() (*models.DashboardStats, error) {
	var st models.DashboardStats
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM accounts),
		(SELECT COUNT(*) FROM accounts WHERE active = 1),
		(SELECT COUNT(*) FROM loans),
		(SELECT COUNT(*) FROM loans WHERE status = 'PENDING'),
		(SELECT COUNT(*) FROM loans WHERE status = 'ACCEPTED'),
		(SELECT COUNT(*) FROM transactions)`,
	).Scan(&st.TotalAccounts, &st.ActiveAccounts, &st.TotalLoans, &st.PendingLoans, &st.AcceptedLoans, &st.TotalTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
