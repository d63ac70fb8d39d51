package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/anishbk/corebank/pkg/ledger"
	"github.com/anishbk/corebank/pkg/loan"
	"github.com/anishbk/corebank/pkg/models"
	"github.com/anishbk/corebank/pkg/money"
	"github.com/anishbk/corebank/pkg/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corebank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "corebank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Server holds the engines and exposes them over HTTP.
type Server struct {
	ledger  *ledger.Ledger
	loans   *loan.Manager
	storage store.Storage
	log     *zap.Logger
}

func NewServer(l *ledger.Ledger, m *loan.Manager, s store.Storage, log *zap.Logger) *Server {
	return &Server{ledger: l, loans: m, storage: s, log: log}
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondErr maps domain errors onto HTTP status codes.
func (s *Server) respondErr(w http.ResponseWriter, err error, method, endpoint string) {
	var code int
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrLoanNotFound),
		errors.Is(err, ledger.ErrRecipientNotFound):
		code = http.StatusNotFound
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidRequest),
		errors.Is(err, loan.ErrInvalidAction):
		code = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, loan.ErrOutOfRange),
		errors.Is(err, loan.ErrLoanLimitReached),
		errors.Is(err, loan.ErrLoanNotAccepted),
		errors.Is(err, loan.ErrLoanAlreadyPaid),
		errors.Is(err, loan.ErrLoanAlreadyDecided),
		errors.Is(err, loan.ErrPaymentExceedsRemaining):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrConflict):
		code = http.StatusConflict
	default:
		code = http.StatusInternalServerError
		s.log.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
	s.respondJSON(w, code, map[string]string{"error": err.Error()}, method, endpoint)
}

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[key])
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (s *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID  string             `json:"owner_id"`
		Type     models.AccountType `json:"account_type"`
		Currency string             `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "POST", "/accounts")
		return
	}
	account, err := s.ledger.OpenAccount(req.OwnerID, req.Type, req.Currency)
	if err != nil {
		s.respondErr(w, err, "POST", "/accounts")
		return
	}
	s.respondJSON(w, http.StatusCreated, account, "POST", "/accounts")
}

func (s *Server) getAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "GET", "/accounts/{id}")
		return
	}
	account, err := s.ledger.GetAccount(id)
	if err != nil {
		s.respondErr(w, err, "GET", "/accounts/{id}")
		return
	}
	s.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (s *Server) closeAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "DELETE", "/accounts/{id}")
		return
	}
	if err := s.ledger.CloseAccount(id); err != nil {
		s.respondErr(w, err, "DELETE", "/accounts/{id}")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil, "DELETE", "/accounts/{id}")
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "GET", "/accounts/{id}/balance")
		return
	}
	balance, err := s.ledger.Balance(id)
	if err != nil {
		s.respondErr(w, err, "GET", "/accounts/{id}/balance")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]money.Money{"balance": balance}, "GET", "/accounts/{id}/balance")
}

func (s *Server) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "GET", "/accounts/{id}/transactions")
		return
	}
	filter := store.TransactionFilter{}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = models.TransactionType(t)
	}
	if st := r.URL.Query().Get("status"); st != "" {
		filter.Status = models.TransactionStatus(st)
	}
	txs, err := s.ledger.Transactions(id, filter)
	if err != nil {
		s.respondErr(w, err, "GET", "/accounts/{id}/transactions")
		return
	}
	s.respondJSON(w, http.StatusOK, txs, "GET", "/accounts/{id}/transactions")
}

type amountRequest struct {
	Amount      money.Money `json:"amount"`
	Description string      `json:"description"`
}

func (s *Server) depositHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/deposit"))
	defer timer.ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "POST", "/accounts/{id}/deposit")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "POST", "/accounts/{id}/deposit")
		return
	}
	tx, err := s.ledger.Deposit(id, req.Amount, req.Description)
	if err != nil {
		s.respondErr(w, err, "POST", "/accounts/{id}/deposit")
		return
	}
	s.respondJSON(w, http.StatusCreated, tx, "POST", "/accounts/{id}/deposit")
}

func (s *Server) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/withdraw"))
	defer timer.ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "POST", "/accounts/{id}/withdraw")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "POST", "/accounts/{id}/withdraw")
		return
	}
	tx, err := s.ledger.Withdraw(id, req.Amount, req.Description)
	if err != nil {
		s.respondErr(w, err, "POST", "/accounts/{id}/withdraw")
		return
	}
	s.respondJSON(w, http.StatusCreated, tx, "POST", "/accounts/{id}/withdraw")
}

func (s *Server) transferHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/transfer"))
	defer timer.ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "POST", "/accounts/{id}/transfer")
		return
	}
	var req struct {
		Amount          money.Money `json:"amount"`
		RecipientNumber string      `json:"recipient_account_number"`
		Description     string      `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "POST", "/accounts/{id}/transfer")
		return
	}
	tx, err := s.ledger.Transfer(id, req.RecipientNumber, req.Amount, req.Description)
	if err != nil {
		s.respondErr(w, err, "POST", "/accounts/{id}/transfer")
		return
	}
	s.respondJSON(w, http.StatusCreated, tx, "POST", "/accounts/{id}/transfer")
}

func (s *Server) applyLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "POST", "/accounts/{id}/loans")
		return
	}
	var req struct {
		Principal    money.Money `json:"loan_amount"`
		InterestRate money.Money `json:"interest_rate"`
		TermMonths   int         `json:"loan_term_months"`
		Purpose      string      `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "POST", "/accounts/{id}/loans")
		return
	}
	l, err := s.loans.Apply(id, req.Principal, req.InterestRate, req.TermMonths, req.Purpose)
	if err != nil {
		s.respondErr(w, err, "POST", "/accounts/{id}/loans")
		return
	}
	s.respondJSON(w, http.StatusCreated, l, "POST", "/accounts/{id}/loans")
}

func (s *Server) listAccountLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"}, "GET", "/accounts/{id}/loans")
		return
	}
	loans, err := s.loans.ForBorrower(id)
	if err != nil {
		s.respondErr(w, err, "GET", "/accounts/{id}/loans")
		return
	}
	s.respondJSON(w, http.StatusOK, loans, "GET", "/accounts/{id}/loans")
}

// loanView augments a loan with its derived repayment figures.
type loanView struct {
	*models.Loan
	TotalPayable    money.Money `json:"total_payable"`
	TotalPaid       money.Money `json:"total_paid"`
	RemainingAmount money.Money `json:"remaining_amount"`
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid loan id"}, "GET", "/loans/{id}")
		return
	}
	l, err := s.loans.Get(id)
	if err != nil {
		s.respondErr(w, err, "GET", "/loans/{id}")
		return
	}
	payable, paid, remaining, err := s.loans.Remaining(l)
	if err != nil {
		s.respondErr(w, err, "GET", "/loans/{id}")
		return
	}
	s.respondJSON(w, http.StatusOK, loanView{l, payable, paid, remaining}, "GET", "/loans/{id}")
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	status := models.LoanStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.LoanStatusPending
	}
	loans, err := s.loans.ByStatus(status)
	if err != nil {
		s.respondErr(w, err, "GET", "/loans")
		return
	}
	s.respondJSON(w, http.StatusOK, loans, "GET", "/loans")
}

func (s *Server) decideLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid loan id"}, "PUT", "/loans/{id}/decision")
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "PUT", "/loans/{id}/decision")
		return
	}
	l, err := s.loans.Decide(id, req.Action)
	if err != nil {
		s.respondErr(w, err, "PUT", "/loans/{id}/decision")
		return
	}
	s.respondJSON(w, http.StatusOK, l, "PUT", "/loans/{id}/decision")
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/loans/{id}/payments"))
	defer timer.ObserveDuration()

	id, err := pathID(r, "id")
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid loan id"}, "POST", "/loans/{id}/payments")
		return
	}
	var req struct {
		Amount money.Money `json:"amount"`
		Method string      `json:"payment_method"`
		Notes  string      `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, "POST", "/loans/{id}/payments")
		return
	}
	payment, err := s.loans.RecordPayment(id, req.Amount, req.Method, req.Notes)
	if err != nil {
		s.respondErr(w, err, "POST", "/loans/{id}/payments")
		return
	}
	s.respondJSON(w, http.StatusCreated, payment, "POST", "/loans/{id}/payments")
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.Stats()
	if err != nil {
		s.respondErr(w, err, "GET", "/stats")
		return
	}
	s.respondJSON(w, http.StatusOK, stats, "GET", "/stats")
}
