package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anishbk/corebank/pkg/config"
	"github.com/anishbk/corebank/pkg/ledger"
	"github.com/anishbk/corebank/pkg/loan"
	"github.com/anishbk/corebank/pkg/notify"
	"github.com/anishbk/corebank/pkg/store"
)

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(l)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func newRouter(s *Server) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/health", s.healthHandler).Methods("GET")

	router.HandleFunc("/accounts", s.createAccountHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}", s.getAccountHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}", s.closeAccountHandler).Methods("DELETE")
	router.HandleFunc("/accounts/{id}/balance", s.balanceHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}/transactions", s.listTransactionsHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}/deposit", s.depositHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}/withdraw", s.withdrawHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}/transfer", s.transferHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}/loans", s.applyLoanHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}/loans", s.listAccountLoansHandler).Methods("GET")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/decision", s.decideLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")

	router.HandleFunc("/stats", s.statsHandler).Methods("GET")
	return router
}

// runSweeps periodically selects loans needing attention and hands them to
// the notification dispatcher: payments coming due within the lookahead
// window, and loans fully repaid today.
func runSweeps(manager *loan.Manager, storage store.Storage, dispatcher *notify.Dispatcher, logger *zap.Logger, interval time.Duration, lookaheadDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		due, err := manager.DuePaymentSweep(lookaheadDays)
		if err != nil {
			logger.Error("due payment sweep failed", zap.Error(err))
		} else {
			for _, l := range due {
				borrower, err := storage.GetAccount(l.BorrowerID)
				if err != nil {
					continue
				}
				loanID := l.ID
				dispatcher.Publish(notify.Event{
					Kind:      notify.KindLoanPaymentDue,
					AccountID: borrower.ID,
					OwnerID:   borrower.OwnerID,
					Amount:    l.MonthlyPayment,
					LoanID:    &loanID,
					Detail:    "payment due " + l.NextPaymentDate.Format("2006-01-02"),
					At:        time.Now(),
				})
			}
			logger.Info("due payment sweep complete", zap.Int("loans", len(due)))
		}

		paid, err := manager.PaidOn(time.Now())
		if err != nil {
			logger.Error("paid-today sweep failed", zap.Error(err))
			continue
		}
		for _, l := range paid {
			borrower, err := storage.GetAccount(l.BorrowerID)
			if err != nil {
				continue
			}
			loanID := l.ID
			dispatcher.Publish(notify.Event{
				Kind:      notify.KindLoanPaid,
				AccountID: borrower.ID,
				OwnerID:   borrower.OwnerID,
				Amount:    l.Principal,
				LoanID:    &loanID,
				Detail:    "loan fully repaid",
				At:        time.Now(),
			})
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	storage, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer storage.Close()

	dispatcher := notify.NewDispatcher(notify.LogSender{Log: logger}, cfg.NotifyBuffer, logger)
	defer dispatcher.Close()

	bank := ledger.NewLedger(storage, dispatcher, logger)
	loans := loan.NewManager(storage, dispatcher, logger, cfg.MaxActiveLoans)
	server := NewServer(bank, loans, storage, logger)

	go runSweeps(loans, storage, dispatcher, logger, cfg.SweepInterval, cfg.SweepLookaheadDays)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, newRouter(server)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
