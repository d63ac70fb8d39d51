// Package notify carries post-commit events out of the ledger and loan
// engines. Delivery is best-effort: publishing never blocks the mutation
// that produced the event, and a failed or dropped delivery never rolls
// anything back.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/anishbk/corebank/pkg/money"
)

type Kind string

const (
	KindTransactionCompleted Kind = "transaction.completed"
	KindTransferReceived     Kind = "transfer.received"
	KindLoanDecided          Kind = "loan.decided"
	KindLoanPaymentRecorded  Kind = "loan.payment_recorded"
	KindLoanPaymentDue       Kind = "loan.payment_due"
	KindLoanPaid             Kind = "loan.paid"
)

// Event describes one completed mutation or scheduled reminder. OwnerID
// identifies the account owner for the downstream delivery channel.
type Event struct {
	Kind      Kind        `json:"kind"`
	AccountID uuid.UUID   `json:"account_id"`
	OwnerID   string      `json:"owner_id"`
	Amount    money.Money `json:"amount"`
	LoanID    *uuid.UUID  `json:"loan_id,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	At        time.Time   `json:"at"`
}

// Publisher is the seam the engines publish through.
type Publisher interface {
	Publish(Event)
}

// Sender delivers one event to the outside world (mail gateway, message
// broker, SMS bridge). Errors are logged, not propagated.
type Sender interface {
	Send(Event) error
}

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corebank_notify_events_total",
		Help: "Events handed to the dispatcher, labeled by kind",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corebank_notify_dropped_total",
		Help: "Events dropped because the dispatch buffer was full",
	})
)

// Dispatcher fans events out to a Sender on its own goroutine. When the
// buffer is full the event is dropped and counted rather than blocking the
// publisher.
type Dispatcher struct {
	ch     chan Event
	sender Sender
	log    *zap.Logger

	// mu guards the closed flag against the channel close; a publisher
	// holding the read lock can never race a concurrent Close.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(sender Sender, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		ch:     make(chan Event, buffer),
		sender: sender,
		log:    log,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		if err := d.sender.Send(ev); err != nil {
			d.log.Warn("notification delivery failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("account_id", ev.AccountID.String()),
				zap.Error(err))
			continue
		}
		d.log.Debug("notification delivered",
			zap.String("kind", string(ev.Kind)),
			zap.String("account_id", ev.AccountID.String()))
	}
}

// Publish hands an event to the dispatch goroutine without blocking.
// Events published after Close are dropped.
func (d *Dispatcher) Publish(ev Event) {
	eventsPublished.WithLabelValues(string(ev.Kind)).Inc()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		eventsDropped.Inc()
		d.log.Warn("dispatcher closed, event dropped", zap.String("kind", string(ev.Kind)))
		return
	}
	select {
	case d.ch <- ev:
	default:
		eventsDropped.Inc()
		d.log.Warn("notification buffer full, event dropped", zap.String("kind", string(ev.Kind)))
	}
}

// Close stops the dispatcher after draining buffered events.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.ch)
	})
	<-d.done
}

// LogSender writes events to the log. It stands in for the mail/SMS
// gateway in deployments without one.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(ev Event) error {
	s.Log.Info("notification",
		zap.String("kind", string(ev.Kind)),
		zap.String("account_id", ev.AccountID.String()),
		zap.String("owner_id", ev.OwnerID),
		zap.String("amount", ev.Amount.String()),
		zap.String("detail", ev.Detail))
	return nil
}
