package transaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/fifo"
	"github.com/chargepoint/ocpp16cp/internal/ocpperr"
)

// Sender issues a CALL for action/payload and waits for its outcome. It
// is satisfied by internal/rpc.Peer.Call, accepting json.RawMessage as
// the payload since the FIFO stores requests already serialized.
type Sender interface {
	Call(ctx context.Context, action string, payload any) (response json.RawMessage, err error)
}

// RetryConfig bounds the retry driver's back-off, sourced from the
// TransactionMessageRetryInterval/TransactionMessageAttempts
// configuration keys.
type RetryConfig struct {
	Interval time.Duration
	MaxTries int
}

// RetryDriver drains the FIFO strictly head-first whenever the
// transport is connected, per spec §4.2's retry driver.
type RetryDriver struct {
	fifo      *fifo.Fifo
	sender    Sender
	connected func() bool
	cfg       RetryConfig
	log       *logrus.Entry

	// OnAck, when set, is invoked with the CALLRESULT payload right after
	// a successful delivery and before the entry is popped, so a
	// StartTransaction response can still be correlated to its FIFO
	// entry (e.g. to learn the assigned transaction id).
	OnAck func(id uint32, action string, response json.RawMessage)

	wake chan struct{}
	done chan struct{}
}

// NewRetryDriver returns a driver; call Run in its own goroutine.
func NewRetryDriver(f *fifo.Fifo, sender Sender, connected func() bool, cfg RetryConfig, log *logrus.Entry) *RetryDriver {
	return &RetryDriver{
		fifo:      f,
		sender:    sender,
		connected: connected,
		cfg:       cfg,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Nudge wakes the driver, e.g. after a Push or a reconnect.
func (d *RetryDriver) Nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop halts Run.
func (d *RetryDriver) Stop() {
	close(d.done)
}

// Run drains the FIFO until Stop is called.
func (d *RetryDriver) Run(ctx context.Context) {
	for {
		select {
		case <-d.done:
			return
		default:
		}

		if !d.connected() {
			d.waitForSignal(5 * time.Second)
			continue
		}

		entry, ok := d.fifo.Front()
		if !ok {
			d.waitForSignal(5 * time.Second)
			continue
		}

		if !d.deliver(ctx, entry.ID, entry.Action, entry.Payload) {
			d.waitForSignal(d.cfg.Interval)
		}
	}
}

func (d *RetryDriver) waitForSignal(timeout time.Duration) {
	select {
	case <-d.done:
	case <-d.wake:
	case <-time.After(timeout):
	}
}

// deliver sends entry's head and drives it to pop-or-retry, returning
// true if the FIFO advanced (popped, or dropped as non-retryable).
func (d *RetryDriver) deliver(ctx context.Context, id uint32, action string, payload json.RawMessage) bool {
	attempt := 1
	for {
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		response, err := d.sender.Call(callCtx, action, payload)
		cancel()

		if err == nil {
			if d.OnAck != nil {
				d.OnAck(id, action, response)
			}
			if popErr := d.fifo.Pop(ctx); popErr != nil {
				d.log.WithError(popErr).WithField("id", id).Error("failed to pop acknowledged fifo entry")
				return false
			}
			return true
		}

		if !d.connected() {
			d.log.WithError(err).WithField("id", id).WithField("action", action).
				Warn("fifo delivery failed while disconnected, pausing for reconnect")
			return false
		}

		if oerr, ok := ocpperr.As(err); ok && !retryable(oerr.Code) {
			d.log.WithField("id", id).WithField("action", action).WithField("code", oerr.Code).
				Warn("dropping non-retryable fifo entry")
			if popErr := d.fifo.Pop(ctx); popErr != nil {
				d.log.WithError(popErr).WithField("id", id).Error("failed to pop dropped fifo entry")
			}
			return true
		}

		if attempt >= d.cfg.MaxTries {
			d.log.WithField("id", id).WithField("action", action).
				Warn("exhausted retry attempts, dropping fifo entry")
			if popErr := d.fifo.Pop(ctx); popErr != nil {
				d.log.WithError(popErr).WithField("id", id).Error("failed to pop exhausted fifo entry")
			}
			return true
		}

		backoff := d.cfg.Interval * time.Duration(attempt)
		d.log.WithError(err).WithField("id", id).WithField("attempt", attempt).
			WithField("backoff", backoff).Warn("fifo delivery failed, retrying")
		d.waitForSignal(backoff)
		attempt++
	}
}

// retryable classifies which CALLERROR codes warrant another attempt
// versus dropping the head outright.
func retryable(code ocpperr.Code) bool {
	switch code {
	case ocpperr.FormationViolation, ocpperr.PropertyConstraintViolation,
		ocpperr.TypeConstraintViolation, ocpperr.OccurenceConstraintViolation:
		return false
	default:
		return true
	}
}
