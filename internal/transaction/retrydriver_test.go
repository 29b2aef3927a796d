package transaction

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/fifo"
	"github.com/chargepoint/ocpp16cp/internal/ocpperr"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

func testDriverLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func openTestFifo(t *testing.T) *fifo.Fifo {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := store.NewFifoRepo(db)
	if err != nil {
		t.Fatalf("NewFifoRepo: %v", err)
	}
	f, err := fifo.Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("fifo.Load: %v", err)
	}
	return f
}

// fakeSender is a Sender whose Call outcome is driven by a queue of
// canned results, falling back to repeating the last one once drained.
type fakeSender struct {
	mu      sync.Mutex
	results []error
	calls   int32
}

func (s *fakeSender) Call(context.Context, string, any) (json.RawMessage, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return json.RawMessage(`{}`), nil
	}
	err := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return json.RawMessage(`{}`), err
}

func (s *fakeSender) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

func alwaysConnected() bool { return true }

func runOnce(t *testing.T, d *RetryDriver) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RetryDriver.Run did not stop after Stop()")
	}
}

func TestDeliverPopsOnSuccess(t *testing.T) {
	ctx := context.Background()
	f := openTestFifo(t)
	if _, err := f.Push(ctx, "StartTransaction", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	sender := &fakeSender{}
	d := NewRetryDriver(f, sender, alwaysConnected, RetryConfig{Interval: time.Millisecond, MaxTries: 3}, testDriverLog())

	go func() {
		time.Sleep(50 * time.Millisecond)
		d.Stop()
	}()
	runOnce(t, d)

	if f.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after a successful delivery", f.Size())
	}
	if sender.callCount() != 1 {
		t.Errorf("Call count = %d, want exactly 1 for a first-try success", sender.callCount())
	}
}

func TestDeliverDropsNonRetryableError(t *testing.T) {
	ctx := context.Background()
	f := openTestFifo(t)
	if _, err := f.Push(ctx, "StartTransaction", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	sender := &fakeSender{results: []error{ocpperr.New(ocpperr.FormationViolation, "bad payload")}}
	d := NewRetryDriver(f, sender, alwaysConnected, RetryConfig{Interval: time.Millisecond, MaxTries: 5}, testDriverLog())

	go func() {
		time.Sleep(50 * time.Millisecond)
		d.Stop()
	}()
	runOnce(t, d)

	if f.Size() != 0 {
		t.Errorf("Size() = %d, want 0: a non-retryable CALLERROR must drop the head, not retry it", f.Size())
	}
	if sender.callCount() != 1 {
		t.Errorf("Call count = %d, want exactly 1: a non-retryable error must not consume a retry attempt", sender.callCount())
	}
}

func TestDeliverDropsAfterMaxTriesOnRetryableError(t *testing.T) {
	ctx := context.Background()
	f := openTestFifo(t)
	if _, err := f.Push(ctx, "StartTransaction", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	retryable := ocpperr.New(ocpperr.GenericError, "try again")
	sender := &fakeSender{results: []error{retryable, retryable, retryable}}
	d := NewRetryDriver(f, sender, alwaysConnected, RetryConfig{Interval: time.Millisecond, MaxTries: 3}, testDriverLog())

	go func() {
		time.Sleep(200 * time.Millisecond)
		d.Stop()
	}()
	runOnce(t, d)

	if f.Size() != 0 {
		t.Errorf("Size() = %d, want 0 once MaxTries retryable failures are exhausted", f.Size())
	}
	if sender.callCount() != 3 {
		t.Errorf("Call count = %d, want exactly MaxTries=3", sender.callCount())
	}
}

// TestDeliverPausesIndefinitelyOnDisconnect is the regression test for a
// delivery failure that coincides with the transport going down: it must
// return to Run's pause branch rather than consuming one of MaxTries, so
// the head survives an arbitrarily long outage.
func TestDeliverPausesIndefinitelyOnDisconnect(t *testing.T) {
	ctx := context.Background()
	f := openTestFifo(t)
	if _, err := f.Push(ctx, "StartTransaction", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	var connected atomic.Bool
	connected.Store(true)
	// Every attempt fails with a plain transport error (not an OCPP
	// CALLERROR), and the transport is reported down from the first
	// failure onward, matching a connection drop mid-delivery.
	sender := &fakeSender{results: []error{
		errTransport, errTransport, errTransport, errTransport, errTransport,
	}}
	wrapped := &disconnectingSender{inner: sender, disconnectAfter: 1, connected: &connected}

	d := NewRetryDriver(f, wrapped, connected.Load, RetryConfig{Interval: time.Millisecond, MaxTries: 2}, testDriverLog())

	go func() {
		time.Sleep(150 * time.Millisecond)
		d.Stop()
	}()
	runOnce(t, d)

	if f.Size() != 1 {
		t.Errorf("Size() = %d, want 1: a disconnect mid-delivery must not drop the fifo head", f.Size())
	}
}

var errTransport = &transportError{"connection reset"}

type transportError struct{ msg string }

func (e *transportError) Error() string { return e.msg }

// disconnectingSender flips connected false after disconnectAfter calls,
// simulating a transport that drops mid-delivery.
type disconnectingSender struct {
	inner           Sender
	disconnectAfter int32
	calls           int32
	connected       *atomic.Bool
}

func (s *disconnectingSender) Call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n >= s.disconnectAfter {
		s.connected.Store(false)
	}
	return s.inner.Call(ctx, action, payload)
}
