package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Timer is a single registered deadline. Stop is idempotent and, once it
// returns, guarantees no further callback invocation (spec §5).
type Timer struct {
	svc        *Service
	index      int
	interval   time.Duration
	singleShot bool
	wakeAt     time.Time
	callback   func()
	stopped    bool
}

// Stop cancels the timer. Safe to call more than once and safe to call
// from within the timer's own callback.
func (t *Timer) Stop() {
	t.svc.remove(t)
}

// Restart reschedules the timer for interval from now, with the given
// one-shot/periodic mode, re-adding it if it had been stopped.
func (t *Timer) Restart(interval time.Duration, singleShot bool) {
	t.svc.restart(t, interval, singleShot)
}

// timerHeap orders pending timers by wake time; container/heap backs the
// single-threaded wheel described in spec §2 item 1.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].wakeAt.Before(h[j].wakeAt) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Service is the timer wheel: one goroutine wakes the nearest deadline and
// hands its callback to the shared worker Pool.
type Service struct {
	pool    *Pool
	mu      sync.Mutex
	pending timerHeap
	wake    chan struct{}
	done    chan struct{}
}

// NewService starts the wheel's driving goroutine against pool.
func NewService(pool *Pool) *Service {
	s := &Service{
		pool: pool,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	heap.Init(&s.pending)
	go s.run()
	return s
}

// Register starts a new timer that fires callback after interval, either
// once (singleShot) or repeatedly every interval.
func (s *Service) Register(interval time.Duration, singleShot bool, callback func()) *Timer {
	t := &Timer{svc: s, interval: interval, singleShot: singleShot, callback: callback, index: -1}
	s.mu.Lock()
	t.wakeAt = time.Now().Add(interval)
	heap.Push(&s.pending, t)
	s.mu.Unlock()
	s.nudge()
	return t
}

func (s *Service) remove(t *Timer) {
	s.mu.Lock()
	if t.index >= 0 && t.index < len(s.pending) && s.pending[t.index] == t {
		heap.Remove(&s.pending, t.index)
	}
	t.stopped = true
	s.mu.Unlock()
	s.nudge()
}

func (s *Service) restart(t *Timer, interval time.Duration, singleShot bool) {
	s.mu.Lock()
	if t.index >= 0 && t.index < len(s.pending) && s.pending[t.index] == t {
		heap.Remove(&s.pending, t.index)
	}
	t.interval = interval
	t.singleShot = singleShot
	t.stopped = false
	t.wakeAt = time.Now().Add(interval)
	heap.Push(&s.pending, t)
	s.mu.Unlock()
	s.nudge()
}

func (s *Service) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.pending) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.pending[0].wakeAt)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.done:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

func (s *Service) fireDue() {
	now := time.Now()
	var due []*Timer
	s.mu.Lock()
	for len(s.pending) > 0 && !s.pending[0].wakeAt.After(now) {
		t := heap.Pop(&s.pending).(*Timer)
		due = append(due, t)
	}
	for _, t := range due {
		if !t.singleShot {
			t.wakeAt = now.Add(t.interval)
			heap.Push(&s.pending, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t := t
		s.pool.Submit(func() {
			s.mu.Lock()
			stopped := t.stopped
			s.mu.Unlock()
			if !stopped {
				t.callback()
			}
		})
	}
}

// Stop halts the wheel's goroutine. It does not stop the underlying Pool;
// callers own the Pool's lifecycle separately so a shutdown can drain
// in-flight callbacks (spec §5) before the process exits.
func (s *Service) Stop() {
	close(s.done)
}
