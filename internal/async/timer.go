package async

import (
	"container/heap"
	"sync"
	"time"
)

type timerEntry struct {
	deadline time.Time
	waker    *Waker
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TimerThread is the dedicated monotonic thread of spec.md §4.14: it
// maintains a sorted deadline list and wakes the corresponding waker on
// expiry, guaranteeing "timer wakeups occur at or after the deadline,
// never before" (spec.md §5).
type TimerThread struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries timerHeap
	stop    chan struct{}
	done    chan struct{}
	kick    chan struct{}
}

// NewTimerThread starts the background goroutine immediately.
func NewTimerThread() *TimerThread {
	t := &TimerThread{stop: make(chan struct{}), done: make(chan struct{}), kick: make(chan struct{}, 1)}
	t.cond = sync.NewCond(&t.mu)
	go t.run()
	return t
}

// Register schedules waker to fire at deadline.
func (t *TimerThread) Register(deadline time.Time, waker *Waker) {
	t.mu.Lock()
	heap.Push(&t.entries, &timerEntry{deadline: deadline, waker: waker})
	t.cond.Signal()
	t.mu.Unlock()
	// Interrupt a wait on a later deadline so the new head is re-evaluated.
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Stop halts the background goroutine and waits for it to exit.
func (t *TimerThread) Stop() {
	close(t.stop)
	t.mu.Lock()
	t.cond.Signal()
	t.mu.Unlock()
	<-t.done
}

func (t *TimerThread) run() {
	defer close(t.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		t.mu.Lock()
		for len(t.entries) == 0 {
			select {
			case <-t.stop:
				t.mu.Unlock()
				return
			default:
			}
			t.cond.Wait()
		}
		next := t.entries[0]
		wait := time.Until(next.deadline)
		t.mu.Unlock()

		if wait <= 0 {
			t.fireDue()
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-t.stop:
			return
		case <-t.kick:
		case <-timer.C:
			t.fireDue()
		}
	}
}

// fireDue pops and wakes every entry whose deadline has passed.
func (t *TimerThread) fireDue() {
	now := time.Now()
	var due []*timerEntry
	t.mu.Lock()
	for len(t.entries) > 0 && !t.entries[0].deadline.After(now) {
		due = append(due, heap.Pop(&t.entries).(*timerEntry))
	}
	t.mu.Unlock()
	for _, e := range due {
		e.waker.Wake()
	}
}

// sleepFuture implements spec.md §4.14's sleep(d): it polls Pending until
// the timer thread wakes it, then Ready(nil).
type sleepFuture struct {
	timer     *TimerThread
	deadline  time.Time
	registered bool
}

func (s *sleepFuture) Poll(w *Waker) Outcome {
	if time.Now().After(s.deadline) || time.Now().Equal(s.deadline) {
		return Ready(nil)
	}
	if !s.registered {
		s.registered = true
		s.timer.Register(s.deadline, w)
	}
	return Pending
}

// Sleep returns a Future that becomes Ready after d elapses, driven by t.
func Sleep(t *TimerThread, d time.Duration) Future {
	return &sleepFuture{timer: t, deadline: time.Now().Add(d)}
}
