// Package async implements the C14 cooperative async executor: a
// multi-threaded task pool polling lazily-reducible futures through a
// poll/waker protocol, plus the dedicated timer thread and join_all
// aggregate spec.md §4.14 describes.
//
// ailang's evaluator has no asynchronous runtime of its own — every
// builtin effect (internal/effects) runs synchronously on the calling
// goroutine — so the scheduling loop itself is new construction against
// the contract. The worker-loop shape (a mutex+cond-guarded queue, a
// fixed pool of goroutines draining it, a cooperative shutdown flag) is
// grounded on the mutex/context-cancel idiom the pack's agent loop
// controller uses for its own run loop: hold a lock only around state
// transitions, never across blocking work.
package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkessler/corelang/internal/diag"
	"github.com/google/uuid"
)

// Outcome is the result of one poll step: either Ready with a value (or
// error), or still Pending.
type Outcome struct {
	Ready bool
	Value any
	Err   error
}

// Pending is the canonical not-yet-ready outcome.
var Pending = Outcome{Ready: false}

// Ready wraps a completed value.
func Ready(v any) Outcome { return Outcome{Ready: true, Value: v} }

// ReadyErr wraps a completed hard error, propagated by join_all as
// spec.md §4.14 requires ("propagates the first hard error").
func ReadyErr(err error) Outcome { return Outcome{Ready: true, Err: err} }

// Future is the poll/waker contract of spec.md §4.14. Poll must be cheap
// and must not block; a Future that needs to wait registers w somewhere
// (a timer, an I/O readiness callback, another task) and returns Pending.
type Future interface {
	Poll(w *Waker) Outcome
}

// FutureFunc adapts a stateless poll function to a Future.
type FutureFunc func(w *Waker) Outcome

func (f FutureFunc) Poll(w *Waker) Outcome { return f(w) }

type taskState int32

const (
	stateReady taskState = iota
	stateRunning
	stateParked
	stateDone
)

type task struct {
	id     uint64
	fut    Future
	ctx    context.Context
	state  atomic.Int32
	// wake records a Wake() call that arrived while the task was in
	// stateRunning (spec.md §3's "wake requests during running re-enqueue
	// upon return"). Poll is not reentrant-safe to race against, so a wake
	// that lands mid-poll cannot go straight to the ready queue; it is
	// recorded here and consumed by pollOnce right after Poll returns.
	wake   atomic.Bool
	result chan Outcome
}

// Waker is a cheap, clonable token carrying an executor back-reference
// and the owning task's id, per spec.md §4.14.
type Waker struct {
	exec   *Executor
	taskID uint64
}

// Wake re-enqueues the owning task if it is currently parked, or records a
// pending wake if it is running so pollOnce re-enqueues it the moment Poll
// returns (instead of parking a task that can now never be woken again).
// Idempotent: a task already ready or done is left alone, giving the "FIFO
// within a single task" guarantee spec.md §5 names (redundant wakes
// collapse).
func (w *Waker) Wake() {
	w.exec.mu.Lock()
	t, ok := w.exec.tasks[w.taskID]
	w.exec.mu.Unlock()
	if !ok {
		return
	}

	for {
		switch taskState(t.state.Load()) {
		case stateParked:
			if w.exec.wakeTask(t) {
				return
			}
			// state changed under us; retry against the new state.
		case stateRunning:
			t.wake.Store(true)
			// The poller may have already moved running -> parked between
			// our Load above and this Store; if so, it already checked the
			// wake flag and found it clear, so the re-check here is what
			// actually delivers the wake.
			if taskState(t.state.Load()) == stateParked && t.wake.CompareAndSwap(true, false) {
				w.exec.wakeTask(t)
			}
			return
		default: // stateReady or stateDone: already scheduled or finished.
			return
		}
	}
}

// wakeTask transitions t from parked to ready and enqueues it. Returns
// false if t was not parked (someone else already woke it, or it moved on).
func (e *Executor) wakeTask(t *task) bool {
	if !t.state.CompareAndSwap(int32(stateParked), int32(stateReady)) {
		return false
	}
	e.mu.Lock()
	e.readyQueue = append(e.readyQueue, t)
	e.cond.Signal()
	e.mu.Unlock()
	return true
}

// JoinHandle is the caller-facing handle returned by Spawn.
type JoinHandle struct {
	// TaskID is a globally-unique identifier for this spawn, independent
	// of the executor's internal scheduling id, suitable for audit
	// correlation and cross-task log lines.
	TaskID string

	result chan Outcome
	once   sync.Once
	cached Outcome
	got    bool
}

// Join blocks until the task completes or ctx is cancelled.
func (h *JoinHandle) Join(ctx context.Context) (any, error) {
	if h.got {
		return h.cached.Value, h.cached.Err
	}
	select {
	case out := <-h.result:
		h.once.Do(func() { h.cached, h.got = out, true })
		return out.Value, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Breakpoint is the debugger-facing record spec.md §3 defines: an id, a
// kind (the safepoint it fires at, e.g. "poll"), whether it is currently
// armed, a running hit count, and an optional guard condition. The
// debugger itself is an external collaborator (spec.md §1); the executor
// never evaluates Condition, it only carries it through to the hook.
type Breakpoint struct {
	ID        string
	Kind      string
	Enabled   bool
	HitCount  uint64
	Condition string
}

// SafepointHook is invoked once per enabled, matching Breakpoint each time
// a task crosses a safepoint, with the id of the task that crossed it.
// This is the only hook C14 exposes for an external debugger to consume,
// per spec.md §1.
type SafepointHook func(bp *Breakpoint, taskID uint64)

// Executor is the C14 component: a fixed pool of worker goroutines
// draining a FIFO ready queue (spec.md §5, "the ready queue is FIFO").
type Executor struct {
	mu         sync.Mutex
	cond       *sync.Cond
	readyQueue []*task
	tasks      map[uint64]*task
	nextID     atomic.Uint64

	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	bpMu          sync.Mutex
	breakpoints   map[string]*Breakpoint
	safepointHook SafepointHook
}

// RegisterBreakpoint adds or replaces a breakpoint definition by id.
func (e *Executor) RegisterBreakpoint(bp *Breakpoint) {
	e.bpMu.Lock()
	defer e.bpMu.Unlock()
	if e.breakpoints == nil {
		e.breakpoints = make(map[string]*Breakpoint)
	}
	e.breakpoints[bp.ID] = bp
}

// RemoveBreakpoint deletes a breakpoint by id, if present.
func (e *Executor) RemoveBreakpoint(id string) {
	e.bpMu.Lock()
	defer e.bpMu.Unlock()
	delete(e.breakpoints, id)
}

// SetSafepointHook installs the callback notified at every safepoint a
// task crosses. Passing nil disables notification.
func (e *Executor) SetSafepointHook(hook SafepointHook) {
	e.bpMu.Lock()
	defer e.bpMu.Unlock()
	e.safepointHook = hook
}

// hitSafepoint bumps the hit count of every enabled breakpoint of the
// given kind and, if a hook is installed, notifies it. Called by
// pollOnce just before each poll — the one safepoint spec.md §3 names.
func (e *Executor) hitSafepoint(kind string, taskID uint64) {
	e.bpMu.Lock()
	hook := e.safepointHook
	var hit []*Breakpoint
	for _, bp := range e.breakpoints {
		if bp.Enabled && bp.Kind == kind {
			bp.HitCount++
			if hook != nil {
				hit = append(hit, bp)
			}
		}
	}
	e.bpMu.Unlock()
	for _, bp := range hit {
		hook(bp, taskID)
	}
}

// NewExecutor constructs an Executor and starts workers goroutine workers
// immediately.
func NewExecutor(workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	e := &Executor{tasks: make(map[uint64]*task)}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.workerLoop()
	}
	return e
}

// Spawn enqueues fut for execution and returns a handle the caller can
// Join. ctx governs cooperative cancellation: a worker checks ctx before
// every poll and, if it is done, finalizes the task as cancelled without
// polling again (spec.md §5, "the runtime may drop at safepoints only").
func (e *Executor) Spawn(ctx context.Context, fut Future) *JoinHandle {
	id := e.nextID.Add(1)
	t := &task{id: id, fut: fut, ctx: ctx, result: make(chan Outcome, 1)}
	t.state.Store(int32(stateReady))

	e.mu.Lock()
	e.tasks[id] = t
	e.readyQueue = append(e.readyQueue, t)
	e.cond.Signal()
	e.mu.Unlock()

	return &JoinHandle{TaskID: uuid.NewString(), result: t.result}
}

func (e *Executor) waker(id uint64) *Waker { return &Waker{exec: e, taskID: id} }

func (e *Executor) workerLoop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.readyQueue) == 0 && !e.shuttingDown.Load() {
			e.cond.Wait()
		}
		if len(e.readyQueue) == 0 && e.shuttingDown.Load() {
			e.mu.Unlock()
			return
		}
		t := e.readyQueue[0]
		e.readyQueue = e.readyQueue[1:]
		e.mu.Unlock()

		e.pollOnce(t)
	}
}

func (e *Executor) pollOnce(t *task) {
	if t.ctx != nil && t.ctx.Err() != nil {
		e.finish(t, Outcome{Ready: true, Err: fmt.Errorf("task %d cancelled: %w", t.id, t.ctx.Err())})
		return
	}

	e.hitSafepoint("poll", t.id)

	out, panicked := e.pollCatchingPanic(t)
	if panicked {
		return
	}
	if out.Ready {
		e.finish(t, out)
		return
	}

	// Pending: park, but if a wake raced in while Poll was running, undo
	// that immediately instead of leaving the task parked with no one left
	// to wake it (spec.md §3, "wake requests during running re-enqueue
	// upon return").
	t.state.Store(int32(stateParked))
	if t.wake.CompareAndSwap(true, false) {
		e.wakeTask(t)
	}
}

// pollCatchingPanic polls t.fut, recovering a panic at this task boundary
// per spec.md §7 Tier 3 ("abort at the nearest recovery boundary... a task
// boundary in the runtime"). A recovered panic finishes the task with a
// TierBug diagnostic instead of crashing the whole worker pool.
func (e *Executor) pollCatchingPanic(t *task) (out Outcome, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err := diag.New(diag.KindInternal, diag.BUG001,
				fmt.Sprintf("task %d panicked: %v", t.id, r)).WithCategory("TaskPanic")
			e.finish(t, Outcome{Ready: true, Err: err})
		}
	}()
	t.state.Store(int32(stateRunning))
	t.wake.Store(false)
	return t.fut.Poll(e.waker(t.id)), false
}

func (e *Executor) finish(t *task, out Outcome) {
	t.state.Store(int32(stateDone))
	e.mu.Lock()
	delete(e.tasks, t.id)
	e.mu.Unlock()
	t.result <- out
}

// Shutdown sets the cooperative shutdown flag and waits for every worker
// to drain its current task and return (spec.md §4.14, "shutdown is a
// cooperative flag that drains and returns"). Parked tasks that never
// wake again are abandoned — callers needing a hard stop should cancel
// their own contexts before calling Shutdown.
func (e *Executor) Shutdown() {
	e.shuttingDown.Store(true)
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// PendingCount reports the number of tasks not yet finished, for tests
// and diagnostics.
func (e *Executor) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}
