// Package sandbox implements the C7 sandbox runner: it executes a
// module's top-level initializers and exported entry points inside a
// capability and resource envelope, tracking syscall-equivalent
// operations against the C6 manager and aborting with a SandboxViolation
// the instant any envelope limit trips.
//
// Grounded on internal/effects/context.go's EffContext (capability grants
// plus environment configuration threaded through evaluation) — the
// sandbox Envelope plays the same role, generalized to the full
// resource-tracking contract of spec.md §4.7.
package sandbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkessler/corelang/internal/capability"
	"github.com/dkessler/corelang/internal/diag"
)

// Op is one syscall-equivalent operation the sandbox observes.
type Op struct {
	Module     string
	Capability capability.Capability
}

// Usage is the running tally of envelope-tracked resources (spec.md
// §4.7: "memory allocated, file handles opened, network sockets opened,
// thread count, elapsed CPU time").
type Usage struct {
	MemoryBytes   int64
	FileHandles   int64
	NetSockets    int64
	Threads       int64
	CPUTimeMillis int64
}

// Limits bounds an Envelope's Usage. A zero value means unlimited for
// that dimension.
type Limits struct {
	MaxMemoryBytes int64
	MaxFileHandles int64
	MaxNetSockets  int64
	MaxThreads     int64
	MaxCPUMillis   int64
}

// TraceEvent is one recorded operation, present only when tracing is
// enabled (spec.md §4.7: "optionally an execution trace").
type TraceEvent struct {
	At   time.Time
	Op   Op
	Kind string // "allowed" | "denied" | "usage"
}

// Envelope is one module execution's capability and resource boundary.
type Envelope struct {
	module string
	mgr    *capability.Manager
	limits Limits
	trace  bool

	memory  int64
	handles int64
	sockets int64
	threads int64
	cpuMs   int64

	events []TraceEvent
}

// NewEnvelope constructs a sandbox envelope for module, gated by mgr's
// permission checks and bounded by limits. If trace is true, every
// checked operation and usage update is recorded.
func NewEnvelope(module string, mgr *capability.Manager, limits Limits, trace bool) *Envelope {
	return &Envelope{module: module, mgr: mgr, limits: limits, trace: trace}
}

// Check enforces a capability check before performing op. It returns a
// SandboxViolation (wrapping the underlying PermissionDenied) if the
// manager rejects the capability.
func (e *Envelope) Check(cap capability.Capability) error {
	if err := e.mgr.Check(e.module, cap); err != nil {
		e.record(Op{Module: e.module, Capability: cap}, "denied")
		return diag.New(diag.KindSandboxViolation, diag.SEC008,
			"sandbox rejected operation not permitted by capability manager").
			WithModule(e.module).WithCause(err)
	}
	e.record(Op{Module: e.module, Capability: cap}, "allowed")
	return nil
}

// AddMemory records additional memory allocation and trips a
// SandboxViolation if it crosses MaxMemoryBytes.
func (e *Envelope) AddMemory(bytes int64) error {
	return e.addAndCheck(&e.memory, bytes, e.limits.MaxMemoryBytes, "memory")
}

// OpenHandle records a newly opened file handle.
func (e *Envelope) OpenHandle() error {
	return e.addAndCheck(&e.handles, 1, e.limits.MaxFileHandles, "file handles")
}

// CloseHandle releases a previously opened file handle.
func (e *Envelope) CloseHandle() { atomic.AddInt64(&e.handles, -1) }

// OpenSocket records a newly opened network socket.
func (e *Envelope) OpenSocket() error {
	return e.addAndCheck(&e.sockets, 1, e.limits.MaxNetSockets, "network sockets")
}

// CloseSocket releases a previously opened network socket.
func (e *Envelope) CloseSocket() { atomic.AddInt64(&e.sockets, -1) }

// SpawnThread records a newly started thread/goroutine counted against
// the envelope.
func (e *Envelope) SpawnThread() error {
	return e.addAndCheck(&e.threads, 1, e.limits.MaxThreads, "threads")
}

// AddCPUTime records elapsed CPU time.
func (e *Envelope) AddCPUTime(d time.Duration) error {
	return e.addAndCheck(&e.cpuMs, d.Milliseconds(), e.limits.MaxCPUMillis, "CPU time")
}

func (e *Envelope) addAndCheck(counter *int64, delta, limit int64, dimension string) error {
	v := atomic.AddInt64(counter, delta)
	e.record(Op{Module: e.module}, "usage")
	if limit > 0 && v > limit {
		return diag.New(diag.KindSandboxViolation, diag.SEC008,
			"envelope limit exceeded: "+dimension).WithModule(e.module)
	}
	return nil
}

func (e *Envelope) record(op Op, kind string) {
	if !e.trace {
		return
	}
	e.events = append(e.events, TraceEvent{At: time.Now(), Op: op, Kind: kind})
}

// Usage snapshots the envelope's current resource tally.
func (e *Envelope) Usage() Usage {
	return Usage{
		MemoryBytes:   atomic.LoadInt64(&e.memory),
		FileHandles:   atomic.LoadInt64(&e.handles),
		NetSockets:    atomic.LoadInt64(&e.sockets),
		Threads:       atomic.LoadInt64(&e.threads),
		CPUTimeMillis: atomic.LoadInt64(&e.cpuMs),
	}
}

// Trace returns the recorded execution trace, or nil if tracing is off.
func (e *Envelope) Trace() []TraceEvent { return e.events }

// EntryPoint is a module top-level initializer or exported function to
// run inside the envelope.
type EntryPoint func(ctx context.Context, env *Envelope) error

// Run executes entry inside env, converting a context deadline into the
// same SandboxViolation shape as an envelope limit trip (spec.md §4.7).
func Run(ctx context.Context, env *Envelope, entry EntryPoint) error {
	done := make(chan error, 1)
	go func() {
		done <- entry(ctx, env)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return diag.New(diag.KindSandboxViolation, diag.SEC008,
			"sandbox execution deadline exceeded").WithModule(env.module).WithCause(ctx.Err())
	}
}
