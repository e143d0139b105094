package resource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkessler/corelang/internal/diag"
	"github.com/dkessler/corelang/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	metricsOnce sync.Once

	throttleGauge   prometheus.Gauge
	violationsTotal *prometheus.CounterVec
)

func registerMetrics() {
	metricsOnce.Do(func() {
		throttleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corelang_resource_throttling_level",
			Help: "Current auto-throttle pressure level in [0,1].",
		})
		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corelang_resource_violations_total",
			Help: "Resource budget violations by category.",
		}, []string{"category"})
		prometheus.MustRegister(throttleGauge, violationsTotal)
	})
}

// Monitor is a per-session resource budget tracker (spec.md C3). Counters
// are per-session and never shared across compilation units (spec.md §5).
type Monitor struct {
	limits Limits
	log    *zap.Logger

	start    time.Time
	deadline time.Time

	mu              sync.Mutex
	loopIterations  map[string]uint64
	recursionDepths map[string]uint64

	typeVariables  atomic.Uint64
	constraints    atomic.Uint64
	specializations atomic.Uint64
	memoryBytes    atomic.Int64
	peakMemory     atomic.Int64

	sem *semaphore.Weighted

	throttleBits atomic.Uint64 // math.Float64bits(level)
}

// NewMonitor constructs a Monitor bound to the given limits. The total
// compilation deadline starts counting from this call, per spec.md §4.3's
// monotonic-clock requirement.
func NewMonitor(limits Limits) (*Monitor, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	registerMetrics()
	now := time.Now()
	return &Monitor{
		limits:          limits,
		log:             obs.Named("resource"),
		start:           now,
		deadline:        now.Add(limits.TotalTimeout),
		loopIterations:  make(map[string]uint64),
		recursionDepths: make(map[string]uint64),
		sem:             semaphore.NewWeighted(limits.MaxConcurrentOps),
	}, nil
}

func (m *Monitor) violation(code diag.Code, category, msg string) error {
	violationsTotal.WithLabelValues(category).Inc()
	m.log.Warn("resource violation", zap.String("category", category), zap.String("detail", msg))
	kind := diag.KindResourceExhausted
	if category == "timeout" {
		kind = diag.KindSecurityViolation
	}
	return diag.New(kind, code, msg).WithCategory(category)
}

// CheckIteration increments and bounds the named loop's iteration counter
// (spec.md §4.3, max_iterations "per named loop").
func (m *Monitor) CheckIteration(loop string) error {
	m.mu.Lock()
	m.loopIterations[loop]++
	n := m.loopIterations[loop]
	m.mu.Unlock()
	if n > m.limits.MaxIterations {
		return m.violation("SEC006", "max_iterations", fmt.Sprintf("loop %q exceeded max_iterations=%d", loop, m.limits.MaxIterations))
	}
	return nil
}

// CheckRecursion increments and bounds the named recursive operation's
// depth counter; callers must call ExitRecursion on return.
func (m *Monitor) CheckRecursion(op string) error {
	m.mu.Lock()
	m.recursionDepths[op]++
	n := m.recursionDepths[op]
	m.mu.Unlock()
	if n > m.limits.MaxRecursionDepth {
		return m.violation("SEC006", "max_recursion_depth", fmt.Sprintf("operation %q exceeded max_recursion_depth=%d", op, m.limits.MaxRecursionDepth))
	}
	return nil
}

// ExitRecursion decrements the named operation's depth counter.
func (m *Monitor) ExitRecursion(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recursionDepths[op] > 0 {
		m.recursionDepths[op]--
	}
}

// AddTypeVariable allocates budget for one fresh type variable and returns
// its ordinal id.
func (m *Monitor) AddTypeVariable() (uint32, error) {
	n := m.typeVariables.Add(1)
	if n > m.limits.MaxTypeVariables {
		return 0, m.violation("SEC006", "max_type_variables", fmt.Sprintf("exceeded max_type_variables=%d", m.limits.MaxTypeVariables))
	}
	return uint32(n), nil
}

// AddConstraint allocates budget for one emitted equality constraint.
func (m *Monitor) AddConstraint() error {
	n := m.constraints.Add(1)
	if n > m.limits.MaxConstraints {
		return m.violation("SEC006", "max_constraints", fmt.Sprintf("exceeded max_constraints=%d", m.limits.MaxConstraints))
	}
	return nil
}

// AddSpecialization allocates budget for one monomorphization specialization
// (spec.md C10's max_specializations cap).
func (m *Monitor) AddSpecialization() error {
	n := m.specializations.Add(1)
	if n > m.limits.MaxSpecializations {
		return m.violation("SEC006", "max_specializations", fmt.Sprintf("exceeded max_specializations=%d", m.limits.MaxSpecializations))
	}
	return nil
}

// CheckMemory adds delta (which may be negative, on free) to the tracked
// memory counter, saturating at zero on subtraction, and bounds it against
// max_memory_bytes.
func (m *Monitor) CheckMemory(delta int64) error {
	n := m.memoryBytes.Add(delta)
	if n < 0 {
		// Saturating subtraction: never go negative.
		m.memoryBytes.Store(0)
		n = 0
	}
	for {
		peak := m.peakMemory.Load()
		if n <= peak || m.peakMemory.CompareAndSwap(peak, n) {
			break
		}
	}
	if uint64(n) > m.limits.MaxMemoryBytes {
		return m.violation("SEC006", "max_memory_bytes", fmt.Sprintf("exceeded max_memory_bytes=%d", m.limits.MaxMemoryBytes))
	}
	m.updateThrottle(float64(n) / float64(m.limits.MaxMemoryBytes))
	return nil
}

// PeakMemory reports the highest memory counter value observed.
func (m *Monitor) PeakMemory() int64 { return m.peakMemory.Load() }

// Limits returns the budget profile this Monitor was constructed with.
func (m *Monitor) Limits() Limits { return m.limits }

// CheckPhaseTimeout bounds a per-phase deadline against now.
func (m *Monitor) CheckPhaseTimeout(phaseStart time.Time) error {
	if time.Since(phaseStart) > m.limits.PhaseTimeout {
		return m.violation("SEC007", "timeout", "phase_timeout exceeded — possible DoS")
	}
	return m.CheckTotalTimeout()
}

// CheckTotalTimeout bounds the whole-session deadline against now.
func (m *Monitor) CheckTotalTimeout() error {
	if time.Now().After(m.deadline) {
		return m.violation("SEC007", "timeout", "total_timeout exceeded — possible DoS")
	}
	return nil
}

// updateThrottle smoothly raises throttling_level toward the observed
// pressure ratio, capped at 1.0 (spec.md §4.3).
func (m *Monitor) updateThrottle(pressure float64) {
	if !m.limits.AutoThrottle {
		return
	}
	if pressure > 1 {
		pressure = 1
	}
	if pressure < m.limits.ThrottleThreshold {
		return
	}
	level := (pressure - m.limits.ThrottleThreshold) / (1 - m.limits.ThrottleThreshold)
	if level > 1 {
		level = 1
	}
	storeFloat(&m.throttleBits, level)
	throttleGauge.Set(level)
}

// ThrottlingLevel returns the current smoothed throttle pressure in [0,1].
func (m *Monitor) ThrottlingLevel() float64 {
	return loadFloat(&m.throttleBits)
}

// OperationGuard is the RAII-style resource accounting token described in
// spec.md §4.3 and §5. Creation records a deadline under the operation's
// name and enforces the concurrent-operation limit; Release decrements.
type OperationGuard struct {
	m      *Monitor
	name   string
	cancel context.CancelFunc
	ctx    context.Context
}

// NewOperationGuard acquires a concurrency permit (bounded by
// max_concurrent_ops) and a deadline derived from phase_timeout. Blocks
// until a permit is available or ctx is cancelled.
func (m *Monitor) NewOperationGuard(ctx context.Context, name string) (*OperationGuard, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("operation guard %q: %w", name, err)
	}
	opCtx, cancel := context.WithTimeout(ctx, m.limits.PhaseTimeout)
	return &OperationGuard{m: m, name: name, ctx: opCtx, cancel: cancel}, nil
}

// Context returns the guard's deadline-bound context.
func (g *OperationGuard) Context() context.Context { return g.ctx }

// Release drops the concurrency permit. Safe to call once.
func (g *OperationGuard) Release() {
	g.cancel()
	g.m.sem.Release(1)
}

// TimeBudget is a scoped deadline for any algorithm that must complete
// within a bound (spec.md §4.3).
type TimeBudget struct {
	deadline time.Time
}

// NewTimeBudget starts a fresh deadline d from now.
func (m *Monitor) NewTimeBudget(d time.Duration) *TimeBudget {
	return &TimeBudget{deadline: time.Now().Add(d)}
}

// Remaining reports time left before the budget expires; never negative.
func (b *TimeBudget) Remaining() time.Duration {
	r := time.Until(b.deadline)
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the deadline has passed.
func (b *TimeBudget) Expired() bool { return time.Now().After(b.deadline) }

// WorkBudget bounds incremental algorithms (e.g. cycle-collector phases,
// the resolver's topological sort) to a fixed amount of work.
type WorkBudget struct {
	cap     int64
	spent   atomic.Int64
}

// NewWorkBudget creates a budget capped at n units of work.
func (m *Monitor) NewWorkBudget(n int64) *WorkBudget {
	return &WorkBudget{cap: n}
}

// TryConsume attempts to spend n units; returns false without mutating
// state if doing so would exceed the cap.
func (b *WorkBudget) TryConsume(n int64) bool {
	for {
		cur := b.spent.Load()
		next := cur + n
		if next > b.cap {
			return false
		}
		if b.spent.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Remaining reports how much work budget is left.
func (b *WorkBudget) Remaining() int64 {
	r := b.cap - b.spent.Load()
	if r < 0 {
		return 0
	}
	return r
}
