// Package ffi implements the C16 FFI / async security manager: pointer
// registration and validation across the foreign boundary, rate-limited
// task and FFI-call creation, and periodic expiry of stale registrations.
//
// Grounded on internal/effects/net_security.go's validateIP allowlist
// shape (check a small set of disqualifying conditions in order, return
// a structured "blocked" error naming which check failed, no override
// short of an explicit policy flag) generalized from IP addresses to
// foreign pointers and FFI call names; the rate limiter borrows the
// token-bucket idiom the pack's own agent-loop rate limiter uses rather
// than a dependency, since no example repo in the pack imports one for
// this job either.
package ffi

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkessler/corelang/internal/audit"
	"github.com/dkessler/corelang/internal/diag"
)

// PointerTag describes one foreign pointer registered across the FFI
// boundary (spec.md §4.16).
type PointerTag struct {
	// Token uniquely identifies this registration independent of the raw
	// address, so a freed-and-reallocated address doesn't collide with an
	// older audit trail entry.
	Token     string
	TypeTag   string
	AllocSite string
	ExpiresAt time.Time
	Canary    uint64 // 0 means "no canary check"
}

// CallSignature bounds a validate_ffi_call allowlist entry: the call
// name and its expected argument count.
type CallSignature struct {
	Name   string
	Arity  int
}

// MinPointerValue is the platform-minimum address below which a value is
// treated as an "obviously-non-pointer bit pattern" (spec.md §4.16),
// matching the conventional low guard page size on mainstream platforms.
const MinPointerValue = uintptr(0x1000)

// Manager is the C16 component.
type Manager struct {
	log *audit.Logger

	mu       sync.RWMutex
	pointers map[uintptr]PointerTag

	allowlist map[string]CallSignature

	spawnLimiter *tokenBucket
	callLimiters map[string]*tokenBucket
	callRate     float64
	callBurst    float64
}

// Config configures rate limits; zero values fall back to conservative
// defaults.
type Config struct {
	SpawnPerSecond   float64
	SpawnBurst       float64
	CallPerSecond    float64
	CallBurst        float64
}

// New constructs a Manager. log may be nil.
func New(log *audit.Logger, allowlist []CallSignature, cfg Config) *Manager {
	if cfg.SpawnPerSecond <= 0 {
		cfg.SpawnPerSecond = 50
	}
	if cfg.SpawnBurst <= 0 {
		cfg.SpawnBurst = 10
	}
	if cfg.CallPerSecond <= 0 {
		cfg.CallPerSecond = 200
	}
	if cfg.CallBurst <= 0 {
		cfg.CallBurst = 20
	}

	al := make(map[string]CallSignature, len(allowlist))
	for _, sig := range allowlist {
		al[sig.Name] = sig
	}

	return &Manager{
		log:          log,
		pointers:     make(map[uintptr]PointerTag),
		allowlist:    al,
		spawnLimiter: newTokenBucket(cfg.SpawnPerSecond, cfg.SpawnBurst),
		callLimiters: make(map[string]*tokenBucket),
		callRate:     cfg.CallPerSecond,
		callBurst:    cfg.CallBurst,
	}
}

// RegisterPointer records a foreign pointer crossing the boundary, per
// spec.md §4.16: "every raw pointer crossing the FFI boundary is
// registered with a type tag, an allocation site, and a lifetime bound."
func (m *Manager) RegisterPointer(addr uintptr, typeTag, allocSite string, ttl time.Duration, canary uint64) string {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointers[addr] = PointerTag{Token: token, TypeTag: typeTag, AllocSite: allocSite, ExpiresAt: time.Now().Add(ttl), Canary: canary}
	return token
}

// ValidatePointer checks liveness, type match, and (if set) the canary
// value, rejecting null and obviously-non-pointer values outright (spec.md
// §4.16). On rejection it records a security audit event.
func (m *Manager) ValidatePointer(addr uintptr, typeTag string, canary uint64) error {
	if addr == 0 {
		return m.reject(fmt.Sprintf("null pointer passed across FFI boundary (expected %s)", typeTag))
	}
	if addr < MinPointerValue {
		return m.reject(fmt.Sprintf("pointer 0x%x below platform minimum, not a valid address", addr))
	}

	m.mu.RLock()
	tag, ok := m.pointers[addr]
	m.mu.RUnlock()
	if !ok {
		return m.reject(fmt.Sprintf("pointer 0x%x is not registered", addr))
	}
	if time.Now().After(tag.ExpiresAt) {
		return m.reject(fmt.Sprintf("pointer 0x%x has expired (allocated at %s)", addr, tag.AllocSite))
	}
	if tag.TypeTag != typeTag {
		return m.reject(fmt.Sprintf("pointer 0x%x type mismatch: registered as %q, used as %q", addr, tag.TypeTag, typeTag))
	}
	if tag.Canary != 0 && tag.Canary != canary {
		return m.reject(fmt.Sprintf("pointer 0x%x failed canary check", addr))
	}
	return nil
}

// CreateTask rate-limits async task spawning (spec.md §4.16).
func (m *Manager) CreateTask(name string) error {
	if !m.spawnLimiter.allow() {
		return m.rejectRate(fmt.Sprintf("task creation %q rate-limited", name))
	}
	return nil
}

// ValidateFFICall checks name against the allowlist, validates the
// argument count, and enforces a per-name rate limit (spec.md §4.16).
func (m *Manager) ValidateFFICall(name string, args []any) error {
	m.mu.RLock()
	sig, ok := m.allowlist[name]
	m.mu.RUnlock()
	if !ok {
		return m.rejectNotAllowed(fmt.Sprintf("FFI call %q is not in the allowlist", name))
	}
	if len(args) != sig.Arity {
		return m.rejectNotAllowed(fmt.Sprintf("FFI call %q expects %d args, got %d", name, sig.Arity, len(args)))
	}
	if !m.limiterFor(name).allow() {
		return m.rejectRate(fmt.Sprintf("FFI call %q rate-limited", name))
	}
	return nil
}

func (m *Manager) limiterFor(name string) *tokenBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.callLimiters[name]
	if !ok {
		lim = newTokenBucket(m.callRate, m.callBurst)
		m.callLimiters[name] = lim
	}
	return lim
}

// CleanupExpiredResources drops every registered pointer whose TTL has
// elapsed as of now, returning the count removed (spec.md §4.16's
// periodic sweep).
func (m *Manager) CleanupExpiredResources(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for addr, tag := range m.pointers {
		if now.After(tag.ExpiresAt) {
			delete(m.pointers, addr)
			removed++
		}
	}
	return removed
}

func (m *Manager) reject(msg string) error {
	m.audit(msg)
	return diag.New(diag.KindFFIValidation, diag.FFI001, msg)
}

func (m *Manager) rejectRate(msg string) error {
	m.audit(msg)
	return diag.New(diag.KindFFIValidation, diag.FFI002, msg)
}

func (m *Manager) rejectNotAllowed(msg string) error {
	m.audit(msg)
	return diag.New(diag.KindFFIValidation, diag.FFI003, msg)
}

func (m *Manager) audit(msg string) {
	if m.log == nil {
		return
	}
	_ = m.log.Log(audit.Event{
		Timestamp:   time.Now(),
		Severity:    audit.Warning,
		Category:    "FFI",
		Description: msg,
	})
}
