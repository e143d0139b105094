// Package capability's Manager implements spec.md C6: grant/check/revoke
// over a per-module permission set with inheritance and custom rules,
// gated by TrustLevel, with every check recorded via an AuditHook.
package capability

import (
	"sync"
	"time"

	"github.com/dkessler/corelang/internal/diag"
)

// Rule is a custom boolean predicate over a permission context, per
// spec.md §4.6 ("custom rules (boolean functions over a permission
// context)").
type Rule func(ctx Context) bool

// Context is the information a custom Rule may consult.
type Context struct {
	Module     string
	Capability Capability
	Trust      TrustLevel
}

// AuditEvent is appended to the audit log on every check (spec.md §4.6).
type AuditEvent struct {
	Timestamp time.Time
	Module    string
	Capability Capability
	Allowed   bool
	Reason    string
}

// AuditHook receives every capability check outcome.
type AuditHook func(AuditEvent)

// entry is one module's permission record.
type entry struct {
	perms      map[string]Capability
	inheritsFrom string
	rules      []Rule
	trust      TrustLevel
}

// Manager is the C6 permission & capability manager.
type Manager struct {
	mu      sync.RWMutex
	modules map[string]*entry
	hook    AuditHook
}

// New constructs a Manager. hook may be nil (events are then dropped).
func New(hook AuditHook) *Manager {
	return &Manager{modules: make(map[string]*entry), hook: hook}
}

// Register creates a module's permission entry with the given trust level
// and optional parent for inheritance (spec.md §3/§4.6).
func (m *Manager) Register(module string, trust TrustLevel, inheritsFrom string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[module] = &entry{perms: make(map[string]Capability), inheritsFrom: inheritsFrom, trust: trust}
}

// Grant adds a capability to a module's own permission set.
func (m *Manager) Grant(module string, cap Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.mustEntry(module)
	e.perms[cap.Key()] = cap
}

// Revoke removes a capability from a module's own permission set (does not
// affect inherited grants).
func (m *Manager) Revoke(module string, cap Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.modules[module]; ok {
		delete(e.perms, cap.Key())
	}
}

// AddRule attaches a custom permission rule to a module.
func (m *Manager) AddRule(module string, rule Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.mustEntry(module)
	e.rules = append(e.rules, rule)
}

func (m *Manager) mustEntry(module string) *entry {
	e, ok := m.modules[module]
	if !ok {
		e = &entry{perms: make(map[string]Capability), trust: Sandbox}
		m.modules[module] = e
	}
	return e
}

// defaultAllow is the minimal default capability set every module gets
// regardless of trust level (spec.md §4.6: "plus a minimal default
// (bounded memory, bounded CPU time)").
func defaultAllow(cap Capability) bool {
	switch c := cap.(type) {
	case Resource:
		return c.Kind == ResMemory || c.Kind == ResCPUMs
	default:
		return false
	}
}

// effectivePermissions walks the inheritance chain, unioning each
// ancestor's own permission set (spec.md §4.6).
func (m *Manager) effectivePermissions(module string) map[string]Capability {
	out := make(map[string]Capability)
	seen := make(map[string]bool)
	cur := module
	for cur != "" && !seen[cur] {
		seen[cur] = true
		e, ok := m.modules[cur]
		if !ok {
			break
		}
		for k, v := range e.perms {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
		cur = e.inheritsFrom
	}
	return out
}

// Check implements the C6 contract: check(module, capability) -> Ok |
// SecurityViolation. Every call appends an audit entry.
func (m *Manager) Check(module string, cap Capability) error {
	m.mu.RLock()
	e, ok := m.modules[module]
	if !ok {
		m.mu.RUnlock()
		return m.deny(module, cap, "module not registered")
	}
	trust := e.trust
	rules := append([]Rule(nil), e.rules...)
	effective := m.effectivePermissions(module)
	m.mu.RUnlock()

	if !trust.AllowsClass(cap.Class()) {
		return m.deny(module, cap, "trust level "+trust.String()+" does not permit capability class "+string(cap.Class()))
	}

	_, granted := effective[cap.Key()]
	for _, g := range effective {
		switch g := g.(type) {
		case FileSystem:
			r, ok := cap.(FileSystem)
			granted = granted || (ok && r.Op == g.Op && r.Pattern.Exact != "" && g.Pattern.Matches(r.Pattern.Exact))
		case FFI:
			r, ok := cap.(FFI)
			granted = granted || (ok && r.Op == g.Op && r.Pattern.Exact != "" && g.Pattern.Matches(r.Pattern.Exact))
		case Network:
			r, ok := cap.(Network)
			granted = granted || (ok && r.Op == NetConnect && g.Op == NetConnect && r.Host.Exact != "" && g.Host.Matches(r.Host.Exact))
		}
	}
	if granted {
		m.allow(module, cap, "explicit grant")
		return nil
	}

	if defaultAllow(cap) {
		m.allow(module, cap, "minimal default")
		return nil
	}

	for _, r := range rules {
		if r(Context{Module: module, Capability: cap, Trust: trust}) {
			m.allow(module, cap, "custom rule accepted")
			return nil
		}
	}

	return m.deny(module, cap, "not in effective permission set")
}

func (m *Manager) allow(module string, cap Capability, reason string) {
	m.emit(AuditEvent{Timestamp: time.Now(), Module: module, Capability: cap, Allowed: true, Reason: reason})
}

func (m *Manager) deny(module string, cap Capability, reason string) error {
	m.emit(AuditEvent{Timestamp: time.Now(), Module: module, Capability: cap, Allowed: false, Reason: reason})
	return permissionDeniedError(module, cap, reason)
}

func (m *Manager) emit(ev AuditEvent) {
	if m.hook != nil {
		m.hook(ev)
	}
}

func permissionDeniedError(module string, cap Capability, reason string) error {
	return diag.New(diag.KindPermissionDenied, diag.SEC005, reason).
		WithModule(module).WithCategory(string(cap.Class()))
}
