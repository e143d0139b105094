// Package integrity implements the module integrity verifier (spec.md C5):
// content hashing, a trusted-module registry, and the trust-level
// resolution rules of spec.md §4.5.
//
// Grounded on original_source/src/module/integrity.rs's
// ModuleIntegrityVerifier (checksum + registry + verification cache). The
// content hash must equal the registered checksum exactly; no signature is
// verified, KeyID is carried as an abstract field only (spec.md §9 Open
// Questions).
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/dkessler/corelang/internal/diag"
)

// TrustLevel is the total order System > Trusted > Untrusted > Sandbox,
// plus Unknown for unregistered modules (spec.md §3).
type TrustLevel int

const (
	Unknown TrustLevel = iota
	Sandbox
	Untrusted
	Trusted
	System
)

func (t TrustLevel) String() string {
	switch t {
	case System:
		return "System"
	case Trusted:
		return "Trusted"
	case Untrusted:
		return "Untrusted"
	case Sandbox:
		return "Sandbox"
	default:
		return "Unknown"
	}
}

// RegistryEntry is one trusted-module record.
type RegistryEntry struct {
	Checksum      string
	TrustLevel    TrustLevel
	AllowUpdates  bool
	MaxSize       int64
	KeyID         string // abstract signature key identifier (spec.md §9)
	RecordedMTime time.Time
}

// Registry is the trusted-module registry consulted during verification.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry // keyed by module path string
}

// NewRegistry constructs an empty trusted-module registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]RegistryEntry)}
}

// Register adds or replaces a trusted-module entry.
func (r *Registry) Register(path string, entry RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[path] = entry
}

func (r *Registry) lookup(path string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[path]
	return e, ok
}

// Result is the outcome of one verification (spec.md §4.5).
type Result struct {
	Checksum   string
	Size       int64
	MTime      time.Time
	TrustLevel TrustLevel
	Warning    string
}

// Verifier is the C5 component: hashes module content, consults the
// trusted registry, and caches results by file path.
type Verifier struct {
	registry         *Registry
	enforceIntegrity bool

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	result    Result
	timestamp time.Time
}

const maxCacheEntries = 1000

// New constructs a Verifier. enforceIntegrity, when true, fails closed on
// an Unknown trust result (spec.md §4.5).
func New(registry *Registry, enforceIntegrity bool) *Verifier {
	return &Verifier{registry: registry, enforceIntegrity: enforceIntegrity, cache: make(map[string]cacheEntry)}
}

// Sha256Hex computes the SHA-256 hex digest of file content (spec.md §8's
// "recorded sha256 equals the SHA-256 of the bytes read" invariant).
func Sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// VerifyModule implements the C5 contract: verify_module(path, file) ->
// VerificationResult | SecurityViolation.
func (v *Verifier) VerifyModule(modulePath, filePath string, content []byte, mtime time.Time) (Result, error) {
	v.mu.Lock()
	if cached, ok := v.cache[filePath]; ok {
		v.mu.Unlock()
		return cached.result, nil
	}
	v.mu.Unlock()

	checksum := Sha256Hex(content)
	result := Result{Checksum: checksum, Size: int64(len(content)), MTime: mtime}

	entry, found := v.registry.lookup(modulePath)
	switch {
	case !found:
		result.TrustLevel = Unknown
		result.Warning = "not in trusted registry"

	case entry.Checksum == checksum:
		result.TrustLevel = entry.TrustLevel

	case entry.AllowUpdates && mtime.After(entry.RecordedMTime):
		result.TrustLevel = entry.TrustLevel
		result.Warning = "checksum updated under allow_updates policy"

	default:
		result.TrustLevel = Unknown
		result.Warning = "checksum mismatch"
	}

	if found && entry.MaxSize > 0 && result.Size > entry.MaxSize {
		result.TrustLevel = Unknown
		result.Warning = "module exceeds registered max size"
	}

	if v.enforceIntegrity && result.TrustLevel == Unknown {
		code := diag.SEC003
		if !found {
			code = diag.SEC004
		}
		return result, diag.New(diag.KindIntegrityFailure, code,
			"integrity enforcement failed: module trust level is Unknown").
			WithModule(modulePath).WithCategory(result.Warning)
	}

	v.mu.Lock()
	v.evictIfFullLocked()
	v.cache[filePath] = cacheEntry{result: result, timestamp: time.Now()}
	v.mu.Unlock()

	return result, nil
}

// evictIfFullLocked drops the oldest cache entry once the cache exceeds
// 1000 entries (spec.md §4.5), must be called with v.mu held.
func (v *Verifier) evictIfFullLocked() {
	if len(v.cache) < maxCacheEntries {
		return
	}
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range v.cache {
		if first || e.timestamp.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.timestamp, false
		}
	}
	delete(v.cache, oldestKey)
}
