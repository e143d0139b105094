package capability

import (
	"time"

	"github.com/dkessler/corelang/internal/resource"
)

// TrustLevel is the total order System > Trusted > Untrusted > Sandbox
// (spec.md §3). Declared independently from internal/integrity.TrustLevel
// because C5's registry trust and C6's module trust are conceptually
// distinct, even though both use the same four-rung order — matching
// spec.md's data model, which lists Trust level once in §3 and lets both
// C5 and C6 consult it.
type TrustLevel int

const (
	System TrustLevel = iota
	Trusted
	Untrusted
	Sandbox
)

func (t TrustLevel) String() string {
	switch t {
	case System:
		return "System"
	case Trusted:
		return "Trusted"
	case Untrusted:
		return "Untrusted"
	default:
		return "Sandbox"
	}
}

// AllowsClass reports whether this trust level permits the capability
// class at all (spec.md §4.6: "a capability request is allowed only if
// the module's trust level permits the capability class").
func (t TrustLevel) AllowsClass(c Class) bool {
	switch t {
	case System:
		return true
	case Trusted:
		return c != ClassFFI && c != ClassProcess
	case Untrusted:
		return c == ClassFileSystem || c == ClassResource || c == ClassModuleInteraction
	default: // Sandbox
		return c == ClassResource
	}
}

// ResourceLimits returns the fixed resource-limit profile for this trust
// level (spec.md §3).
func (t TrustLevel) ResourceLimits() resource.Limits {
	switch t {
	case System:
		l := resource.Production()
		l.MaxMemoryBytes *= 16
		l.MaxConcurrentOps *= 4
		return l
	case Trusted:
		l := resource.Production()
		l.MaxMemoryBytes = 1_000_000_000
		l.TotalTimeout = 60 * time.Second
		l.MaxConcurrentOps = 10
		return l
	case Untrusted:
		return resource.Production()
	default: // Sandbox
		l := resource.Production()
		l.MaxMemoryBytes = 10_000_000
		l.MaxConcurrentOps = 1
		return l
	}
}
