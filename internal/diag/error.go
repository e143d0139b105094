package diag

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Code is a stable `<PHASE><NNN>` identifier, e.g. "TYP004", "SEC012",
// "MOD002" — mirroring sunholo/ailang's internal/errors code taxonomy.
type Code string

// Phase-prefixed code families. Each family covers one spec.md component
// group; numbering within a family is stable and append-only.
const (
	// Type inference (C1/C2)
	TYP001 Code = "TYP001" // type mismatch
	TYP002 Code = "TYP002" // occurs check / infinite type
	TYP003 Code = "TYP003" // unbound symbol
	TYP004 Code = "TYP004" // arity mismatch
	TYP005 Code = "TYP005" // constraint budget exhausted mid-solve

	// Security / resource (C3, C4, C5, C6, C7)
	SEC001 Code = "SEC001" // path traversal
	SEC002 Code = "SEC002" // suspicious identifier pattern
	SEC003 Code = "SEC003" // integrity: checksum mismatch
	SEC004 Code = "SEC004" // integrity: not in trusted registry
	SEC005 Code = "SEC005" // permission denied
	SEC006 Code = "SEC006" // resource exhausted
	SEC007 Code = "SEC007" // timeout (phase or total)
	SEC008 Code = "SEC008" // sandbox envelope violation

	// Module resolution (C9)
	MOD001 Code = "MOD001" // module not found
	MOD002 Code = "MOD002" // circular import
	MOD003 Code = "MOD003" // module too large

	// Monomorphization (C10)
	MONO001 Code = "MONO001" // specialization cap exceeded or specialization failed
	MONO002 Code = "MONO002" // work queue cap exceeded

	// Safety-instrumented lowering / runtime traps (C11)
	RT001 Code = "RT001" // bounds violation
	RT002 Code = "RT002" // field access violation

	// Reference-counted heap / cycle collector (C12, C13)
	RT003 Code = "RT003" // cycle collection aborted (budget, depth, or type validation)
	RT004 Code = "RT004" // resurrection detected during cycle collection

	// FFI / async security (C16)
	FFI001 Code = "FFI001" // invalid or stale pointer
	FFI002 Code = "FFI002" // rate limit exceeded
	FFI003 Code = "FFI003" // call not in allowlist

	// Cooperative async executor (C14)
	ASY001 Code = "ASY001" // join_all called with zero members

	// Recovered panics at a Tier-3 recovery boundary (spec.md §7)
	BUG001 Code = "BUG001" // panic recovered at the async task boundary
	BUG002 Code = "BUG002" // panic recovered at the compilation-unit boundary
)

// Error is the common diagnostic carried by every Tier-1/2 condition in
// spec.md §7: a message, optional span, optional module path, an error
// kind/code, and an optional cause chain via errors.Unwrap.
type Error struct {
	Kind       Kind
	Code       Code
	Message    string
	Span       Span
	ModulePath string
	Cause      error

	// Category further narrows a SecurityViolation (e.g. "PathTraversal",
	// "DoS") so tooling can filter security events, per spec.md §7.
	Category string

	// TraceID identifies a Tier-3 bug report for post-mortem correlation
	// (spec.md §7, "Tier 3 messages include an internal trace identifier").
	// Stamped automatically by New for KindInternal; empty for Tier 1/2.
	TraceID string
}

func (e *Error) Error() string {
	suffix := fmt.Sprintf("[%s/%s]", e.Kind, e.Code)
	if e.TraceID != "" {
		suffix = fmt.Sprintf("%s trace=%s", suffix, e.TraceID)
	}
	loc := e.Span.String()
	if loc != "" {
		if e.ModulePath != "" {
			return fmt.Sprintf("%s: %s (%s) %s", loc, e.Message, e.ModulePath, suffix)
		}
		return fmt.Sprintf("%s: %s %s", loc, e.Message, suffix)
	}
	return fmt.Sprintf("%s %s", e.Message, suffix)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error for a given kind/code. Tier-3 (KindInternal) errors
// are stamped with a fresh TraceID for post-mortem correlation, per
// spec.md §7.
func New(kind Kind, code Code, msg string) *Error {
	e := &Error{Kind: kind, Code: code, Message: msg}
	if TierOf(kind) == TierBug {
		e.TraceID = uuid.NewString()
	}
	return e
}

// WithSpan attaches a source span and returns the receiver for chaining.
func (e *Error) WithSpan(s Span) *Error {
	e.Span = s
	return e
}

// WithModule attaches a module path and returns the receiver for chaining.
func (e *Error) WithModule(path string) *Error {
	e.ModulePath = path
	return e
}

// WithCause attaches a wrapped cause and returns the receiver for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithCategory attaches a security-category tag (spec.md §7) and returns
// the receiver for chaining.
func (e *Error) WithCategory(cat string) *Error {
	e.Category = cat
	return e
}

// jsonEnvelope mirrors internal/schema's deterministic error envelope:
// schema/kind/code/message/span/module_path/category/cause/trace_id.
type jsonEnvelope struct {
	Schema     string `json:"schema"`
	Kind       Kind   `json:"kind"`
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Span       string `json:"span,omitempty"`
	ModulePath string `json:"module_path,omitempty"`
	Category   string `json:"category,omitempty"`
	Cause      string `json:"cause,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

const schemaVersion = "corelang.error/v1"

// MarshalJSON renders the structured envelope consumed by the audit logger
// and any AI-facing tooling, matching internal/schema's golden-JSON style.
func (e *Error) MarshalJSON() ([]byte, error) {
	env := jsonEnvelope{
		Schema:     schemaVersion,
		Kind:       e.Kind,
		Code:       e.Code,
		Message:    e.Message,
		Span:       e.Span.String(),
		ModulePath: e.ModulePath,
		Category:   e.Category,
		TraceID:    e.TraceID,
	}
	if e.Cause != nil {
		env.Cause = e.Cause.Error()
	}
	return json.Marshal(env)
}
