// Package mono implements the C10 monomorphization engine: bounded
// work-queue specialization of generic function/type definitions against
// concrete type-argument tuples observed at call sites.
//
// Grounded on internal/infer's Type union for the type-argument tuples
// being specialized over, and on internal/elaborate's pass-over-a-program
// shape in the teacher (a driver that walks declarations, rewrites call
// sites, and feeds a work queue) — re-expressed for spec.md §4.10's
// explicit queue/cache/determinism contract, which the teacher's
// monomorphic evaluator has no equivalent of.
package mono

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/dkessler/corelang/internal/diag"
	"github.com/dkessler/corelang/internal/infer"
	"github.com/dkessler/corelang/internal/resource"
)

// GenericDef is a generic function or type definition available for
// specialization.
type GenericDef struct {
	Name string
	// Body is opaque to this package; the engine only clones and rewrites
	// it via the Cloner callback so it stays independent of any one IR
	// representation.
	Body interface{}
}

// CallSite is one reference to a GenericDef with concrete type arguments.
type CallSite struct {
	Callee    string
	TypeArgs  []infer.Type
	RewriteTo *string // engine fills this in with the specialized name
}

// Cloner produces a fresh copy of a generic body with its type variables
// substituted by the given concrete arguments, returning the cloned body
// and any further call sites discovered inside it (for queueing).
type Cloner func(def GenericDef, args []infer.Type) (body interface{}, nested []CallSite, err error)

// specKey is the canonical (F, A) key of spec.md §4.10: the generic's
// name plus a structural hash of the type tuple.
type specKey struct {
	name string
	hash string
}

// Specialization is one entry in the specialization table.
type Specialization struct {
	Key            specKey
	SpecializedName string
	Body           interface{}
}

// Engine is the C10 monomorphization engine.
type Engine struct {
	monitor *resource.Monitor
	cloner  Cloner

	defs  map[string]GenericDef
	table map[specKey]*Specialization
	queue []queued
}

type queued struct {
	def  GenericDef
	args []infer.Type
}

// NewEngine constructs an Engine. The cache persists for the lifetime of
// the Engine value, matching spec.md §4.10's "cache persists across the
// whole program compilation".
func NewEngine(monitor *resource.Monitor, cloner Cloner) *Engine {
	return &Engine{
		monitor: monitor,
		cloner:  cloner,
		defs:    make(map[string]GenericDef),
		table:   make(map[specKey]*Specialization),
	}
}

// RegisterGeneric makes a generic definition available for specialization
// by name.
func (e *Engine) RegisterGeneric(def GenericDef) {
	e.defs[def.Name] = def
}

// canonicalArgTuple produces the structural hash of a type-argument tuple
// (spec.md §4.10: "canonical key is structural hash of the type tuple").
func canonicalArgTuple(args []infer.Type) string {
	h := sha256.New()
	for _, a := range args {
		fmt.Fprintf(h, "%T:%v|", a, a)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// specializedName encodes the source name plus the stable digest suffix
// (spec.md §4.10: "output name encodes the source name plus a stable
// digest suffix").
func specializedName(name, digest string) string {
	return name + "$" + digest
}

// Run drains roots — and anything they enqueue — until the queue is
// empty, producing the set of specializations the monomorphized program
// needs plus the call-site rewrites. Caps are enforced from C3:
// max_specializations and max_work_queue_size; violations abort with a
// SecurityViolation (spec.md §4.10).
func (e *Engine) Run(roots []CallSite) ([]*Specialization, error) {
	var out []*Specialization
	for i := range roots {
		if err := e.enqueueCallSite(&roots[i]); err != nil {
			return nil, err
		}
	}
	for len(e.queue) > 0 {
		if err := e.monitor.CheckTotalTimeout(); err != nil {
			return nil, err
		}
		item := e.queue[0]
		e.queue = e.queue[1:]

		key := specKey{name: item.def.Name, hash: canonicalArgTuple(item.args)}
		if _, ok := e.table[key]; ok {
			continue
		}

		if err := e.monitor.AddSpecialization(); err != nil {
			return nil, diag.New(diag.KindSecurityViolation, diag.MONO001,
				fmt.Sprintf("specialization of %q exceeded max_specializations=%d", item.def.Name, e.monitor.Limits().MaxSpecializations)).
				WithModule(item.def.Name).WithCause(err)
		}

		body, nested, err := e.cloner(item.def, item.args)
		if err != nil {
			return nil, diag.New(diag.KindSecurityViolation, diag.MONO001,
				fmt.Sprintf("failed to specialize %q: %v", item.def.Name, err)).WithModule(item.def.Name)
		}

		spec := &Specialization{Key: key, SpecializedName: specializedName(item.def.Name, key.hash), Body: body}
		e.table[key] = spec
		out = append(out, spec)

		for i := range nested {
			if err := e.enqueueCallSite(&nested[i]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// enqueueCallSite resolves a call site against the specialization table,
// rewriting it if already specialized, or enqueues fresh work otherwise.
// Enforces max_work_queue_size.
func (e *Engine) enqueueCallSite(cs *CallSite) error {
	def, ok := e.defs[cs.Callee]
	if !ok {
		return diag.New(diag.KindModuleNotFound, diag.MOD001, "unknown generic definition: "+cs.Callee)
	}
	key := specKey{name: cs.Callee, hash: canonicalArgTuple(cs.TypeArgs)}
	if spec, ok := e.table[key]; ok {
		name := spec.SpecializedName
		cs.RewriteTo = &name
		return nil
	}
	name := specializedName(cs.Callee, key.hash)
	cs.RewriteTo = &name

	maxQueue := e.monitor.Limits().MaxWorkQueueSize
	if uint64(len(e.queue)) >= maxQueue {
		return diag.New(diag.KindSecurityViolation, diag.MONO002,
			fmt.Sprintf("monomorphization work queue exceeded max_work_queue_size=%d", maxQueue))
	}
	e.queue = append(e.queue, queued{def: def, args: cs.TypeArgs})
	return nil
}

// SortedKeys returns the specialization table's keys in deterministic
// order, useful for golden-output tests.
func (e *Engine) SortedKeys() []string {
	keys := make([]string, 0, len(e.table))
	for k := range e.table {
		keys = append(keys, k.name+":"+k.hash)
	}
	sort.Strings(keys)
	return keys
}
