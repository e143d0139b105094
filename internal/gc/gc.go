// Package gc implements the C13 cycle collector: Bacon-Rajan-style trial
// deletion over the heap's possibly-cyclic root set, run incrementally
// under a time/work budget.
//
// ailang has no reference-counted heap and therefore no cycle collector
// to ground this on directly; the four-phase trial-deletion algorithm is
// new construction against spec.md §4.13, grounded on internal/mono's
// cap-checked work-queue idiom (C10, same package family) for how an
// incremental graph algorithm checks its limits between steps; here the
// limits are a resource.WorkBudget and a resource.TimeBudget.
package gc

import (
	"fmt"
	"time"

	"github.com/dkessler/corelang/internal/audit"
	"github.com/dkessler/corelang/internal/diag"
	"github.com/dkessler/corelang/internal/heap"
	"github.com/dkessler/corelang/internal/resource"
)

// TypeRegistry lets the collector validate that a traversed object's
// reported type is one it recognizes, per spec.md §4.13's optional
// "type validation during traversal to detect heap corruption".
type TypeRegistry interface {
	Recognized(typeName string) bool
}

// Config bounds one collection pass.
type Config struct {
	MaxTraversalDepth     int
	MaxSetSize            int
	IncrementalWorkBudget int64
	// Watermark is the fraction of Config's memory budget the caller
	// should reach before triggering a pass; the collector itself does
	// not read memory, the caller decides when to call Collect.
	Watermark float64
}

// Collector is the C13 component.
type Collector struct {
	h        *heap.Heap
	monitor  *resource.Monitor
	log      *audit.Logger
	registry TypeRegistry
	cfg      Config
}

// New constructs a Collector. log and registry may be nil.
func New(h *heap.Heap, monitor *resource.Monitor, log *audit.Logger, registry TypeRegistry, cfg Config) *Collector {
	return &Collector{h: h, monitor: monitor, log: log, registry: registry, cfg: cfg}
}

// scratch tracks one candidate's working reference count during trial
// deletion, plus the state spec.md §4.13's phases mutate.
type scratch struct {
	id           heap.ObjectID
	beforeStrong int64
	count        int64
	buried       bool
}

// Collect runs one full trial-deletion pass over the heap's possibly-cyclic
// root set, bounded by budget and the Collector's Config. It returns the
// number of objects actually freed.
func (c *Collector) Collect(budget time.Duration) (int, error) {
	tb := c.monitor.NewTimeBudget(budget)
	wb := c.monitor.NewWorkBudget(c.cfg.IncrementalWorkBudget)

	roots := c.h.SnapshotCyclicRoots()
	if len(roots) > c.cfg.MaxSetSize {
		return 0, c.abort(fmt.Sprintf("candidate set size %d exceeds max_set_size=%d", len(roots), c.cfg.MaxSetSize))
	}

	candidates, err := c.collectSubgraph(roots, tb, wb)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// Phase A: decrement scratch counts along every strong out-edge that
	// stays within the candidate subgraph (spec.md §4.13 Phase A).
	scratches := make(map[heap.ObjectID]*scratch, len(candidates))
	for id := range candidates {
		strong, typeName, _, ok := c.h.Inspect(id)
		if !ok {
			continue
		}
		if c.registry != nil && !c.registry.Recognized(typeName) {
			return 0, c.abort(fmt.Sprintf("object %d reports unrecognized type %q during traversal", id, typeName))
		}
		scratches[id] = &scratch{id: id, beforeStrong: strong, count: strong}
	}
	for id := range candidates {
		if tb.Expired() {
			return 0, c.abort("time budget exhausted in phase A")
		}
		if !wb.TryConsume(1) {
			return 0, c.abort("incremental work budget exhausted in phase A")
		}
		_, _, refs, ok := c.h.Inspect(id)
		if !ok {
			continue
		}
		for _, ref := range refs {
			if s, inSet := scratches[ref]; inSet {
				s.count--
			}
		}
	}

	// Phase B: any candidate with residual positive scratch is reachable
	// from outside the subgraph (or from a still-live candidate); restore
	// it and propagate liveness to everything it points to (spec.md §4.13
	// Phase B).
	visited := make(map[heap.ObjectID]bool, len(scratches))
	var restore func(id heap.ObjectID, depth int) error
	restore = func(id heap.ObjectID, depth int) error {
		if depth > c.cfg.MaxTraversalDepth {
			return c.abort(fmt.Sprintf("traversal depth exceeded max_traversal_depth=%d", c.cfg.MaxTraversalDepth))
		}
		s, ok := scratches[id]
		if !ok {
			return nil // not a candidate
		}
		if visited[id] {
			return nil // already restored and its children already walked
		}
		visited[id] = true
		s.count = s.beforeStrong
		if tb.Expired() {
			return c.abort("time budget exhausted in phase B")
		}
		if !wb.TryConsume(1) {
			return c.abort("incremental work budget exhausted in phase B")
		}
		_, _, refs, found := c.h.Inspect(id)
		if !found {
			return nil
		}
		for _, ref := range refs {
			if err := restore(ref, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for id, s := range scratches {
		if s.count > 0 {
			if err := restore(id, 0); err != nil {
				return 0, err
			}
		}
	}

	// Phase C: everything with scratch count still at or below zero is
	// confirmed garbage (spec.md §4.13 Phase C). Compare strong counts
	// immediately before finalizing to catch resurrection.
	if tb.Expired() {
		return 0, c.abort("time budget exhausted before phase C")
	}
	freed := 0
	for id, s := range scratches {
		if s.count > 0 {
			continue
		}
		strongNow, _, _, ok := c.h.Inspect(id)
		if !ok {
			continue
		}
		if strongNow > s.beforeStrong {
			c.auditCritical(id, "resurrection detected: strong count increased during collection")
			return freed, diag.New(diag.KindSecurityViolation, diag.RT004,
				fmt.Sprintf("object %d resurrected during cycle collection", id)).WithCategory("CycleCollectorResurrection")
		}
		c.h.CollectCycleMember(id)
		s.buried = true
		freed++
	}
	return freed, nil
}

// collectSubgraph walks the strong out-edges reachable from roots, bounded
// by max_traversal_depth and max_set_size, returning the full candidate set
// (spec.md §4.13 step 1: "gather the subgraph reachable from the candidate
// roots").
func (c *Collector) collectSubgraph(roots []heap.ObjectID, tb *resource.TimeBudget, wb *resource.WorkBudget) (map[heap.ObjectID]bool, error) {
	seen := make(map[heap.ObjectID]bool)
	var walk func(id heap.ObjectID, depth int) error
	walk = func(id heap.ObjectID, depth int) error {
		if tb.Expired() {
			return c.abort("time budget exhausted while gathering candidate subgraph")
		}
		if depth > c.cfg.MaxTraversalDepth {
			return c.abort(fmt.Sprintf("traversal depth exceeded max_traversal_depth=%d", c.cfg.MaxTraversalDepth))
		}
		if seen[id] {
			return nil
		}
		seen[id] = true
		if len(seen) > c.cfg.MaxSetSize {
			return c.abort(fmt.Sprintf("candidate set size exceeded max_set_size=%d", c.cfg.MaxSetSize))
		}
		if !wb.TryConsume(1) {
			return c.abort("incremental work budget exhausted while gathering candidate subgraph")
		}
		_, _, refs, ok := c.h.Inspect(id)
		if !ok {
			return nil
		}
		for _, ref := range refs {
			if err := walk(ref, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r, 0); err != nil {
			return nil, err
		}
	}
	return seen, nil
}

func (c *Collector) abort(msg string) error {
	err := diag.New(diag.KindSecurityViolation, diag.RT003, "cycle collection aborted: "+msg).WithCategory("CycleCollectorAbort")
	c.auditCritical(0, msg)
	return err
}

func (c *Collector) auditCritical(id heap.ObjectID, msg string) {
	if c.log == nil {
		return
	}
	_ = c.log.Log(audit.Event{
		Timestamp:   time.Now(),
		Severity:    audit.Critical,
		Category:    "CycleCollector",
		Description: msg,
		Context: audit.Context{
			Metadata: map[string]string{"object_id": fmt.Sprintf("%d", id)},
		},
	})
}
