// Package heap implements the C12 reference-counted heap: alloc/clone/
// drop primitives, weak-count-gated tombstoning on last-strong-drop, and
// the possibly-cyclic root set the C13 cycle collector snapshots.
//
// ailang's own evaluator (internal/eval) relies entirely on Go's garbage
// collector and has no reference-counting layer of its own, so this
// package is new construction against spec.md §4.12 — grounded on the
// teacher's atomic-counter and RWMutex-guarded-map idiom used elsewhere
// (internal/module/loader.go's cache, internal/effects' context map)
// rather than on any one teacher file doing the same job.
package heap

import (
	"sync"
	"sync/atomic"

	"github.com/dkessler/corelang/internal/resource"
)

// ObjectID identifies one heap-allocated object.
type ObjectID uint64

// Destructor runs once an object's strong count reaches zero.
type Destructor func(value any)

// Tracer is implemented by values that hold strong references to other
// heap objects, letting the cycle collector discover out-edges (spec.md
// §4.13's "traverse each root's strong out-edges").
type Tracer interface {
	TraceRefs() []ObjectID
}

// Profiler optionally observes every allocation's size class and type
// name (spec.md §4.12).
type Profiler interface {
	RecordAlloc(typeName string, sizeClass int64)
}

type object struct {
	value      any
	typeName   string
	sizeClass  int64
	strong     atomic.Int64
	weak       atomic.Int64
	destructor Destructor
}

func (o *object) refs() []ObjectID {
	if t, ok := o.value.(Tracer); ok {
		return t.TraceRefs()
	}
	return nil
}

// Heap is the C12 component.
type Heap struct {
	monitor     *resource.Monitor
	profiler    Profiler
	onCollected func(ObjectID) // notifies C13 that an object is gone

	mu      sync.RWMutex
	objects map[ObjectID]*object
	cyclic  map[ObjectID]bool
	nextID  atomic.Uint64
}

// New constructs a Heap. onCollected may be nil; it is invoked outside
// any lock each time an object's strong count reaches zero and it is
// finalized, whether its storage is freed or it stays as a weak tombstone.
func New(monitor *resource.Monitor, profiler Profiler, onCollected func(ObjectID)) *Heap {
	return &Heap{
		monitor:     monitor,
		profiler:    profiler,
		onCollected: onCollected,
		objects:     make(map[ObjectID]*object),
		cyclic:      make(map[ObjectID]bool),
	}
}

// Alloc implements alloc(T, value) -> Rc<T> (spec.md §4.12): charges
// sizeClass against the resource monitor's memory accounting, reports to
// the optional profiler, and returns a fresh strong reference.
func (h *Heap) Alloc(typeName string, sizeClass int64, value any, destructor Destructor) (ObjectID, error) {
	if err := h.monitor.CheckMemory(sizeClass); err != nil {
		return 0, err
	}
	obj := &object{value: value, typeName: typeName, sizeClass: sizeClass, destructor: destructor}
	obj.strong.Store(1)

	id := ObjectID(h.nextID.Add(1))
	h.mu.Lock()
	h.objects[id] = obj
	h.mu.Unlock()

	if h.profiler != nil {
		h.profiler.RecordAlloc(typeName, sizeClass)
	}
	return id, nil
}

// RegisterPossiblyCyclic marks id as a container value whose destructor
// could participate in a cycle (spec.md §4.12).
func (h *Heap) RegisterPossiblyCyclic(id ObjectID) {
	h.mu.Lock()
	h.cyclic[id] = true
	h.mu.Unlock()
}

// Clone increments id's strong count and returns it unchanged, mirroring
// Rc::clone.
func (h *Heap) Clone(id ObjectID) ObjectID {
	if obj := h.lookup(id); obj != nil {
		obj.strong.Add(1)
	}
	return id
}

// Drop decrements id's strong count, finalizing the object when it
// reaches zero.
func (h *Heap) Drop(id ObjectID) {
	obj := h.lookup(id)
	if obj == nil {
		return
	}
	if n := obj.strong.Add(-1); n <= 0 {
		h.finalize(id, obj)
	}
}

// AddWeak increments id's weak count.
func (h *Heap) AddWeak(id ObjectID) {
	if obj := h.lookup(id); obj != nil {
		obj.weak.Add(1)
	}
}

// DropWeak decrements id's weak count, freeing a tombstoned object's slot
// once both counts reach zero.
func (h *Heap) DropWeak(id ObjectID) {
	obj := h.lookup(id)
	if obj == nil {
		return
	}
	if obj.weak.Add(-1) <= 0 && obj.strong.Load() <= 0 {
		h.mu.Lock()
		delete(h.objects, id)
		h.mu.Unlock()
	}
}

// Upgrade returns the value at id if it is still live (strong count > 0),
// or false if only a tombstone remains.
func (h *Heap) Upgrade(id ObjectID) (any, bool) {
	obj := h.lookup(id)
	if obj == nil || obj.strong.Load() <= 0 {
		return nil, false
	}
	return obj.value, true
}

// StrongCount reports id's current strong count, or -1 if id is unknown.
func (h *Heap) StrongCount(id ObjectID) int64 {
	if obj := h.lookup(id); obj != nil {
		return obj.strong.Load()
	}
	return -1
}

func (h *Heap) lookup(id ObjectID) *object {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.objects[id]
}

// finalize runs the destructor and, depending on the weak count, either
// frees the object outright or retains a value-less tombstone (spec.md
// §4.12: "weak count is consulted to decide whether storage is freed or
// retained as a tombstone").
func (h *Heap) finalize(id ObjectID, obj *object) {
	if obj.destructor != nil {
		obj.destructor(obj.value)
	}

	h.mu.Lock()
	if obj.weak.Load() > 0 {
		obj.value = nil
	} else {
		delete(h.objects, id)
	}
	delete(h.cyclic, id)
	h.mu.Unlock()

	_ = h.monitor.CheckMemory(-obj.sizeClass)

	if h.onCollected != nil {
		h.onCollected(id)
	}
}

// SnapshotCyclicRoots returns the current possibly-cyclic root set
// (spec.md §4.13 step 1).
func (h *Heap) SnapshotCyclicRoots() []ObjectID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roots := make([]ObjectID, 0, len(h.cyclic))
	for id := range h.cyclic {
		roots = append(roots, id)
	}
	return roots
}

// Inspect returns id's current strong count, reported type name, and
// strong out-edges, for the cycle collector's traversal.
func (h *Heap) Inspect(id ObjectID) (strong int64, typeName string, refs []ObjectID, ok bool) {
	h.mu.RLock()
	obj, found := h.objects[id]
	h.mu.RUnlock()
	if !found {
		return 0, "", nil, false
	}
	return obj.strong.Load(), obj.typeName, obj.refs(), true
}

// CollectCycleMember force-finalizes id as a confirmed garbage-cycle
// member (spec.md §4.13 Phase C), bypassing the strong-count check since
// the collector has already proven it unreachable from outside the cycle.
func (h *Heap) CollectCycleMember(id ObjectID) {
	obj := h.lookup(id)
	if obj == nil {
		return
	}
	obj.strong.Store(0)
	h.finalize(id, obj)
}
