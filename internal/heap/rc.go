package heap

// Rc is a typed handle onto a heap-managed value, the Go-generic
// expression of spec.md §4.12's Rc<T>.
type Rc[T any] struct {
	id   ObjectID
	heap *Heap
}

// AllocRc allocates a new T on h and returns a strong reference to it.
func AllocRc[T any](h *Heap, typeName string, sizeClass int64, value T, destructor Destructor) (Rc[T], error) {
	id, err := h.Alloc(typeName, sizeClass, value, destructor)
	if err != nil {
		return Rc[T]{}, err
	}
	return Rc[T]{id: id, heap: h}, nil
}

// Clone increments the underlying strong count and returns a new handle
// to the same object.
func (r Rc[T]) Clone() Rc[T] {
	r.heap.Clone(r.id)
	return Rc[T]{id: r.id, heap: r.heap}
}

// Drop decrements the underlying strong count.
func (r Rc[T]) Drop() { r.heap.Drop(r.id) }

// Get returns the current value, or the zero value and false if the
// object has already been finalized.
func (r Rc[T]) Get() (T, bool) {
	v, ok := r.heap.Upgrade(r.id)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// StrongCount reports the current strong count.
func (r Rc[T]) StrongCount() int64 { return r.heap.StrongCount(r.id) }

// ID returns the underlying object identity, for registering with the
// cycle collector's possibly-cyclic set.
func (r Rc[T]) ID() ObjectID { return r.id }
