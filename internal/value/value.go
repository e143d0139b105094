// Package value implements the C15 runtime value model: a tagged union
// of runtime values plus the trace(visitor) protocol the cycle collector
// (C13) and any profiling/debugging tooling consume.
//
// Grounded directly on the teacher's internal/eval/value.go tagged-union
// Value interface and its concrete Int/Float/String/Bool/Unit/List/
// Tuple/Record/Function/Builtin/Tagged value set — the shape is kept,
// generalized with the Tracer/trace_size machinery spec.md §4.15 adds on
// top (ailang's own Value never participates in cycle collection, since
// ailang has no reference-counted heap).
package value

import (
	"fmt"
	"strings"

	"github.com/dkessler/corelang/internal/heap"
)

// Value is the runtime value union of spec.md §4.15.
type Value interface {
	TypeName() string
	String() string
	// Trace invokes visit on every Rc this value owns directly (spec.md
	// §4.15: "containers invoke visitor on each owned Rc and recurse").
	// Primitive values are no-ops.
	Trace(visit func(heap.ObjectID))
	// TraceSize reports the memory this value's own representation
	// occupies, excluding anything reachable only through an owned Rc
	// (the heap already accounts for those separately).
	TraceSize() int64
}

type Int struct{ V int64 }

func (Int) TypeName() string             { return "Int" }
func (v Int) String() string             { return fmt.Sprintf("%d", v.V) }
func (Int) Trace(func(heap.ObjectID))    {}
func (Int) TraceSize() int64             { return 8 }

type Float struct{ V float64 }

func (Float) TypeName() string          { return "Float" }
func (v Float) String() string          { return fmt.Sprintf("%g", v.V) }
func (Float) Trace(func(heap.ObjectID)) {}
func (Float) TraceSize() int64          { return 8 }

type Bool struct{ V bool }

func (Bool) TypeName() string { return "Bool" }
func (v Bool) String() string {
	if v.V {
		return "true"
	}
	return "false"
}
func (Bool) Trace(func(heap.ObjectID)) {}
func (Bool) TraceSize() int64          { return 1 }

type Unit struct{}

func (Unit) TypeName() string          { return "Unit" }
func (Unit) String() string            { return "()" }
func (Unit) Trace(func(heap.ObjectID)) {}
func (Unit) TraceSize() int64          { return 0 }

// Str holds its bytes directly; spec.md doesn't require strings to be
// heap-managed, so it carries its own size like the other primitives.
type Str struct{ V string }

func (Str) TypeName() string          { return "String" }
func (v Str) String() string          { return v.V }
func (Str) Trace(func(heap.ObjectID)) {}
func (v Str) TraceSize() int64        { return int64(len(v.V)) }

// List is a container of heap-managed elements.
type List struct {
	Elements []heap.ObjectID
	h        *heap.Heap
}

func NewList(h *heap.Heap, elements []heap.ObjectID) List { return List{Elements: elements, h: h} }

func (List) TypeName() string { return "List" }
func (l List) String() string {
	parts := make([]string, len(l.Elements))
	for i, id := range l.Elements {
		parts[i] = describe(l.h, id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l List) Trace(visit func(heap.ObjectID)) {
	for _, id := range l.Elements {
		visit(id)
	}
}
func (l List) TraceSize() int64 { return int64(len(l.Elements)) * 8 }

// TraceRefs implements heap.Tracer so the cycle collector can discover
// this value's out-edges directly through Heap.Inspect.
func (l List) TraceRefs() []heap.ObjectID { return append([]heap.ObjectID(nil), l.Elements...) }

// Tuple is a fixed-arity container of heap-managed elements.
type Tuple struct {
	Elements []heap.ObjectID
	h        *heap.Heap
}

func NewTuple(h *heap.Heap, elements []heap.ObjectID) Tuple { return Tuple{Elements: elements, h: h} }

func (Tuple) TypeName() string { return "Tuple" }
func (t Tuple) String() string {
	parts := make([]string, len(t.Elements))
	for i, id := range t.Elements {
		parts[i] = describe(t.h, id)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (t Tuple) Trace(visit func(heap.ObjectID)) {
	for _, id := range t.Elements {
		visit(id)
	}
}
func (t Tuple) TraceSize() int64 { return int64(len(t.Elements)) * 8 }

func (t Tuple) TraceRefs() []heap.ObjectID { return append([]heap.ObjectID(nil), t.Elements...) }

// Record is a named-field container of heap-managed elements.
type Record struct {
	Fields map[string]heap.ObjectID
	h      *heap.Heap
}

func NewRecord(h *heap.Heap, fields map[string]heap.ObjectID) Record {
	return Record{Fields: fields, h: h}
}

func (Record) TypeName() string { return "Record" }
func (r Record) String() string {
	parts := make([]string, 0, len(r.Fields))
	for k, id := range r.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", k, describe(r.h, id)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (r Record) Trace(visit func(heap.ObjectID)) {
	for _, id := range r.Fields {
		visit(id)
	}
}
func (r Record) TraceSize() int64 { return int64(len(r.Fields)) * 16 }

func (r Record) TraceRefs() []heap.ObjectID {
	refs := make([]heap.ObjectID, 0, len(r.Fields))
	for _, id := range r.Fields {
		refs = append(refs, id)
	}
	return refs
}

// Enum represents an ADT constructor at runtime, and is the concrete
// representation spec.md §4.15 requires for Result and Option: tag
// "Result"/"Option" with variants "Ok"/"Err" or "Some"/"None".
type Enum struct {
	TypeName_ string
	Variant   string
	Data      []heap.ObjectID
	h         *heap.Heap
}

func NewEnum(h *heap.Heap, typeName, variant string, data []heap.ObjectID) Enum {
	return Enum{TypeName_: typeName, Variant: variant, Data: data, h: h}
}

func (e Enum) TypeName() string { return e.TypeName_ }
func (e Enum) String() string {
	if len(e.Data) == 0 {
		return e.Variant
	}
	parts := make([]string, len(e.Data))
	for i, id := range e.Data {
		parts[i] = describe(e.h, id)
	}
	return e.Variant + "(" + strings.Join(parts, ", ") + ")"
}
func (e Enum) Trace(visit func(heap.ObjectID)) {
	for _, id := range e.Data {
		visit(id)
	}
}
func (e Enum) TraceSize() int64 { return int64(len(e.Data)) * 8 }

func (e Enum) TraceRefs() []heap.ObjectID { return append([]heap.ObjectID(nil), e.Data...) }

// Ok and Err build the Result enum spec.md §4.15 names.
func Ok(h *heap.Heap, v heap.ObjectID) Enum  { return NewEnum(h, "Result", "Ok", []heap.ObjectID{v}) }
func Err(h *heap.Heap, v heap.ObjectID) Enum { return NewEnum(h, "Result", "Err", []heap.ObjectID{v}) }

// Some and None build the Option enum spec.md §4.15 names.
func Some(h *heap.Heap, v heap.ObjectID) Enum { return NewEnum(h, "Option", "Some", []heap.ObjectID{v}) }
func None(h *heap.Heap) Enum                  { return NewEnum(h, "Option", "None", nil) }

// IsOk, IsErr, IsSome, IsNone implement the "pattern matching tests
// type_name and variant" rule of spec.md §4.15 for the two builtin enums.
func IsOk(e Enum) bool   { return e.TypeName_ == "Result" && e.Variant == "Ok" }
func IsErr(e Enum) bool  { return e.TypeName_ == "Result" && e.Variant == "Err" }
func IsSome(e Enum) bool { return e.TypeName_ == "Option" && e.Variant == "Some" }
func IsNone(e Enum) bool { return e.TypeName_ == "Option" && e.Variant == "None" }

func describe(h *heap.Heap, id heap.ObjectID) string {
	v, ok := h.Upgrade(id)
	if !ok {
		return "<freed>"
	}
	if sv, ok := v.(Value); ok {
		return sv.String()
	}
	return fmt.Sprintf("%v", v)
}
