package lower

import (
	"fmt"

	"github.com/dkessler/corelang/internal/coreast"
)

// FieldSchema lets the lowerer prove elision condition (a) of spec.md
// §4.11: "the type of the object statically contains the named field."
type FieldSchema interface {
	HasField(objectType coreast.Type, field string) bool
}

// Lowerer performs the C11 safety-instrumented lowering from typed AST to
// the instruction stream in ir.go. A single Lowerer value accumulates the
// constant-propagation and dominating-check facts spec.md §4.11's elision
// rule allows, scoped to one lowering pass.
type Lowerer struct {
	schema FieldSchema
	fresh  int

	// knownArrayLengths records constant lengths discovered for array
	// values (seeded via RegisterKnownLength), part of elision condition
	// (b): "the index is provably within [0, length) from constant
	// propagation".
	knownArrayLengths map[Value]int
	// checked records (array, index) pairs already bounds-checked earlier
	// in this pass — the "dominating checks" half of condition (b).
	checked map[string]bool
	// varValues binds each distinct variable name to one stable Value so
	// repeated references resolve to the same storage instead of minting a
	// fresh temporary per occurrence.
	varValues map[string]Value
}

// New constructs a Lowerer. schema may be nil, in which case field-access
// elision never applies and every field access is validated at runtime.
func New(schema FieldSchema) *Lowerer {
	return &Lowerer{
		schema:            schema,
		knownArrayLengths: make(map[Value]int),
		checked:           make(map[string]bool),
		varValues:         make(map[string]Value),
	}
}

// RegisterKnownLength seeds a constant array length for arr, enabling
// bounds-check elision on indices provably within range.
func (l *Lowerer) RegisterKnownLength(arr Value, length int) {
	l.knownArrayLengths[arr] = length
}

func (l *Lowerer) freshValue(prefix string) Value {
	l.fresh++
	return Value(fmt.Sprintf("%s%d", prefix, l.fresh))
}

// Lower lowers expr into a flat instruction stream plus the Value holding
// its result.
func (l *Lowerer) Lower(expr coreast.Expr) ([]Instr, Value) {
	switch e := expr.(type) {
	case *coreast.Var:
		if v, ok := l.varValues[e.Name]; ok {
			return nil, v
		}
		v := l.freshValue("v")
		l.varValues[e.Name] = v
		return []Instr{Eval{Dst: v, Kind: "Var"}}, v
	case *coreast.Index:
		return l.lowerIndex(e)
	case *coreast.Field:
		return l.lowerField(e)
	default:
		dst := l.freshValue("v")
		return []Instr{Eval{Dst: dst, Kind: fmt.Sprintf("%T", expr)}}, dst
	}
}

func (l *Lowerer) lowerIndex(e *coreast.Index) ([]Instr, Value) {
	instrs, arrVal := l.Lower(e.Array)
	idxInstrs, idxVal := l.Lower(e.Idx)
	instrs = append(instrs, idxInstrs...)

	lenVal := l.freshValue("len")
	instrs = append(instrs, ArrayLen{Dst: lenVal, Array: arrVal})

	if !l.canElideBounds(arrVal, idxVal, e) {
		instrs = append(instrs, BoundsCheck{Index: idxVal, Length: lenVal, ErrorMsg: e.Span().String()})
		l.markChecked(arrVal, idxVal)
	}

	addrVal := l.freshValue("addr")
	instrs = append(instrs, Addr{Dst: addrVal, Array: arrVal, Index: idxVal})
	dst := l.freshValue("v")
	instrs = append(instrs, Load{Dst: dst, Addr: addrVal})
	return instrs, dst
}

// LowerIndexStore lowers an assignment a[i] = value, sharing the same
// bounds-check emission rule as a read (spec.md §4.11 covers both
// "indexed read/write").
func (l *Lowerer) LowerIndexStore(target *coreast.Index, value coreast.Expr) []Instr {
	instrs, arrVal := l.Lower(target.Array)
	idxInstrs, idxVal := l.Lower(target.Idx)
	instrs = append(instrs, idxInstrs...)

	lenVal := l.freshValue("len")
	instrs = append(instrs, ArrayLen{Dst: lenVal, Array: arrVal})

	if !l.canElideBounds(arrVal, idxVal, target) {
		instrs = append(instrs, BoundsCheck{Index: idxVal, Length: lenVal, ErrorMsg: target.Span().String()})
		l.markChecked(arrVal, idxVal)
	}

	addrVal := l.freshValue("addr")
	instrs = append(instrs, Addr{Dst: addrVal, Array: arrVal, Index: idxVal})
	valInstrs, valVal := l.Lower(value)
	instrs = append(instrs, valInstrs...)
	instrs = append(instrs, Store{Addr: addrVal, Src: valVal})
	return instrs
}

func (l *Lowerer) checkKey(arr, idx Value) string { return string(arr) + ":" + string(idx) }

func (l *Lowerer) markChecked(arr, idx Value) { l.checked[l.checkKey(arr, idx)] = true }

// canElideBounds implements spec.md §4.11's optimization rule for arrays:
// elide only when a dominating check already covers this exact (array,
// index) pair, or the index is a literal provably inside a known constant
// length.
func (l *Lowerer) canElideBounds(arr, idx Value, e *coreast.Index) bool {
	if l.checked[l.checkKey(arr, idx)] {
		return true
	}
	lit, ok := e.Idx.(*coreast.IntLit)
	if !ok {
		return false
	}
	length, ok := l.knownArrayLengths[arr]
	if !ok {
		return false
	}
	return lit.Value >= 0 && int(lit.Value) < length
}

func (l *Lowerer) lowerField(e *coreast.Field) ([]Instr, Value) {
	instrs, objVal := l.Lower(e.Object)

	objType := e.Object.Type()
	if !l.canElideField(objType, e.Name) {
		typeName := "?"
		if objType != nil {
			typeName = objType.String()
		}
		instrs = append(instrs, ValidateFieldAccess{ObjectType: typeName, FieldName: e.Name})
	}
	dst := l.freshValue("v")
	instrs = append(instrs, FieldLoad{Dst: dst, Object: objVal, Field: e.Name})
	return instrs, dst
}

// canElideField implements elision condition (a): the checker can prove
// the object's static type contains the named field.
func (l *Lowerer) canElideField(objType coreast.Type, field string) bool {
	if objType == nil || l.schema == nil {
		return false
	}
	return l.schema.HasField(objType, field)
}
