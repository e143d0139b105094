// Package lower implements the C11 safety-instrumented lowerer: every
// indexed access and field access in the typed AST (internal/coreast)
// lowers to a flat instruction stream that emits a BoundsCheck or
// ValidateFieldAccess opcode ahead of the load/store, per spec.md §4.11.
//
// Grounded on internal/coreast's Index/Field node shapes (already
// commented there as the lowerer's intended consumers) and on
// sunholo/ailang's internal/core package for the "flatten an AST into a
// small linear instruction set" convention, generalized to the opcode set
// spec.md §4.11 names explicitly.
package lower

import "fmt"

// Value is an opaque SSA-style temporary name produced by lowering.
type Value string

// Instr is one first-class IR instruction.
type Instr interface {
	String() string
	isInstr()
}

type instrBase struct{}

func (instrBase) isInstr() {}

// Eval stands in for the lowering of any expression this package treats
// opaquely — C11 only instruments indexed and field access per spec.md
// §4.11; every other expression kind lowers to a single opaque step so
// the emitted stream stays inspectable without this package needing to
// duplicate a full code generator.
type Eval struct {
	instrBase
	Dst  Value
	Kind string
}

func (i Eval) String() string { return fmt.Sprintf("%s := eval(%s)", i.Dst, i.Kind) }

// ArrayLen computes an array value's length.
type ArrayLen struct {
	instrBase
	Dst   Value
	Array Value
}

func (i ArrayLen) String() string { return fmt.Sprintf("%s := ArrayLen(%s)", i.Dst, i.Array) }

// BoundsCheck is the first-class opcode emitted ahead of every indexed
// read/write (spec.md §4.11).
type BoundsCheck struct {
	instrBase
	Index    Value
	Length   Value
	ErrorMsg string
}

func (i BoundsCheck) String() string {
	return fmt.Sprintf("BoundsCheck{index: %s, length: %s, error_msg: %q}", i.Index, i.Length, i.ErrorMsg)
}

// Addr computes the address of array[index] ahead of the Load/Store.
type Addr struct {
	instrBase
	Dst   Value
	Array Value
	Index Value
}

func (i Addr) String() string { return fmt.Sprintf("%s := addr(%s[%s])", i.Dst, i.Array, i.Index) }

// Load reads through an address.
type Load struct {
	instrBase
	Dst  Value
	Addr Value
}

func (i Load) String() string { return fmt.Sprintf("%s := Load(%s)", i.Dst, i.Addr) }

// Store writes Src through an address.
type Store struct {
	instrBase
	Addr Value
	Src  Value
}

func (i Store) String() string { return fmt.Sprintf("Store(%s, %s)", i.Addr, i.Src) }

// ValidateFieldAccess is the first-class opcode emitted ahead of every
// field load (spec.md §4.11).
type ValidateFieldAccess struct {
	instrBase
	ObjectType string
	FieldName  string
}

func (i ValidateFieldAccess) String() string {
	return fmt.Sprintf("ValidateFieldAccess{object_type: %s, field_name: %s}", i.ObjectType, i.FieldName)
}

// FieldLoad reads a field off an object value, after validation.
type FieldLoad struct {
	instrBase
	Dst    Value
	Object Value
	Field  string
}

func (i FieldLoad) String() string { return fmt.Sprintf("%s := %s.%s", i.Dst, i.Object, i.Field) }
