// Package coreast defines the typed-AST surface the inference engine (C2)
// consumes and annotates, and the safety-instrumented lowerer (C11)
// consumes to emit IR. It is the interface contract spec.md §1 assigns to
// the external parser: "specified only through the interfaces they consume
// from, or provide to, the core." Nothing in this package parses source
// text — that remains the external collaborator's job.
package coreast

import "github.com/dkessler/corelang/internal/diag"

// Node is the common interface for every AST node the core operates on.
type Node interface {
	Span() diag.Span
}

// Expr is any expression node. Its Type() is filled in via SetType by the
// inference engine's final substitution pass (spec.md §4.2 step 4) and is
// nil before inference runs.
type Expr interface {
	Node
	exprNode()
	Type() Type
	SetType(Type)
}

// Type is a minimal marker interface satisfied by infer.Type so this
// package doesn't need to import infer (kept dependency-free and reusable
// by the lowerer without an import cycle).
type Type interface {
	String() string
}

type base struct {
	span diag.Span
	typ  Type
}

func (b *base) Span() diag.Span { return b.span }
func (b *base) Type() Type      { return b.typ }
func (b *base) SetType(t Type)  { b.typ = t }
func (*base) exprNode()         {}

// IntLit, FloatLit, BoolLit, StringLit are literal expressions.
type IntLit struct {
	base
	Value int32
}

type FloatLit struct {
	base
	Value float32
}

type BoolLit struct {
	base
	Value bool
}

type StringLit struct {
	base
	Value string
}

// Var references a bound identifier.
type Var struct {
	base
	Name string
}

// Lambda is an anonymous function literal: fn (params) { body }.
type Lambda struct {
	base
	Params     []string
	ParamTypes []Type // nil entries mean "no annotation" (type is inferred)
	Body       Expr
}

// Call applies Fn to Args.
type Call struct {
	base
	Fn   Expr
	Args []Expr
}

// Let binds Name = Value in Body.
type Let struct {
	base
	Name  string
	Value Expr
	Body  Expr
}

// If is a conditional expression.
type If struct {
	base
	Cond, Then, Else Expr
}

// BinOp is a binary operator application, e.g. `x + 1`.
type BinOp struct {
	base
	Op          string
	Left, Right Expr
}

// Index is an array index expression a[i] — the lowerer emits a
// BoundsCheck ahead of the load/store for every Index node (spec.md
// §4.11).
type Index struct {
	base
	Array, Idx Expr
}

// Field is a field-access expression x.f — the lowerer emits a
// ValidateFieldAccess ahead of the field load (spec.md §4.11).
type Field struct {
	base
	Object Expr
	Name   string
}

// Return returns Value from the enclosing function.
type Return struct {
	base
	Value Expr
}

// New* constructors stamp the span so callers (the external parser, or
// tests) don't need to populate `base` fields by hand.

func NewIntLit(v int32, span diag.Span) *IntLit       { return &IntLit{base: base{span: span}, Value: v} }
func NewFloatLit(v float32, span diag.Span) *FloatLit { return &FloatLit{base: base{span: span}, Value: v} }
func NewBoolLit(v bool, span diag.Span) *BoolLit      { return &BoolLit{base: base{span: span}, Value: v} }
func NewStringLit(v string, span diag.Span) *StringLit {
	return &StringLit{base: base{span: span}, Value: v}
}
func NewVar(name string, span diag.Span) *Var { return &Var{base: base{span: span}, Name: name} }
func NewLambda(params []string, paramTypes []Type, body Expr, span diag.Span) *Lambda {
	return &Lambda{base: base{span: span}, Params: params, ParamTypes: paramTypes, Body: body}
}
func NewCall(fn Expr, args []Expr, span diag.Span) *Call {
	return &Call{base: base{span: span}, Fn: fn, Args: args}
}
func NewLet(name string, value, body Expr, span diag.Span) *Let {
	return &Let{base: base{span: span}, Name: name, Value: value, Body: body}
}
func NewIf(cond, then, els Expr, span diag.Span) *If {
	return &If{base: base{span: span}, Cond: cond, Then: then, Else: els}
}
func NewBinOp(op string, left, right Expr, span diag.Span) *BinOp {
	return &BinOp{base: base{span: span}, Op: op, Left: left, Right: right}
}
func NewIndex(array, idx Expr, span diag.Span) *Index {
	return &Index{base: base{span: span}, Array: array, Idx: idx}
}
func NewField(object Expr, name string, span diag.Span) *Field {
	return &Field{base: base{span: span}, Object: object, Name: name}
}
func NewReturn(value Expr, span diag.Span) *Return {
	return &Return{base: base{span: span}, Value: value}
}

// Program is a compilation unit: a sequence of top-level let-bindings.
type Program struct {
	Decls []*Let
}
