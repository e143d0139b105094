package infer

import "github.com/dkessler/corelang/internal/diag"

// Constraint is an equality t1 ≡ t2 annotated with a source span
// (spec.md §3). Produced by Engine while walking the AST, drained by the
// solver to build a Substitution.
type Constraint struct {
	T1, T2 Type
	Span   diag.Span
}
