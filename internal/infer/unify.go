package infer

import (
	"fmt"

	"github.com/dkessler/corelang/internal/diag"
)

// Unifier performs syntactic unification with an occurs check, per
// spec.md §4.1. It is stateless; all state lives in the Substitution
// threaded through Unify.
type Unifier struct{}

// NewUnifier constructs a Unifier.
func NewUnifier() *Unifier { return &Unifier{} }

// Unify attempts to unify t1 and t2 under sub, returning an updated
// substitution or a TypeError. span is attached to any returned error.
func (u *Unifier) Unify(t1, t2 Type, sub Substitution, span diag.Span) (Substitution, error) {
	t1 = Apply(sub, t1)
	t2 = Apply(sub, t2)

	// Unknown unifies with anything without recording a substitution
	// (the gradual typing hatch, spec.md §4.1).
	if _, ok := t1.(*TUnknown); ok {
		return sub, nil
	}
	if _, ok := t2.(*TUnknown); ok {
		return sub, nil
	}

	if v1, ok := t1.(*TVar); ok {
		if v2, ok2 := t2.(*TVar); ok2 && v1.ID == v2.ID {
			return sub, nil
		}
		return u.bind(v1, t2, sub, span)
	}
	if v2, ok := t2.(*TVar); ok {
		return u.bind(v2, t1, sub, span)
	}

	switch a := t1.(type) {
	case *TPrim:
		b, ok := t2.(*TPrim)
		if !ok || a.Kind != b.Kind {
			return nil, u.mismatch(t1, t2, span)
		}
		return sub, nil

	case *TArray:
		b, ok := t2.(*TArray)
		if !ok {
			return nil, u.mismatch(t1, t2, span)
		}
		return u.Unify(a.Elem, b.Elem, sub, span)

	case *TFunc:
		b, ok := t2.(*TFunc)
		if !ok {
			return nil, u.mismatch(t1, t2, span)
		}
		if len(a.Params) != len(b.Params) {
			return nil, diag.New(diag.KindType, diag.TYP004,
				fmt.Sprintf("function arity mismatch: %d vs %d", len(a.Params), len(b.Params))).WithSpan(span)
		}
		var err error
		for i := range a.Params {
			sub, err = u.Unify(a.Params[i], b.Params[i], sub, span)
			if err != nil {
				return nil, err
			}
		}
		return u.Unify(a.Ret, b.Ret, sub, span)

	case *TResult:
		b, ok := t2.(*TResult)
		if !ok {
			return nil, u.mismatch(t1, t2, span)
		}
		sub, err := u.Unify(a.Ok, b.Ok, sub, span)
		if err != nil {
			return nil, err
		}
		return u.Unify(a.Err, b.Err, sub, span)

	case *TNamed:
		b, ok := t2.(*TNamed)
		if !ok || a.Name != b.Name {
			return nil, u.mismatch(t1, t2, span)
		}
		return sub, nil

	case *TGeneric:
		b, ok := t2.(*TGeneric)
		if !ok || a.Name != b.Name || len(a.Args) != len(b.Args) {
			return nil, u.mismatch(t1, t2, span)
		}
		var err error
		for i := range a.Args {
			sub, err = u.Unify(a.Args[i], b.Args[i], sub, span)
			if err != nil {
				return nil, err
			}
		}
		return sub, nil

	default:
		return nil, u.mismatch(t1, t2, span)
	}
}

func (u *Unifier) bind(v *TVar, t Type, sub Substitution, span diag.Span) (Substitution, error) {
	if occurs(v.ID, t) {
		return nil, diag.New(diag.KindType, diag.TYP002,
			fmt.Sprintf("infinite type: %s occurs in %s", v, t)).WithSpan(span)
	}
	out := make(Substitution, len(sub)+1)
	for k, val := range sub {
		out[k] = val
	}
	out[v.ID] = t
	return out, nil
}

func (u *Unifier) mismatch(t1, t2 Type, span diag.Span) error {
	return diag.New(diag.KindType, diag.TYP001,
		fmt.Sprintf("type mismatch: expected %s, found %s", t1, t2)).WithSpan(span)
}

// occurs implements the occurs check: does TVar id appear syntactically
// inside t? spec.md §4.1 / §8: unify(α, t) succeeds iff α does not occur
// in t.
func occurs(id uint32, t Type) bool {
	switch t := t.(type) {
	case *TVar:
		return t.ID == id
	case *TArray:
		return occurs(id, t.Elem)
	case *TFunc:
		for _, p := range t.Params {
			if occurs(id, p) {
				return true
			}
		}
		return occurs(id, t.Ret)
	case *TResult:
		return occurs(id, t.Ok) || occurs(id, t.Err)
	case *TGeneric:
		for _, a := range t.Args {
			if occurs(id, a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
