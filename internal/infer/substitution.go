package infer

// Substitution maps TVar ids to Types (spec.md §3). Composition and apply
// follow the teacher's internal/types/unification.go shape: apply is
// recursive, and composing s1.Compose(s2) applies s1 to every range value
// of s2 before merging, with s1 taking precedence on key conflicts.
type Substitution map[uint32]Type

// Apply recursively substitutes type variables bound in s throughout t. It
// is idempotent once s is fully resolved (spec.md §3 invariant, §8 law
// apply(s, apply(s, t)) == apply(s, t)).
func Apply(s Substitution, t Type) Type {
	switch t := t.(type) {
	case *TVar:
		if bound, ok := s[t.ID]; ok {
			// Resolve transitively in case s itself isn't yet saturated.
			return Apply(s, bound)
		}
		return t
	case *TArray:
		return &TArray{Elem: Apply(s, t.Elem)}
	case *TFunc:
		params := make([]Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = Apply(s, p)
		}
		return &TFunc{Params: params, Ret: Apply(s, t.Ret)}
	case *TResult:
		return &TResult{Ok: Apply(s, t.Ok), Err: Apply(s, t.Err)}
	case *TGeneric:
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = Apply(s, a)
		}
		return &TGeneric{Name: t.Name, Args: args}
	default:
		// TPrim, TNamed, TUnknown carry no variables.
		return t
	}
}

// ApplyAll applies s to every type in ts, returning a new slice.
func ApplyAll(s Substitution, ts []Type) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = Apply(s, t)
	}
	return out
}

// Compose returns the substitution equivalent to applying s first, then
// receiver r: r.Compose(s) applies r to every range value of s, inserts the
// results, then inserts every binding of r, so r wins on keys both bind.
func (r Substitution) Compose(s Substitution) Substitution {
	out := make(Substitution, len(r)+len(s))
	for id, t := range s {
		out[id] = Apply(r, t)
	}
	for id, t := range r {
		out[id] = t // r takes precedence on conflicting keys
	}
	return out
}
