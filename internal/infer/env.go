package infer

// Env is a persistent (copy-on-extend) type environment mapping bound
// names to their inferred types.
type Env struct {
	parent *Env
	name   string
	typ    Type
}

// Lookup walks the environment chain for name.
func (e *Env) Lookup(name string) (Type, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.typ, true
		}
	}
	return nil, false
}

// Extend returns a new Env with name bound to typ, shadowing any outer
// binding of the same name.
func (e *Env) Extend(name string, typ Type) *Env {
	return &Env{parent: e, name: name, typ: typ}
}
