package infer

import (
	"fmt"
	"time"

	"github.com/dkessler/corelang/internal/coreast"
	"github.com/dkessler/corelang/internal/diag"
	"github.com/dkessler/corelang/internal/resource"
)

// Engine is the inference engine described in spec.md C2. It walks typed
// AST, allocates fresh type variables and equality constraints under a
// resource.Monitor budget, solves them with a Unifier, and writes the
// final substitution back onto the AST.
type Engine struct {
	monitor     *resource.Monitor
	unifier     *Unifier
	constraints []Constraint
	sub         Substitution
	errs        []error
	badVars     map[uint32]bool // variables with a known-bad binding, to suppress cascades
}

// NewEngine constructs an Engine budgeted by monitor.
func NewEngine(monitor *resource.Monitor) *Engine {
	return &Engine{
		monitor: monitor,
		unifier: NewUnifier(),
		sub:     Substitution{},
		badVars: map[uint32]bool{},
	}
}

func (e *Engine) fresh() (*TVar, error) {
	id, err := e.monitor.AddTypeVariable()
	if err != nil {
		return nil, err
	}
	return &TVar{ID: id}, nil
}

func (e *Engine) emit(t1, t2 Type, span diag.Span) error {
	if err := e.monitor.AddConstraint(); err != nil {
		return err
	}
	e.constraints = append(e.constraints, Constraint{T1: t1, T2: t2, Span: span})
	return nil
}

func toInferType(t coreast.Type) Type {
	if t == nil {
		return &TUnknown{}
	}
	if it, ok := t.(Type); ok {
		return it
	}
	return &TUnknown{}
}

// InferProgram is the C2 contract: infer_program(ast) -> typed ast | Error.
// It produces explicit types for every expression and declaration; a lambda
// parameter without an annotation (a nil or missing ParamTypes entry) gets a
// fresh type variable and is inferred from its uses. This is the
// compilation-unit recovery boundary spec.md §7 Tier 3 names ("a
// compilation-unit boundary in the compiler"): a panic anywhere during
// generation or solving is recovered here and reported as a TierBug
// diagnostic instead of crashing the compiling process.
func (e *Engine) InferProgram(prog *coreast.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = diag.New(diag.KindInternal, diag.BUG002,
				fmt.Sprintf("infer: internal error inferring program: %v", r)).WithCategory("CompilerPanic")
		}
	}()

	env := (*Env)(nil)
	for _, decl := range prog.Decls {
		t, genErr := e.generate(env, decl.Value)
		if genErr != nil {
			return genErr
		}
		env = env.Extend(decl.Name, t)
		decl.SetType(t)
	}
	if solveErr := e.solve(); solveErr != nil {
		return solveErr
	}
	for _, decl := range prog.Decls {
		applyToTree(e.sub, decl)
	}
	return nil
}

// generate walks expr, producing its type and emitting equality constraints
// into e.constraints (spec.md §4.2 step 1).
func (e *Engine) generate(env *Env, expr coreast.Expr) (Type, error) {
	if err := e.monitor.CheckRecursion("infer.generate"); err != nil {
		return nil, err
	}
	defer e.monitor.ExitRecursion("infer.generate")

	var result Type
	var err error

	switch n := expr.(type) {
	case *coreast.IntLit:
		result = &TPrim{Kind: I32}

	case *coreast.FloatLit:
		result = &TPrim{Kind: F32}

	case *coreast.BoolLit:
		result = &TPrim{Kind: Bool}

	case *coreast.StringLit:
		result = &TPrim{Kind: String}

	case *coreast.Var:
		t, ok := env.Lookup(n.Name)
		if !ok {
			return nil, diag.New(diag.KindType, diag.TYP003,
				fmt.Sprintf("unbound symbol %q", n.Name)).WithSpan(n.Span())
		}
		result = t

	case *coreast.Lambda:
		paramTypes := make([]Type, len(n.Params))
		inner := env
		for i, p := range n.Params {
			var pt Type
			if i < len(n.ParamTypes) && n.ParamTypes[i] != nil {
				pt = toInferType(n.ParamTypes[i])
			} else {
				pt, err = e.fresh()
				if err != nil {
					return nil, err
				}
			}
			paramTypes[i] = pt
			inner = inner.Extend(p, pt)
		}
		bodyType, err := e.generate(inner, n.Body)
		if err != nil {
			return nil, err
		}
		result = &TFunc{Params: paramTypes, Ret: bodyType}

	case *coreast.Call:
		fnType, err := e.generate(env, n.Fn)
		if err != nil {
			return nil, err
		}
		argTypes := make([]Type, len(n.Args))
		for i, a := range n.Args {
			at, err := e.generate(env, a)
			if err != nil {
				return nil, err
			}
			argTypes[i] = at
		}
		retVar, err := e.fresh()
		if err != nil {
			return nil, err
		}
		if err := e.emit(fnType, &TFunc{Params: argTypes, Ret: retVar}, n.Span()); err != nil {
			return nil, err
		}
		result = retVar

	case *coreast.Let:
		valType, err := e.generate(env, n.Value)
		if err != nil {
			return nil, err
		}
		inner := env.Extend(n.Name, valType)
		if n.Body == nil {
			result = valType
		} else {
			result, err = e.generate(inner, n.Body)
			if err != nil {
				return nil, err
			}
		}

	case *coreast.If:
		condType, err := e.generate(env, n.Cond)
		if err != nil {
			return nil, err
		}
		if err := e.emit(condType, &TPrim{Kind: Bool}, n.Cond.Span()); err != nil {
			return nil, err
		}
		thenType, err := e.generate(env, n.Then)
		if err != nil {
			return nil, err
		}
		elseType, err := e.generate(env, n.Else)
		if err != nil {
			return nil, err
		}
		if err := e.emit(thenType, elseType, n.Span()); err != nil {
			return nil, err
		}
		result = thenType

	case *coreast.BinOp:
		leftType, err := e.generate(env, n.Left)
		if err != nil {
			return nil, err
		}
		rightType, err := e.generate(env, n.Right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "==", "!=", "<", "<=", ">", ">=":
			if err := e.emit(leftType, rightType, n.Span()); err != nil {
				return nil, err
			}
			result = &TPrim{Kind: Bool}
		case "&&", "||":
			if err := e.emit(leftType, &TPrim{Kind: Bool}, n.Left.Span()); err != nil {
				return nil, err
			}
			if err := e.emit(rightType, &TPrim{Kind: Bool}, n.Right.Span()); err != nil {
				return nil, err
			}
			result = &TPrim{Kind: Bool}
		default: // arithmetic
			if err := e.emit(leftType, rightType, n.Span()); err != nil {
				return nil, err
			}
			result = leftType
		}

	case *coreast.Index:
		arrType, err := e.generate(env, n.Array)
		if err != nil {
			return nil, err
		}
		idxType, err := e.generate(env, n.Idx)
		if err != nil {
			return nil, err
		}
		if err := e.emit(idxType, &TPrim{Kind: I32}, n.Idx.Span()); err != nil {
			return nil, err
		}
		elem, err := e.fresh()
		if err != nil {
			return nil, err
		}
		if err := e.emit(arrType, &TArray{Elem: elem}, n.Array.Span()); err != nil {
			return nil, err
		}
		result = elem

	case *coreast.Field:
		// Field access types are resolved against the nominal type's
		// declared fields by the elaborator/lowerer (C11); inference only
		// needs a fresh result variable plus a constraint that the object
		// has *some* record type, left as Unknown here since record types
		// are out of this core's minimal Type union.
		if _, err := e.generate(env, n.Object); err != nil {
			return nil, err
		}
		result, err = e.fresh()
		if err != nil {
			return nil, err
		}

	case *coreast.Return:
		result, err = e.generate(env, n.Value)
		if err != nil {
			return nil, err
		}

	default:
		return nil, diag.New(diag.KindType, diag.TYP001, fmt.Sprintf("infer: unhandled node %T", expr)).WithSpan(expr.Span())
	}

	expr.SetType(result)
	return result, nil
}

// solve drains e.constraints, unifying and composing into e.sub, applying
// the running substitution to all remaining constraints after each step
// (spec.md §4.2 step 2). Every outer iteration polls the resource monitor
// for phase/total timeouts (step 3).
func (e *Engine) solve() error {
	phaseStart := time.Now()
	for len(e.constraints) > 0 {
		if err := e.monitor.CheckPhaseTimeout(phaseStart); err != nil {
			return err
		}
		if err := e.monitor.CheckIteration("infer.solve"); err != nil {
			return err
		}
		c := e.constraints[0]
		e.constraints = e.constraints[1:]

		if e.badVars[varID(c.T1)] || e.badVars[varID(c.T2)] {
			continue // cascaded error suppression (spec.md §4.2)
		}

		s, err := e.unifier.Unify(c.T1, c.T2, e.sub, c.Span)
		if err != nil {
			if v, ok := c.T1.(*TVar); ok {
				e.badVars[v.ID] = true
			}
			if v, ok := c.T2.(*TVar); ok {
				e.badVars[v.ID] = true
			}
			e.errs = append(e.errs, err)
			continue
		}
		e.sub = s
		for i := range e.constraints {
			e.constraints[i].T1 = Apply(e.sub, e.constraints[i].T1)
			e.constraints[i].T2 = Apply(e.sub, e.constraints[i].T2)
		}
	}
	if len(e.errs) > 0 {
		return e.errs[0]
	}
	return nil
}

func varID(t Type) uint32 {
	if v, ok := t.(*TVar); ok {
		return v.ID
	}
	return 0
}

// applyToTree walks the typed AST applying the final substitution to every
// node's Type field (spec.md §4.2 step 4).
func applyToTree(sub Substitution, expr coreast.Expr) {
	if expr == nil {
		return
	}
	if t, ok := expr.Type().(Type); ok {
		expr.SetType(Apply(sub, t))
	}
	switch n := expr.(type) {
	case *coreast.Lambda:
		applyToTree(sub, n.Body)
	case *coreast.Call:
		applyToTree(sub, n.Fn)
		for _, a := range n.Args {
			applyToTree(sub, a)
		}
	case *coreast.Let:
		applyToTree(sub, n.Value)
		applyToTree(sub, n.Body)
	case *coreast.If:
		applyToTree(sub, n.Cond)
		applyToTree(sub, n.Then)
		applyToTree(sub, n.Else)
	case *coreast.BinOp:
		applyToTree(sub, n.Left)
		applyToTree(sub, n.Right)
	case *coreast.Index:
		applyToTree(sub, n.Array)
		applyToTree(sub, n.Idx)
	case *coreast.Field:
		applyToTree(sub, n.Object)
	case *coreast.Return:
		applyToTree(sub, n.Value)
	}
}
