package infer

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/dkessler/corelang/internal/coreast"
	"github.com/dkessler/corelang/internal/diag"
	"github.com/dkessler/corelang/internal/resource"
)

// typeComparer lets cmp.Diff compare Type trees structurally via Equals
// instead of by pointer identity.
var typeComparer = cmp.Comparer(func(a, b Type) bool { return Equals(a, b) })

func testMonitor(t *testing.T) *resource.Monitor {
	t.Helper()
	m, err := resource.NewMonitor(resource.Testing())
	require.NoError(t, err)
	return m
}

// TestInferProgram_IdentityOverInt reproduces spec.md §8 scenario 1:
// let f = fn (x) { x + 1 }; let y = f(41) infers f: (i32) -> i32, y: i32.
func TestInferProgram_IdentityOverInt(t *testing.T) {
	sp := diag.Span{}
	x := coreast.NewVar("x", sp)
	one := coreast.NewIntLit(1, sp)
	body := coreast.NewBinOp("+", x, one, sp)
	f := coreast.NewLambda([]string{"x"}, []coreast.Type{nil}, body, sp)

	fRef := coreast.NewVar("f", sp)
	arg := coreast.NewIntLit(41, sp)
	call := coreast.NewCall(fRef, []coreast.Expr{arg}, sp)

	prog := &coreast.Program{Decls: []*coreast.Let{
		coreast.NewLet("f", f, nil, sp),
		coreast.NewLet("y", call, nil, sp),
	}}

	eng := NewEngine(testMonitor(t))
	require.NoError(t, eng.InferProgram(prog))

	fType, ok := prog.Decls[0].Type().(*TFunc)
	require.True(t, ok, "f should infer to a function type, got %v", prog.Decls[0].Type())
	require.Len(t, fType.Params, 1)

	wantFunc := &TFunc{Params: []Type{&TPrim{Kind: I32}}, Ret: &TPrim{Kind: I32}}
	if diff := cmp.Diff(Type(wantFunc), Type(fType), typeComparer); diff != "" {
		t.Errorf("f type mismatch (-want +got):\n%s", diff)
	}

	yType := prog.Decls[1].Type()
	if diff := cmp.Diff(Type(&TPrim{Kind: I32}), yType, typeComparer); diff != "" {
		t.Errorf("y type mismatch (-want +got):\n%s", diff)
	}
}

func TestInferProgram_UnboundSymbol(t *testing.T) {
	sp := diag.Span{}
	prog := &coreast.Program{Decls: []*coreast.Let{
		coreast.NewLet("y", coreast.NewVar("undefined", sp), nil, sp),
	}}
	eng := NewEngine(testMonitor(t))
	err := eng.InferProgram(prog)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, diag.TYP003, derr.Code)
}

func TestInferProgram_TypeMismatchOnIfBranches(t *testing.T) {
	sp := diag.Span{}
	ifExpr := coreast.NewIf(coreast.NewBoolLit(true, sp), coreast.NewIntLit(1, sp), coreast.NewStringLit("x", sp), sp)
	prog := &coreast.Program{Decls: []*coreast.Let{coreast.NewLet("z", ifExpr, nil, sp)}}
	eng := NewEngine(testMonitor(t))
	err := eng.InferProgram(prog)
	require.Error(t, err)
}

// TestInferProgram_TypeVariableBudgetExhausted exercises spec.md §8's
// boundary law: an inference task producing max_type_variables+1 fresh
// variables fails with SecurityViolation/ResourceExhausted.
func TestInferProgram_TypeVariableBudgetExhausted(t *testing.T) {
	limits := resource.Production()
	limits.MaxTypeVariables = 2
	limits.TotalTimeout = time.Minute
	limits.PhaseTimeout = time.Minute
	m, err := resource.NewMonitor(limits)
	require.NoError(t, err)

	sp := diag.Span{}
	// Each untyped lambda parameter and each call allocates a fresh var;
	// one parameter plus two calls makes three, exceeding a budget of two.
	x := coreast.NewVar("x", sp)
	id := coreast.NewLambda([]string{"p"}, []coreast.Type{nil}, x, sp)
	_ = id
	call1 := coreast.NewCall(coreast.NewVar("id", sp), []coreast.Expr{coreast.NewIntLit(1, sp)}, sp)
	call2 := coreast.NewCall(coreast.NewVar("id", sp), []coreast.Expr{coreast.NewIntLit(2, sp)}, sp)
	prog := &coreast.Program{Decls: []*coreast.Let{
		coreast.NewLet("id", coreast.NewLambda([]string{"p"}, []coreast.Type{nil}, coreast.NewVar("p", sp), sp), nil, sp),
		coreast.NewLet("a", call1, nil, sp),
		coreast.NewLet("b", call2, nil, sp),
	}}

	eng := NewEngine(m)
	err = eng.InferProgram(prog)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, diag.KindResourceExhausted, derr.Kind)
}

// TestInferProgram_PhaseTimeoutDuringSolve exercises spec.md §4.2 step 3:
// every outer iteration of solve polls the resource monitor for the phase
// and total timeouts, failing closed with a SecurityViolation mentioning
// DoS once either is exceeded.
func TestInferProgram_PhaseTimeoutDuringSolve(t *testing.T) {
	limits := resource.Production()
	limits.PhaseTimeout = time.Nanosecond
	limits.TotalTimeout = time.Minute
	m, err := resource.NewMonitor(limits)
	require.NoError(t, err)

	sp := diag.Span{}
	// Several independent let bindings each emit a constraint, guaranteeing
	// solve enters its loop at least once after the nanosecond phase budget
	// has already elapsed.
	prog := &coreast.Program{Decls: []*coreast.Let{
		coreast.NewLet("a", coreast.NewBinOp("+", coreast.NewIntLit(1, sp), coreast.NewIntLit(2, sp), sp), nil, sp),
		coreast.NewLet("b", coreast.NewBinOp("+", coreast.NewIntLit(3, sp), coreast.NewIntLit(4, sp), sp), nil, sp),
	}}

	eng := NewEngine(m)
	err = eng.InferProgram(prog)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, diag.KindSecurityViolation, derr.Kind)
	require.Contains(t, derr.Message, "DoS")
}

// TestInferProgram_RecoversInternalPanic exercises spec.md §7 Tier 3: a
// panic during generation is recovered at the InferProgram compilation-unit
// boundary rather than crashing the process.
func TestInferProgram_RecoversInternalPanic(t *testing.T) {
	sp := diag.Span{}
	// A Call whose Fn is nil dereferences inside generate, panicking.
	call := coreast.NewCall(nil, []coreast.Expr{coreast.NewIntLit(1, sp)}, sp)
	prog := &coreast.Program{Decls: []*coreast.Let{coreast.NewLet("z", call, nil, sp)}}

	eng := NewEngine(testMonitor(t))
	err := eng.InferProgram(prog)
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, diag.KindInternal, derr.Kind)
	require.Equal(t, diag.BUG002, derr.Code)
}
