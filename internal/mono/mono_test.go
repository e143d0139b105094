package mono

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkessler/corelang/internal/infer"
	"github.com/dkessler/corelang/internal/resource"
)

func newTestMonitor(t *testing.T) *resource.Monitor {
	t.Helper()
	m, err := resource.NewMonitor(resource.Testing())
	require.NoError(t, err)
	return m
}

func identityCloner(def GenericDef, args []infer.Type) (interface{}, []CallSite, error) {
	return def.Name + "<specialized>", nil, nil
}

func TestRun_SpecializesEachDistinctArgumentTuple(t *testing.T) {
	e := NewEngine(newTestMonitor(t), identityCloner)
	e.RegisterGeneric(GenericDef{Name: "identity"})

	roots := []CallSite{
		{Callee: "identity", TypeArgs: []infer.Type{&infer.TPrim{Kind: infer.I32}}},
		{Callee: "identity", TypeArgs: []infer.Type{&infer.TPrim{Kind: infer.String}}},
	}
	specs, err := e.Run(roots)
	require.NoError(t, err)
	assert.Len(t, specs, 2)
	assert.NotEqual(t, roots[0].RewriteTo, roots[1].RewriteTo)
}

func TestRun_ReusesSpecializationForSameArgumentTuple(t *testing.T) {
	e := NewEngine(newTestMonitor(t), identityCloner)
	e.RegisterGeneric(GenericDef{Name: "identity"})

	roots := []CallSite{
		{Callee: "identity", TypeArgs: []infer.Type{&infer.TPrim{Kind: infer.I32}}},
		{Callee: "identity", TypeArgs: []infer.Type{&infer.TPrim{Kind: infer.I32}}},
	}
	specs, err := e.Run(roots)
	require.NoError(t, err)
	assert.Len(t, specs, 1, "identical type-argument tuples must share one specialization")
	assert.Equal(t, *roots[0].RewriteTo, *roots[1].RewriteTo)
}

func TestRun_NestedCallSitesAreEnqueued(t *testing.T) {
	calls := 0
	cloner := func(def GenericDef, args []infer.Type) (interface{}, []CallSite, error) {
		calls++
		if def.Name == "outer" {
			return "outer-body", []CallSite{
				{Callee: "inner", TypeArgs: []infer.Type{&infer.TPrim{Kind: infer.Bool}}},
			}, nil
		}
		return "inner-body", nil, nil
	}
	e := NewEngine(newTestMonitor(t), cloner)
	e.RegisterGeneric(GenericDef{Name: "outer"})
	e.RegisterGeneric(GenericDef{Name: "inner"})

	specs, err := e.Run([]CallSite{{Callee: "outer", TypeArgs: []infer.Type{&infer.TPrim{Kind: infer.I32}}}})
	require.NoError(t, err)
	assert.Len(t, specs, 2)
	assert.Equal(t, 2, calls)
}

func TestRun_UnknownGenericIsError(t *testing.T) {
	e := NewEngine(newTestMonitor(t), identityCloner)

	_, err := e.Run([]CallSite{{Callee: "missing", TypeArgs: nil}})
	require.Error(t, err)
}

func TestRun_ClonerErrorAbortsWithSecurityViolation(t *testing.T) {
	e := NewEngine(newTestMonitor(t), func(def GenericDef, args []infer.Type) (interface{}, []CallSite, error) {
		return nil, nil, assertErr
	})
	e.RegisterGeneric(GenericDef{Name: "bad"})

	_, err := e.Run([]CallSite{{Callee: "bad", TypeArgs: nil}})
	require.Error(t, err)
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
