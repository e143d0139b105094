package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkessler/corelang/internal/coreast"
	"github.com/dkessler/corelang/internal/diag"
)

func countInstr[T Instr](instrs []Instr) int {
	n := 0
	for _, i := range instrs {
		if _, ok := i.(T); ok {
			n++
		}
	}
	return n
}

func TestLowerIndex_EmitsBoundsCheckByDefault(t *testing.T) {
	l := New(nil)
	idx := coreast.NewIndex(coreast.NewVar("a", diag.Span{}), coreast.NewVar("i", diag.Span{}), diag.Span{})

	instrs, _ := l.Lower(idx)
	assert.Equal(t, 1, countInstr[BoundsCheck](instrs))
	assert.Equal(t, 1, countInstr[ArrayLen](instrs))
	assert.Equal(t, 1, countInstr[Load](instrs))
}

func TestLowerIndex_ElidesWhenLiteralWithinKnownLength(t *testing.T) {
	l := New(nil)
	arr := coreast.NewVar("a", diag.Span{})
	instrs, arrVal := l.Lower(arr)
	require.Len(t, instrs, 1)
	l.RegisterKnownLength(arrVal, 10)

	idx := coreast.NewIndex(arr, coreast.NewIntLit(3, diag.Span{}), diag.Span{})
	indexInstrs, _ := l.lowerIndexForTest(idx, arrVal)
	assert.Equal(t, 0, countInstr[BoundsCheck](indexInstrs))
}

func TestLowerIndex_DoesNotElideWhenLiteralOutOfKnownLength(t *testing.T) {
	l := New(nil)
	arr := coreast.NewVar("a", diag.Span{})
	_, arrVal := l.Lower(arr)
	l.RegisterKnownLength(arrVal, 2)

	idx := coreast.NewIndex(arr, coreast.NewIntLit(5, diag.Span{}), diag.Span{})
	indexInstrs, _ := l.lowerIndexForTest(idx, arrVal)
	assert.Equal(t, 1, countInstr[BoundsCheck](indexInstrs))
}

func TestLowerIndex_SecondAccessToSamePairIsElidedByDominatingCheck(t *testing.T) {
	l := New(nil)
	arr := coreast.NewVar("a", diag.Span{})
	i := coreast.NewVar("i", diag.Span{})

	idx1 := coreast.NewIndex(arr, i, diag.Span{})
	first, _ := l.Lower(idx1)
	require.Equal(t, 1, countInstr[BoundsCheck](first))

	idx2 := coreast.NewIndex(arr, i, diag.Span{})
	second, _ := l.Lower(idx2)
	assert.Equal(t, 0, countInstr[BoundsCheck](second), "repeated access to the same array/index pair should be elided by the dominating check")
}

func TestLowerField_EmitsValidateFieldAccessWithoutSchema(t *testing.T) {
	l := New(nil)
	obj := coreast.NewVar("p", diag.Span{})
	field := coreast.NewField(obj, "x", diag.Span{})

	instrs, _ := l.Lower(field)
	assert.Equal(t, 1, countInstr[ValidateFieldAccess](instrs))
	assert.Equal(t, 1, countInstr[FieldLoad](instrs))
}

type stubSchema struct{ has bool }

func (s stubSchema) HasField(objectType coreast.Type, field string) bool { return s.has }

type stubType string

func (s stubType) String() string { return string(s) }

func TestLowerField_ElidesWhenSchemaProvesField(t *testing.T) {
	l := New(stubSchema{has: true})
	obj := coreast.NewVar("p", diag.Span{})
	obj.SetType(stubType("Point"))
	field := coreast.NewField(obj, "x", diag.Span{})

	instrs, _ := l.Lower(field)
	assert.Equal(t, 0, countInstr[ValidateFieldAccess](instrs))
}

func TestLowerIndexStore_EmitsStoreAfterBoundsCheck(t *testing.T) {
	l := New(nil)
	arr := coreast.NewVar("a", diag.Span{})
	i := coreast.NewVar("i", diag.Span{})
	target := coreast.NewIndex(arr, i, diag.Span{})
	value := coreast.NewIntLit(7, diag.Span{})

	instrs := l.LowerIndexStore(target, value)
	assert.Equal(t, 1, countInstr[BoundsCheck](instrs))
	assert.Equal(t, 1, countInstr[Store](instrs))

	boundsIdx, storeIdx := -1, -1
	for i, instr := range instrs {
		switch instr.(type) {
		case BoundsCheck:
			boundsIdx = i
		case Store:
			storeIdx = i
		}
	}
	assert.Less(t, boundsIdx, storeIdx)
}

func TestCheckBounds_TrapsOnOutOfRange(t *testing.T) {
	assert.NoError(t, CheckBounds(0, 5, "loc"))
	assert.NoError(t, CheckBounds(4, 5, "loc"))
	assert.Error(t, CheckBounds(5, 5, "loc"))
	assert.Error(t, CheckBounds(-1, 5, "loc"))
}

func TestCheckFieldAccess_TrapsWhenAbsent(t *testing.T) {
	assert.NoError(t, CheckFieldAccess("Point", "x", true))
	assert.Error(t, CheckFieldAccess("Point", "z", false))
}

// lowerIndexForTest lowers idx against an already-lowered array value, so
// a test controls exactly which Value the bounds check and
// RegisterKnownLength refer to.
func (l *Lowerer) lowerIndexForTest(idx *coreast.Index, arrVal Value) ([]Instr, Value) {
	idxInstrs, idxVal := l.Lower(idx.Idx)
	instrs := append([]Instr{}, idxInstrs...)
	lenVal := l.freshValue("len")
	instrs = append(instrs, ArrayLen{Dst: lenVal, Array: arrVal})
	if !l.canElideBounds(arrVal, idxVal, idx) {
		instrs = append(instrs, BoundsCheck{Index: idxVal, Length: lenVal, ErrorMsg: idx.Span().String()})
		l.markChecked(arrVal, idxVal)
	}
	addrVal := l.freshValue("addr")
	instrs = append(instrs, Addr{Dst: addrVal, Array: arrVal, Index: idxVal})
	dst := l.freshValue("v")
	instrs = append(instrs, Load{Dst: dst, Addr: addrVal})
	return instrs, dst
}
