package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeginEndBlockRoundTrip(t *testing.T) {
	l := NewListing()
	b := l.NewBlock(l.Root())

	_, err := l.BeginBlock(b)
	require.NoError(t, err)
	require.Equal(t, b, l.CurrentBlock())

	_, err = l.EndBlock(b)
	require.NoError(t, err)
	require.Equal(t, l.Root(), l.CurrentBlock())
}

func TestBeginBlockWrongParentErrors(t *testing.T) {
	l := NewListing()
	b1 := l.NewBlock(l.Root())
	b2 := l.NewBlock(b1) // child of b1, not root

	_, err := l.BeginBlock(b2) // root is current, not b1
	require.Error(t, err)
	var want *BlockBeginError
	require.ErrorAs(t, err, &want)
}

func TestEndBlockMismatchErrors(t *testing.T) {
	l := NewListing()
	b1 := l.NewBlock(l.Root())
	b2 := l.NewBlock(l.Root())

	_, err := l.BeginBlock(b1)
	require.NoError(t, err)

	_, err = l.EndBlock(b2)
	require.Error(t, err)
}

func TestBlockCannotReenterAfterEnd(t *testing.T) {
	l := NewListing()
	b := l.NewBlock(l.Root())
	_, err := l.BeginBlock(b)
	require.NoError(t, err)
	_, err = l.EndBlock(b)
	require.NoError(t, err)

	_, err = l.BeginBlock(b)
	require.Error(t, err, "b's Parent is root and root is current, but the block graph disallows a second lifetime")
}

func TestNestedBlockAncestryToRoot(t *testing.T) {
	l := NewListing()
	b1 := l.NewBlock(l.Root())
	b2 := l.NewBlock(b1)
	b3 := l.NewBlock(b2)

	require.True(t, b3.IsAncestor(l.Root()))
	require.Equal(t, 3, b3.Depth())
	require.True(t, b2.IsAncestor(b1))
	require.False(t, b1.IsAncestor(b2))
}

func TestDestructionOrderIsReverseDeclaration(t *testing.T) {
	l := NewListing()
	b := l.NewBlock(l.Root())
	v1 := l.NewVar(b, 8, FreePolicy{When: ReleaseOnBlockExit})
	v2 := l.NewVar(b, 8, FreePolicy{When: ReleaseOnBlockExit})
	v3 := l.NewVar(b, 8, FreePolicy{When: ReleaseOnBlockExit})

	order := b.DestructionOrder()
	require.Equal(t, []*Var{v3, v2, v1}, order)
}

func TestActivateRejectsDoubleActivation(t *testing.T) {
	l := NewListing()
	v := l.NewVar(l.Root(), 8, FreePolicy{FreeInactive: true})
	_, err := l.Activate(v)
	require.NoError(t, err)
	require.True(t, v.Activated())

	_, err = l.Activate(v)
	require.Error(t, err)
}

func TestActivateRejectsNonFreeInactive(t *testing.T) {
	l := NewListing()
	v := l.NewVar(l.Root(), 8, FreePolicy{})
	_, err := l.Activate(v)
	require.Error(t, err)
}

func TestLabelPlacementIncludesVirtualEndLabel(t *testing.T) {
	l := NewListing()
	l.Mov(RegOperand(NewReg(0, 0, Size64)), ConstOperand(Size64, 1))
	end := l.NewLabel()
	l.PlaceLabel(end)

	pos, ok := l.LabelPosition(end)
	require.True(t, ok)
	require.Equal(t, l.Len(), pos)
	require.Contains(t, l.LabelsBefore(l.Len()), end)
}

func TestPrecedingParamsStopsAtNonParam(t *testing.T) {
	l := NewListing()
	i32 := PrimitiveType(PrimInteger, Uniform(4, 4))
	l.Mov(RegOperand(NewReg(0, 0, Size32)), ConstOperand(Size32, 7)) // unrelated
	l.FnParam(i32, ConstOperand(Size32, 1), false)
	l.FnParam(i32, ConstOperand(Size32, 2), false)
	callPos := l.FnCall(LabelOperand(l.NewLabel()), NoOperand(), PrimitiveType(PrimNone, Size{}), false, false)

	params := l.PrecedingParams(callPos)
	require.Len(t, params, 2)
	require.Equal(t, int64(1), params[0].Src.Imm)
	require.Equal(t, int64(2), params[1].Src.Imm)
}
