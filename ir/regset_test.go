package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegSetAddHasRemove(t *testing.T) {
	var rs RegSet
	r := NewReg(0, 4, Size32)
	require.False(t, rs.Has(r))

	rs = rs.Add(r, StateLive32)
	require.True(t, rs.Has(r))
	require.Equal(t, StateLive32, rs.State(r))

	rs = rs.Remove(r)
	require.False(t, rs.Has(r))
}

func TestRegSetNeverHoldsStackOrFrame(t *testing.T) {
	var rs RegSet
	rs = rs.Add(PtrStack(Size64), StateLive64)
	rs = rs.Add(PtrFrame(Size64), StateLive64)
	require.False(t, rs.Has(PtrStack(Size64)))
	require.False(t, rs.Has(PtrFrame(Size64)))
}

func TestRegSetUnionIntersectDiff(t *testing.T) {
	a := NewReg(0, 1, Size32)
	b := NewReg(0, 2, Size32)
	c := NewReg(0, 3, Size32)

	var s1, s2 RegSet
	s1 = s1.Add(a, StateLive32).Add(b, StateLive32)
	s2 = s2.Add(b, StateLive64).Add(c, StateLive32)

	union := s1.Union(s2)
	require.True(t, union.Has(a))
	require.True(t, union.Has(b))
	require.True(t, union.Has(c))
	require.Equal(t, StateLive64, union.State(b), "union prefers the second set's state on overlap")

	inter := s1.Intersect(s2)
	require.False(t, inter.Has(a))
	require.True(t, inter.Has(b))
	require.False(t, inter.Has(c))

	diff := s1.Diff(s2)
	require.True(t, diff.Has(a))
	require.False(t, diff.Has(b))
	require.False(t, diff.Has(c))
}

func TestRegSetToSliceFiltersByBank(t *testing.T) {
	var rs RegSet
	rs = rs.Add(NewReg(0, 1, Size32), StateLive32)
	rs = rs.Add(NewReg(1, 1, Size32), StateLive32)
	rs = rs.Add(NewReg(0, 2, Size32), StateLive64)

	intRegs := rs.ToSlice(0, Size64)
	require.Len(t, intRegs, 2)
	for _, r := range intRegs {
		require.Equal(t, RegBank(0), r.Bank())
		require.Equal(t, Size64, r.Size())
	}
}
