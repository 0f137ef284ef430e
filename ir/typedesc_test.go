package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleTypeSortsMembersByOffset(t *testing.T) {
	i32 := PrimitiveType(PrimInteger, Uniform(4, 4))
	td := SimpleType(Uniform(12, 4), []SimpleMember{
		{Prim: i32, Offset: 8},
		{Prim: i32, Offset: 0},
		{Prim: i32, Offset: 4},
	})
	require.Len(t, td.Members, 3)
	for i, m := range td.Members {
		require.Equal(t, Offset(i*4), m.Offset)
	}
}

func TestIsFloatOnly(t *testing.T) {
	f64 := PrimitiveType(PrimReal, Uniform(8, 8))
	i64 := PrimitiveType(PrimInteger, Uniform(8, 8))

	allFloat := SimpleType(Uniform(16, 8), []SimpleMember{{Prim: f64, Offset: 0}, {Prim: f64, Offset: 8}})
	require.True(t, allFloat.IsFloatOnly())

	mixed := SimpleType(Uniform(16, 8), []SimpleMember{{Prim: f64, Offset: 0}, {Prim: i64, Offset: 8}})
	require.False(t, mixed.IsFloatOnly())

	require.True(t, f64.IsFloatOnly())
	require.False(t, i64.IsFloatOnly())
}

func TestHFAElementSize(t *testing.T) {
	f32 := PrimitiveType(PrimReal, Uniform(4, 4))
	hfa := SimpleType(Uniform(16, 4), []SimpleMember{
		{Prim: f32, Offset: 0}, {Prim: f32, Offset: 4},
		{Prim: f32, Offset: 8}, {Prim: f32, Offset: 12},
	})
	require.Equal(t, uint32(4), hfa.HFAElementSize())
}
