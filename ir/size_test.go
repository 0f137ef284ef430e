package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeOn(t *testing.T) {
	b, a := PointerSize.On(32)
	require.Equal(t, uint32(4), b)
	require.Equal(t, uint32(4), a)

	b, a = PointerSize.On(64)
	require.Equal(t, uint32(8), b)
	require.Equal(t, uint32(8), a)
}

func TestUniform(t *testing.T) {
	s := Uniform(8, 8)
	require.Equal(t, s.Bytes32, s.Bytes64)
	require.Equal(t, s.Align32, s.Align64)
}

func TestAlign(t *testing.T) {
	require.Equal(t, int64(0), Align(0, 16))
	require.Equal(t, int64(16), Align(1, 16))
	require.Equal(t, int64(16), Align(16, 16))
	require.Equal(t, int64(32), Align(17, 16))
	require.Equal(t, int64(5), Align(5, 1))
}
