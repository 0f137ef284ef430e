package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegPackUnpack(t *testing.T) {
	tests := []struct {
		name       string
		bank       RegBank
		slot       uint8
		size       SizeCode
	}{
		{"int-lo", 0, 0, Size32},
		{"int-hi", 0, 15, Size64},
		{"float-mid", 1, 7, Size128},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReg(tc.bank, tc.slot, tc.size)
			require.Equal(t, tc.bank, r.Bank())
			require.Equal(t, tc.slot, r.Slot())
			require.Equal(t, tc.size, r.Size())
		})
	}
}

func TestRegAsSizePreservesAlias(t *testing.T) {
	r := NewReg(0, 3, Size32)
	r64 := r.AsSize(Size64)
	require.True(t, AliasOf(r, r64))
	require.Equal(t, Size64, r64.Size())
	require.NotEqual(t, r, r64)
}

func TestNoRegIsZero(t *testing.T) {
	require.True(t, NoReg().IsNoReg())
	require.Equal(t, Reg(0), NoReg())
	require.False(t, NewReg(1, 2, Size32).IsNoReg())
}

func TestPseudoRegsAreDistinctAndPseudo(t *testing.T) {
	regs := []Reg{PtrStack(Size64), PtrFrame(Size64), PtrA(Size64), PtrB(Size64), PtrC(Size64)}
	seen := map[uint8]bool{}
	for _, r := range regs {
		require.True(t, r.IsPseudo())
		require.False(t, seen[r.AliasKey()], "duplicate pseudo alias key")
		seen[r.AliasKey()] = true
	}
}

func TestAliasOfIgnoresSize(t *testing.T) {
	a := NewReg(2, 5, Size8)
	b := NewReg(2, 5, Size64)
	c := NewReg(2, 6, Size8)
	require.True(t, AliasOf(a, b))
	require.False(t, AliasOf(a, c))
}
