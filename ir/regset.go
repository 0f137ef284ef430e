package ir

import (
	"math/bits"

	"github.com/samber/lo"
)

// LiveState is the per-slot state tracked by a RegSet: whether the slot is
// unused at a given program point, or live at 32-bit, pointer, or 64-bit
// width. Grounded on the single-bit membership test in the teacher's
// backend/regalloc.RegSet (`type RegSet uint64`), generalized from a 1-bit
// membership flag to the spec's 2-bit width-tagged state.
type LiveState uint8

const (
	StateUnused LiveState = iota
	StateLive32
	StateLivePtr
	StateLive64
)

const regSetWords = 4 // 4 * 64 = 256 possible (bank, slot) combinations

// RegSet is a compact set of registers, keyed by Reg.AliasKey() (bank+slot,
// independent of size), that records each member's live width. ptrStack and
// ptrFrame are never recorded, matching spec.md §3: "ptrStack/ptrFrame are
// never held" by a RegSet. Grounded on backend/regalloc/bitset.go's
// word-array bitset, extended to two bitplanes to carry the 2-bit state.
type RegSet struct {
	lo, hi [regSetWords]uint64
}

func isStackOrFrame(r Reg) bool {
	return r.IsPseudo() && (r.Slot() == slotPtrStack || r.Slot() == slotPtrFrame)
}

func wordBit(key uint8) (word int, bit uint64) {
	return int(key / 64), 1 << uint(key%64)
}

// Add records r as live at the given state. No-op for ptrStack/ptrFrame.
func (rs RegSet) Add(r Reg, state LiveState) RegSet {
	if isStackOrFrame(r) || state == StateUnused {
		return rs
	}
	w, b := wordBit(r.AliasKey())
	if state&1 != 0 {
		rs.lo[w] |= b
	} else {
		rs.lo[w] &^= b
	}
	if state&2 != 0 {
		rs.hi[w] |= b
	} else {
		rs.hi[w] &^= b
	}
	return rs
}

// Remove clears any recorded state for r.
func (rs RegSet) Remove(r Reg) RegSet {
	w, b := wordBit(r.AliasKey())
	rs.lo[w] &^= b
	rs.hi[w] &^= b
	return rs
}

// Has reports whether r is live at any width.
func (rs RegSet) Has(r Reg) bool {
	return rs.State(r) != StateUnused
}

// State returns the recorded live width of r.
func (rs RegSet) State(r Reg) LiveState {
	w, b := wordBit(r.AliasKey())
	var s LiveState
	if rs.lo[w]&b != 0 {
		s |= 1
	}
	if rs.hi[w]&b != 0 {
		s |= 2
	}
	return s
}

// Union returns the set of registers live in either rs or other; on overlap,
// other's state wins (callers pass the more-specific set second).
func (rs RegSet) Union(other RegSet) RegSet {
	var out RegSet
	for i := 0; i < regSetWords; i++ {
		out.lo[i] = (rs.lo[i] &^ other.presence(i)) | other.lo[i]
		out.hi[i] = (rs.hi[i] &^ other.presence(i)) | other.hi[i]
	}
	return out
}

// Diff returns the registers in rs that are not present in other at all.
func (rs RegSet) Diff(other RegSet) RegSet {
	var out RegSet
	for i := 0; i < regSetWords; i++ {
		mask := ^other.presence(i)
		out.lo[i] = rs.lo[i] & mask
		out.hi[i] = rs.hi[i] & mask
	}
	return out
}

// Intersect returns the registers present in both rs and other, keeping rs's
// recorded state.
func (rs RegSet) Intersect(other RegSet) RegSet {
	var out RegSet
	for i := 0; i < regSetWords; i++ {
		mask := other.presence(i)
		out.lo[i] = rs.lo[i] & mask
		out.hi[i] = rs.hi[i] & mask
	}
	return out
}

func (rs RegSet) presence(word int) uint64 { return rs.lo[word] | rs.hi[word] }

// Range calls f for every register recorded in rs, in slot/bank order.
func (rs RegSet) Range(bank RegBank, size SizeCode, f func(r Reg, state LiveState)) {
	for w := 0; w < regSetWords; w++ {
		p := rs.presence(w)
		for p != 0 {
			i := bits.TrailingZeros64(p)
			p &^= 1 << uint(i)
			key := uint8(w*64 + i)
			slot := key & 0xF
			b := RegBank(key >> 4)
			if b == bank {
				r := NewReg(bank, slot, size)
				f(r, rs.State(r))
			}
		}
	}
}

// ToSlice collects every register recorded in a single bank at the given
// read width, using lo.Map to convert the raw alias keys into Regs.
func (rs RegSet) ToSlice(bank RegBank, size SizeCode) []Reg {
	var keys []uint8
	for w := 0; w < regSetWords; w++ {
		p := rs.presence(w)
		for p != 0 {
			i := bits.TrailingZeros64(p)
			p &^= 1 << uint(i)
			keys = append(keys, uint8(w*64+i))
		}
	}
	filtered := lo.Filter(keys, func(key uint8, _ int) bool {
		return RegBank(key>>4) == bank
	})
	return lo.Map(filtered, func(key uint8, _ int) Reg {
		return NewReg(bank, key&0xF, size)
	})
}
