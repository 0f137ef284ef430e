package ir

// BlockID identifies a Block within its owning Listing.
type BlockID uint32

// Block is a lexical scope node in the tree rooted at the Listing's
// synthetic root block (spec.md §3). A block is "active" between its
// beginBlock and endBlock instructions; jmpBlock destroys blocks back to a
// named ancestor without changing the lexical nesting recorded here.
type Block struct {
	ID     BlockID
	Parent *Block

	vars []*Var

	// declOrder mirrors vars but is kept distinct so destruction order
	// (reverse declaration order, spec.md §4.5) stays correct even if a
	// future pass wants to reorder vars for locality.
	declOrder []*Var
}

// Vars returns this block's own variables in declaration order.
func (b *Block) Vars() []*Var { return b.vars }

// addVar appends v to this block's declaration order.
func (b *Block) addVar(v *Var) {
	b.vars = append(b.vars, v)
	b.declOrder = append(b.declOrder, v)
}

// DestructionOrder returns this block's variables in the order Layout must
// destroy them: strict reverse of declaration (spec.md §4.5, §8).
func (b *Block) DestructionOrder() []*Var {
	out := make([]*Var, len(b.declOrder))
	for i, v := range b.declOrder {
		out[len(out)-1-i] = v
	}
	return out
}

// IsAncestor reports whether anc is b itself or an ancestor of b by walking
// Parent links, used to enforce spec.md §3's "every variable reference names
// a variable whose declaring block is an ancestor of the currently active
// block" invariant.
func (b *Block) IsAncestor(anc *Block) bool {
	for cur := b; cur != nil; cur = cur.Parent {
		if cur == anc {
			return true
		}
	}
	return false
}

// Depth returns the number of Parent hops to the root block (0 for the
// root itself); used by §8's "l.parent^n(b) = r for some finite n" check.
func (b *Block) Depth() int {
	n := 0
	for cur := b; cur.Parent != nil; cur = cur.Parent {
		n++
	}
	return n
}
