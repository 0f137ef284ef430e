package backend

import "github.com/asmforge/ngen/ir"

// RunTransform is the Transform body shared by every target's Arena: run
// RemoveInvalid then Layout, in that order, per spec.md §2. Target
// packages call this from their own Transform method, passing themselves
// as the Arena (RemoveInvalid/Layout need Params/ScratchRegs/etc. from the
// concrete target, which is why this can't simply be embedded the way the
// teacher shares backend.Compiler's driver loop across isa/amd64 and
// isa/arm64 — ngen's stages need the concrete Arena, not just its base
// fields).
func RunTransform(l *ir.Listing, self Arena) (*FrameInfo, error) {
	if err := self.RemoveInvalid().Run(l, self); err != nil {
		return nil, err
	}
	return self.Layout().Run(l, self)
}
