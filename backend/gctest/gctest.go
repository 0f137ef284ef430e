// Package gctest implements backend.GC over a plain Go heap, for tests that
// need to run backend.Compile without a real garbage collector. Allocated
// code never moves, so every CodeUpdater a relocation carries is simply
// never invoked — fine for a test double whose whole point is to let the
// emitted bytes be inspected, not executed.
package gctest

import "github.com/asmforge/ngen/backend"

// GC is the test-double collaborator. Zero value is ready to use.
type GC struct {
	sidecars map[*byte]*backend.GcCode
}

func New() *GC { return &GC{sidecars: map[*byte]*backend.GcCode{}} }

func (g *GC) AllocCode(_ interface{}, sizeBytes int, relocSlots int) []byte {
	if g.sidecars == nil {
		g.sidecars = map[*byte]*backend.GcCode{}
	}
	code := make([]byte, sizeBytes)
	if len(code) == 0 {
		// An empty slice still needs a stable identity to key the sidecar
		// map on; a one-byte backing array keeps &code[0] valid.
		code = make([]byte, 0, 1)
	}
	g.sidecars[codeKey(code)] = &backend.GcCode{Refs: make([]backend.GcCodeRef, 0, relocSlots)}
	return code
}

func (g *GC) CodeRefs(code []byte) *backend.GcCode {
	return g.sidecars[codeKey(code)]
}

func codeKey(code []byte) *byte {
	if cap(code) == 0 {
		return nil
	}
	return &code[:1][0]
}
