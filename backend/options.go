package backend

import "github.com/asmforge/ngen/internal/diag"

// Options is ngen's ambient configuration surface, grounded on the
// teacher's api.RuntimeConfig (a single struct of toggles threaded through
// construction rather than functional options, which the rest of the pack
// also favors for backend-style configuration). Compile takes one; zero
// value is safe (silent logger).
type Options struct {
	// Logger receives Compile's WithError lines when the code pass fails or
	// overruns its allocation. RemoveInvalid's debug lines go to the logger
	// given to amd64.NewArena instead. A nil Logger is replaced by
	// diag.Default() (silent).
	Logger *diag.Logger

	// DisableStackCheck mirrors the teacher's Machine.DisableStackCheck.
	// No pass reads it, and Layout's prolog emits no stack-depth guard
	// either way.
	DisableStackCheck bool
}

func (o *Options) logger() *diag.Logger {
	if o.Logger == nil {
		return diag.Default()
	}
	return o.Logger
}
