// Package diag is the one ambient logging seam in ngen. The teacher
// (tetratelabs/wazero) is itself a library and barely logs; the one pack
// example that logs from inside an assembler,
// _examples/other_examples/76e1325a_weiyilai-calico__felix-bpf-asm-asm.go.go,
// logs one debug line per emitted instruction with
// github.com/sirupsen/logrus, gated behind log.IsLevelEnabled(DebugLevel)
// so the common case (no debug logging) never pays for string formatting.
// ngen follows that exact shape.
package diag

import "github.com/sirupsen/logrus"

// Logger is the narrow surface ngen components use; amd64's RemoveInvalid
// takes one via amd64.NewArena and backend.Compile via backend.Options, so
// callers can swap it for a no-op or a test collector without importing
// logrus directly.
type Logger struct {
	l *logrus.Logger
}

// New wraps a *logrus.Logger. Passing nil yields a logger at
// logrus.PanicLevel (i.e. effectively silent), matching logrus's own
// "discard by raising the level" idiom rather than introducing a bespoke
// no-op implementation.
func New(l *logrus.Logger) *Logger {
	if l == nil {
		l = logrus.New()
		l.SetLevel(logrus.PanicLevel)
	}
	return &Logger{l: l}
}

// Default returns a silent Logger, used whenever backend.Options.Logger is
// left unset.
func Default() *Logger { return New(nil) }

// InstrDebugf logs one rewritten/emitted instruction at debug level. Cheap
// when debug logging is off: the format string is only built if the level
// check passes, exactly as in the calico bpf assembler this is grounded on.
func (d *Logger) InstrDebugf(format string, args ...interface{}) {
	if d.l.IsLevelEnabled(logrus.DebugLevel) {
		d.l.Debugf(format, args...)
	}
}

// Fail logs a WithError line for a non-fatal-to-the-process but
// fatal-to-this-compilation failure (e.g. backend.Compile's code pass
// failing or overrunning its allocation).
func (d *Logger) Fail(err error, msg string) {
	d.l.WithError(err).Error(msg)
}
