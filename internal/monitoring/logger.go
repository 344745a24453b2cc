package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var diagnostics atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDiagnostics enables or disables Diagf output.
func SetDiagnostics(enabled bool) {
	diagnostics.Store(enabled)
}

// DiagnosticsEnabled reports whether Diagf output is enabled.
func DiagnosticsEnabled() bool {
	return diagnostics.Load()
}

// Diagf logs through Logf only when diagnostics are enabled. Analysis layers
// use it for degenerate-input fallbacks that are not errors.
func Diagf(format string, v ...interface{}) {
	if !diagnostics.Load() {
		return
	}
	Logf(format, v...)
}
