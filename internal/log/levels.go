// Package log is the zap-backed structured logger shared by the assetpipe
// packages. Output is filtered by a -v=N verbosity in the style of klog.
package log

import "go.uber.org/zap/zapcore"

// LevelTrace sits one step below zap's Debug level.
const LevelTrace = zapcore.DebugLevel - 1

// Verbosity values accepted by -v. Each one adds a level to the output.
const (
	VerbosityError = iota // failures only
	VerbosityWarn         // skipped sidecars, orphans that could not be removed
	VerbosityInfo         // batch start and finish, config loaded
	VerbosityDebug        // per-asset results, checkpoints
	VerbosityTrace        // fingerprints, provider dispatch
)

// verbosityLevels is indexed by verbosity.
var verbosityLevels = [...]zapcore.Level{
	VerbosityError: zapcore.ErrorLevel,
	VerbosityWarn:  zapcore.WarnLevel,
	VerbosityInfo:  zapcore.InfoLevel,
	VerbosityDebug: zapcore.DebugLevel,
	VerbosityTrace: LevelTrace,
}

// VerbosityToLevel returns the minimum enabled level for -v=v. Values past
// either end clamp to error or trace.
func VerbosityToLevel(v int) zapcore.Level {
	v = max(VerbosityError, min(v, VerbosityTrace))
	return verbosityLevels[v]
}

// LevelToVerbosity returns the smallest verbosity at which l is printed.
func LevelToVerbosity(l zapcore.Level) int {
	for v, floor := range verbosityLevels {
		if l >= floor {
			return v
		}
	}
	return VerbosityTrace
}

// LevelName is CapitalString with a name for LevelTrace.
func LevelName(l zapcore.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.CapitalString()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(LevelName(l))
}
