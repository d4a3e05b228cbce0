package log

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger    atomic.Pointer[zap.SugaredLogger]
	level     = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	verbosity atomic.Int32
	nop       = zap.NewNop().Sugar()
)

func init() {
	// Warnings only until Init is called
	logger.Store(zap.New(NewCore(CoreOptions{
		Level:  level,
		Format: "text",
		Output: os.Stderr,
	})).Sugar())
	verbosity.Store(VerbosityWarn)
}

// Options configures the global logger.
type Options struct {
	Verbosity int
	Format    string
	File      *FileOptions
}

// Init initializes the global logger (call once at startup).
func Init(v int, format string) {
	InitWithOptions(Options{Verbosity: v, Format: format})
}

// InitWithOptions initializes the global logger with an optional log file.
func InitWithOptions(opts Options) {
	verbosity.Store(int32(opts.Verbosity))
	level.SetLevel(VerbosityToLevel(opts.Verbosity))

	core := NewCore(CoreOptions{
		Level:  level,
		Format: opts.Format,
		Output: os.Stderr,
		File:   opts.File,
	})
	logger.Store(zap.New(core).Sugar())
}

// SetVerbosity changes verbosity at runtime.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.SetLevel(VerbosityToLevel(v))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current logger instance.
func Logger() *zap.SugaredLogger {
	return logger.Load()
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = logger.Load().Sync()
}

// Error logs at error level (v=0).
func Error(msg string, kv ...any) {
	logger.Load().Errorw(msg, kv...)
}

// Warn logs at warn level (v=1).
func Warn(msg string, kv ...any) {
	logger.Load().Warnw(msg, kv...)
}

// Info logs at info level (v=2).
func Info(msg string, kv ...any) {
	logger.Load().Infow(msg, kv...)
}

// Debug logs at debug level (v=3).
func Debug(msg string, kv ...any) {
	logger.Load().Debugw(msg, kv...)
}

// Trace logs at trace level (v=4).
func Trace(msg string, kv ...any) {
	TraceTo(logger.Load(), msg, kv...)
}

// TraceTo logs at trace level on l, for component loggers.
func TraceTo(l *zap.SugaredLogger, msg string, kv ...any) {
	if !l.Desugar().Core().Enabled(LevelTrace) {
		return
	}
	if ce := l.With(kv...).Desugar().Check(LevelTrace, msg); ce != nil {
		ce.Write()
	}
}

// V returns a logger that only logs if verbosity >= level.
// Usage: log.V(3).Infow("detailed", "key", value)
func V(v int) *zap.SugaredLogger {
	if int(verbosity.Load()) >= v {
		return logger.Load()
	}
	return nop
}

// With returns a logger with additional context.
func With(kv ...any) *zap.SugaredLogger {
	return logger.Load().With(kv...)
}

// Component returns a logger tagged with component name.
func Component(name string) *zap.SugaredLogger {
	return logger.Load().With("component", name)
}
