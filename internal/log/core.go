package log

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CoreOptions configures the log core.
type CoreOptions struct {
	Level  zapcore.LevelEnabler
	Format string // "text" or "json"
	Output io.Writer
	File   *FileOptions
}

// FileOptions enables an additional rotating JSON log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewCore creates the appropriate core based on options.
func NewCore(opts CoreOptions) zapcore.Core {
	if opts.Output == nil {
		opts.Output = os.Stderr // Always stderr, never stdout
	}
	if opts.Level == nil {
		opts.Level = zapcore.WarnLevel
	}

	var enc zapcore.Encoder
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(encoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(encoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(opts.Output), opts.Level)

	if opts.File == nil || opts.File.Path == "" {
		return core
	}
	return zapcore.NewTee(core, zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		fileWriter(opts.File),
		opts.Level,
	))
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

func fileWriter(f *FileOptions) zapcore.WriteSyncer {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAgeDays,
		Compress:   f.Compress,
	})
}
