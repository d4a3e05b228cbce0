package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger handles watch mode output formatting.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool
	now     func() time.Time

	statsMu sync.Mutex
	stats   Stats
}

// Stats tracks statistics for the watch session.
type Stats struct {
	Batches   int
	Imported  int
	Failed    int
	Removed   int
	Errors    int
	StartTime time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		now:     time.Now,
		stats:   Stats{StartTime: time.Now()},
	}
}

// Ready logs the initial ready message.
func (l *Logger) Ready(assets int, path string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "ready",
			"assets": assets,
			"path":   path,
		})
		return
	}

	l.printf("assetpipe: watching %d assets in %s\n", assets, path)
	l.println("assetpipe: ready")
	l.println()
}

// FileChanged logs a file change event.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   l.now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Importing logs that a batch is starting.
func (l *Logger) Importing(assets int) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "importing",
			"assets": assets,
			"time":   l.now().Format(time.RFC3339),
		})
		return
	}

	if assets == 1 {
		l.printf("[%s] importing 1 asset...\n", l.timestamp())
	} else {
		l.printf("[%s] importing %d assets...\n", l.timestamp(), assets)
	}
}

// Imported logs the result of a batch.
func (l *Logger) Imported(imported []string, failed map[string]error, removed []string) {
	l.statsMu.Lock()
	l.stats.Batches++
	l.stats.Imported += len(imported)
	l.stats.Failed += len(failed)
	l.stats.Removed += len(removed)
	l.statsMu.Unlock()

	if l.jsonOut {
		errs := make(map[string]string, len(failed))
		for id, err := range failed {
			errs[id] = err.Error()
		}
		l.writeJSON(map[string]any{
			"event":    "imported",
			"imported": imported,
			"failed":   errs,
			"removed":  removed,
			"time":     l.now().Format(time.RFC3339),
		})
		return
	}

	checkmark := l.colorize("✓", ChangeAdded)
	for _, id := range imported {
		l.printf("[%s] %s %s\n", l.timestamp(), checkmark, id)
	}
	xmark := l.colorize("✗", ChangeDeleted)
	for id, err := range failed {
		l.printf("[%s] %s %s: %v\n", l.timestamp(), xmark, id, err)
	}
	if l.verbose {
		for _, out := range removed {
			l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(ChangeDeleted), ChangeDeleted), out)
		}
	}
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.Errors++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  l.now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"batches":  stats.Batches,
			"imported": stats.Imported,
			"failed":   stats.Failed,
			"errors":   stats.Errors,
			"duration": l.now().Sub(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("assetpipe: shutting down (%d imported, %d failed, %d errors)\n",
		stats.Imported, stats.Failed, stats.Errors)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// timestamp returns the current time formatted as HH:MM:SS.
func (l *Logger) timestamp() string {
	return l.now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

// writeJSON writes a JSON object to the output.
func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf writes a formatted string to the writer, ignoring errors.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

// println writes a line to the writer, ignoring errors.
func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
