package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/albertocavalcante/assetpipe/pkg/batch"
	"github.com/albertocavalcante/assetpipe/pkg/importdb"
	"github.com/albertocavalcante/assetpipe/pkg/importer/builtin"
)

type testProject struct {
	src, out string
	pipeline *batch.Pipeline
}

func newTestProject(t *testing.T) *testProject {
	t.Helper()
	root := t.TempDir()
	p := &testProject{
		src: filepath.Join(root, "assets"),
		out: filepath.Join(root, "imported"),
	}
	if err := os.MkdirAll(p.src, 0o755); err != nil {
		t.Fatal(err)
	}

	scanner, err := importdb.NewScanner(importdb.ScanConfig{
		Root:   p.src,
		Ignore: []string{"**/*.tmp.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	store, err := importdb.OpenStore(root, "", "json")
	if err != nil {
		t.Fatal(err)
	}
	db := importdb.New(store)
	db.Load()

	p.pipeline = batch.NewPipeline(batch.PipelineConfig{
		Scanner:  scanner,
		Database: db,
		Registry: builtin.NewRegistry(),
		Outputs:  batch.NewDirOutputs(p.out),
	})
	return p
}

func (p *testProject) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(p.src, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (p *testProject) output(rel string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(p.out, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func newTestWatcher(t *testing.T, p *testProject) (*Watcher, *Logger) {
	t.Helper()
	logger, _ := newTestLogger(true, false)
	w, err := New(Config{Pipeline: p.pipeline, Debounce: 20 * time.Millisecond, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, logger
}

func TestIsWatchLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"not exist", &os.PathError{Op: "watch", Path: "/foo", Err: os.ErrNotExist}, false},
		{"permission", os.ErrPermission, false},
		{"no space", &os.PathError{Op: "inotify_add_watch", Path: "/foo", Err: syscall.ENOSPC}, true},
		{"too many files", errors.New("too many open files"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWatchLimitError(tt.err); got != tt.expected {
				t.Errorf("isWatchLimitError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestNew_RequiresPipeline(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without a pipeline should fail")
	}
}

func TestRelevant(t *testing.T) {
	p := newTestProject(t)
	w, _ := newTestWatcher(t, p)

	tests := []struct {
		rel  string
		want bool
	}{
		{"textures/wall.png", true},
		{"notes/readme.md", true},
		{"textures/wall.png.meta.yaml", true},
		{"scratch/draft.tmp.txt", false},
		{".hidden/a.png", false},
		{"node_modules/pkg/a.png", false},
		{"model.blend", false},
	}
	for _, tt := range tests {
		if got := w.relevant(tt.rel); got != tt.want {
			t.Errorf("relevant(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func TestSync_ImportsAndPrunes(t *testing.T) {
	p := newTestProject(t)
	p.write(t, "notes/a.txt", "alpha")
	p.write(t, "notes/b.txt", "beta")
	w, logger := newTestWatcher(t, p)
	w.ctx = context.Background()

	w.sync(nil)
	if got, ok := p.output("notes/a.txt"); !ok || got != "alpha" {
		t.Fatalf("notes/a.txt output = %q, %v", got, ok)
	}
	if s := logger.Stats(); s.Imported != 2 {
		t.Errorf("imported = %d, want 2", s.Imported)
	}

	// A second sync with nothing changed imports nothing
	w.sync(nil)
	if s := logger.Stats(); s.Batches != 1 {
		t.Errorf("batches = %d, want 1", s.Batches)
	}

	if err := os.Remove(filepath.Join(p.src, "notes", "b.txt")); err != nil {
		t.Fatal(err)
	}
	p.write(t, "notes/a.txt", "alpha2")
	w.sync([]string{"notes/a.txt", "notes/b.txt"})

	if got, _ := p.output("notes/a.txt"); got != "alpha2" {
		t.Errorf("notes/a.txt output = %q, want alpha2", got)
	}
	if _, ok := p.output("notes/b.txt"); ok {
		t.Error("output of a deleted asset should be removed")
	}
	if s := logger.Stats(); s.Removed != 1 {
		t.Errorf("removed = %d, want 1", s.Removed)
	}
}

func TestSync_SkipsAfterCancel(t *testing.T) {
	p := newTestProject(t)
	p.write(t, "a.txt", "alpha")
	w, _ := newTestWatcher(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.ctx = ctx

	w.sync(nil)
	if _, ok := p.output("a.txt"); ok {
		t.Error("sync should do nothing once the watch is cancelled")
	}
}

func TestRun_ImportsOnChange(t *testing.T) {
	p := newTestProject(t)
	p.write(t, "a.txt", "alpha")

	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, JSON: true})
	w, err := New(Config{Pipeline: p.pipeline, Debounce: 20 * time.Millisecond, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { _, ok := p.output("a.txt"); return ok })

	p.write(t, "sub/b.txt", "beta")
	waitFor(t, func() bool { got, ok := p.output("sub/b.txt"); return ok && got == "beta" })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
