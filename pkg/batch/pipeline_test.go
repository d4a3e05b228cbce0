package batch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/albertocavalcante/assetpipe/pkg/importdb"
)

func newTestPipeline(t *testing.T, e *testEnv) *Pipeline {
	t.Helper()
	scanner, err := importdb.NewScanner(importdb.ScanConfig{Root: e.src})
	if err != nil {
		t.Fatal(err)
	}
	return NewPipeline(PipelineConfig{
		Scanner:  scanner,
		Database: e.db,
		Registry: e.reg,
		Outputs:  NewDirOutputs(e.out),
	})
}

func TestPipelineStatusAndImport(t *testing.T) {
	e := newTestEnv(t)
	e.write(t, "notes/a.txt", "copy", "a")
	e.write(t, "notes/b.txt", "copy", "b")
	p := newTestPipeline(t, e)
	ctx := context.Background()

	status, err := p.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !slices.Equal(status.New, []string{"notes/a.txt", "notes/b.txt"}) {
		t.Errorf("New = %v", status.New)
	}

	stale, err := p.Stale(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewRunner().Run(ctx, stale); err != nil {
		t.Fatal(err)
	}

	status, err = p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.IsEmpty() || len(status.Fresh) != 2 {
		t.Errorf("after import status = %+v", status)
	}

	// Deleting an output makes its asset stale again
	if err := os.Remove(filepath.Join(e.out, "notes", "a.txt")); err != nil {
		t.Fatal(err)
	}
	status, err = p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(status.OutputsMissing, []string{"notes/a.txt"}) {
		t.Errorf("OutputsMissing = %v", status.OutputsMissing)
	}

	all, err := p.Stale(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("forced Stale() = %d assets, want 2", len(all))
	}
}

func TestPipelinePruneRemoved(t *testing.T) {
	e := newTestEnv(t)
	e.write(t, "keep.txt", "copy", "k")
	e.write(t, "drop.txt", "copy", "d")
	p := newTestPipeline(t, e)
	ctx := context.Background()

	stale, err := p.Stale(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewRunner().Run(ctx, stale); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(e.src, "drop.txt")); err != nil {
		t.Fatal(err)
	}
	status, err := p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(status.Removed, []string{"drop.txt"}) {
		t.Errorf("Removed = %v", status.Removed)
	}

	deleted, err := p.PruneRemoved(ctx)
	if err != nil {
		t.Fatalf("PruneRemoved() error = %v", err)
	}
	if !slices.Equal(deleted, []string{"drop.txt"}) {
		t.Errorf("deleted = %v", deleted)
	}
	if e.exists("drop.txt") || !e.exists("keep.txt") {
		t.Error("only the removed asset's output should be deleted")
	}
	if _, ok := e.db.Get("drop.txt"); ok {
		t.Error("record should be pruned")
	}
}

func TestPipelinePruneRemovedKeepsSharedOutputs(t *testing.T) {
	e := newTestEnv(t)
	keep := e.write(t, "keep.txt", "copy", "k")
	gone := e.write(t, "gone.txt", "copy", "g")
	for _, rel := range []string{"keep.txt", "gone.txt", "shared.bin"} {
		if err := os.MkdirAll(e.out, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(e.out, rel), []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e.db.RecordSuccess(keep, []string{"keep.txt", "shared.bin"})
	e.db.RecordSuccess(gone, []string{"gone.txt", "shared.bin"})

	if err := os.Remove(filepath.Join(e.src, "gone.txt")); err != nil {
		t.Fatal(err)
	}
	deleted, err := newTestPipeline(t, e).PruneRemoved(context.Background())
	if err != nil {
		t.Fatalf("PruneRemoved() error = %v", err)
	}
	if !slices.Equal(deleted, []string{"gone.txt"}) {
		t.Errorf("deleted = %v, want [gone.txt]", deleted)
	}
	if !e.exists("shared.bin") {
		t.Error("output still listed by keep.txt was deleted")
	}
}
