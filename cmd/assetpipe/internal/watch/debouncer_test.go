package watch

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

const window = 100 * time.Millisecond

// newTestDebouncer returns a debouncer on a mock clock and a channel of
// its flushes.
func newTestDebouncer(t *testing.T) (*Debouncer, *clock.Mock, chan []string) {
	t.Helper()
	mock := clock.NewMock()
	flushed := make(chan []string, 10)
	d := NewDebouncerWithClock(mock, window, func(paths []string) {
		flushed <- paths
	})
	return d, mock, flushed
}

func waitFlush(t *testing.T, flushed chan []string) []string {
	t.Helper()
	select {
	case paths := <-flushed:
		return paths
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return nil
	}
}

func expectNoFlush(t *testing.T, flushed chan []string) {
	t.Helper()
	select {
	case paths := <-flushed:
		t.Fatalf("unexpected flush: %v", paths)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDebouncer_SingleEvent(t *testing.T) {
	d, mock, flushed := newTestDebouncer(t)
	defer d.Stop()

	d.Add("textures/wall.png")
	mock.Add(window)

	if got := waitFlush(t, flushed); !slices.Equal(got, []string{"textures/wall.png"}) {
		t.Errorf("expected [textures/wall.png], got %v", got)
	}
}

func TestDebouncer_MultipleEventsSorted(t *testing.T) {
	d, mock, flushed := newTestDebouncer(t)
	defer d.Stop()

	d.Add("src/c.png")
	mock.Add(20 * time.Millisecond)
	d.Add("src/a.png")
	mock.Add(20 * time.Millisecond)
	d.Add("src/b.png")
	mock.Add(window)

	want := []string{"src/a.png", "src/b.png", "src/c.png"}
	if got := waitFlush(t, flushed); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDebouncer_Deduplication(t *testing.T) {
	d, mock, flushed := newTestDebouncer(t)
	defer d.Stop()

	d.Add("a.png")
	d.Add("a.png")
	d.Add("a.png")
	if d.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", d.PendingCount())
	}
	mock.Add(window)

	if got := waitFlush(t, flushed); !slices.Equal(got, []string{"a.png"}) {
		t.Errorf("expected single [a.png], got %v", got)
	}
}

func TestDebouncer_ResetOnNewEvent(t *testing.T) {
	d, mock, flushed := newTestDebouncer(t)
	defer d.Stop()

	d.Add("a.png")
	mock.Add(60 * time.Millisecond)
	d.Add("b.png")
	mock.Add(60 * time.Millisecond)
	// 120ms since the first event but only 60ms since the last.
	expectNoFlush(t, flushed)

	mock.Add(window)
	if got := waitFlush(t, flushed); len(got) != 2 {
		t.Errorf("expected one flush of 2 paths, got %v", got)
	}
	expectNoFlush(t, flushed)
}

func TestDebouncer_FlushNow(t *testing.T) {
	d, _, flushed := newTestDebouncer(t)
	defer d.Stop()

	d.Add("a.png")
	d.FlushNow()
	if got := waitFlush(t, flushed); !slices.Equal(got, []string{"a.png"}) {
		t.Errorf("FlushNow delivered %v", got)
	}
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount() after flush = %d", d.PendingCount())
	}

	// Nothing pending means nothing delivered
	d.FlushNow()
	expectNoFlush(t, flushed)
}

func TestDebouncer_StopFlushesAndDisables(t *testing.T) {
	d, mock, flushed := newTestDebouncer(t)

	d.Add("a.png")
	d.Stop()
	if got := waitFlush(t, flushed); !slices.Equal(got, []string{"a.png"}) {
		t.Errorf("Stop delivered %v", got)
	}

	d.Add("b.png")
	mock.Add(window)
	expectNoFlush(t, flushed)
	d.Stop()
}

func TestDebouncer_MaxPending(t *testing.T) {
	d, _, flushed := newTestDebouncer(t)
	defer d.Stop()

	for i := range MaxPending {
		d.Add(fmt.Sprintf("f%04d.png", i))
	}

	got := waitFlush(t, flushed)
	if len(got) != MaxPending {
		t.Errorf("forced flush delivered %d paths, want %d", len(got), MaxPending)
	}
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after forced flush", d.PendingCount())
	}
}
