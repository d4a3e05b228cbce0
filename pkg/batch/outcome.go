package batch

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

// State is the lifecycle state of a Runner.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Cancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Failure is one asset that could not be imported.
type Failure struct {
	AssetID string
	Err     error
}

// Outcome summarizes a batch run.
type Outcome struct {
	RunID string
	State State
	// Imported lists assets whose records were committed, in order.
	Imported []string
	Failed   []Failure
	// NotReached lists assets left untouched by a cancellation, including
	// the one in flight when it was observed.
	NotReached []string
	// Removed lists orphaned outputs deleted from the output store.
	Removed  []string
	Duration time.Duration
}

// Err aggregates the per-asset failures, or returns nil.
func (o *Outcome) Err() error {
	if o == nil {
		return nil
	}
	var err error
	for _, f := range o.Failed {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.AssetID, f.Err))
	}
	return err
}

// Progress is a snapshot of batch progress.
type Progress struct {
	Fraction float64
	Label    string
}

// progressValue publishes progress that never decreases.
type progressValue struct {
	p atomic.Pointer[Progress]
}

func (v *progressValue) load() Progress {
	if p := v.p.Load(); p != nil {
		return *p
	}
	return Progress{}
}

// publish stores f clamped to [previous, 1].
func (v *progressValue) publish(f float64, label string) Progress {
	for {
		old := v.p.Load()
		next := &Progress{Fraction: min(max(f, 0), 1), Label: label}
		if old != nil && next.Fraction < old.Fraction {
			next.Fraction = old.Fraction
		}
		if v.p.CompareAndSwap(old, next) {
			return *next
		}
	}
}

// lerp maps a per-asset fraction onto the asset's slice of the batch.
func lerp(from, to, f float64) float64 {
	return from + (to-from)*min(max(f, 0), 1)
}
