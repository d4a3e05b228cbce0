// Package batch drives stale assets through their transformation routines,
// keeping the import database and the output tree consistent.
package batch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/internal/metrics"
	"github.com/albertocavalcante/assetpipe/pkg/importdb"
	"github.com/albertocavalcante/assetpipe/pkg/importer"
	"github.com/albertocavalcante/assetpipe/pkg/util"
)

const (
	// DefaultCheckpointInterval is the minimum time between intermediate persists.
	DefaultCheckpointInterval = time.Second

	// MaxFanOutDepth bounds how deep additional assets may nest.
	MaxFanOutDepth = 8
)

var (
	// ErrTransformationFailed wraps errors from routines and their outputs.
	ErrTransformationFailed = errors.New("transformation failed")

	// ErrOutputConflict is returned when a routine produces an output that
	// another asset's record already lists. The first recorded owner keeps it.
	ErrOutputConflict = errors.New("output already owned by another asset")

	// ErrAlreadyStarted is returned when Run is called on a used Runner.
	ErrAlreadyStarted = errors.New("runner already started")

	// errCancelled signals an asset interrupted by cancellation.
	errCancelled = errors.New("batch cancelled")
)

// Config configures a Runner.
type Config struct {
	Registry *importer.Registry
	Database *importdb.Database
	Sources  SourceReader
	Outputs  OutputStore

	// CheckpointInterval defaults to DefaultCheckpointInterval.
	CheckpointInterval time.Duration
	Clock              clock.Clock
	Metrics            *metrics.Import
	Logger             *zap.SugaredLogger

	// OnProgress is called from the worker after every progress update.
	OnProgress func(Progress)
}

// Runner imports one batch of assets. A Runner is single-use.
type Runner struct {
	cfg       Config
	state     atomic.Int32
	cancelled atomic.Bool
	progress  progressValue

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("batch")
	}
	return &Runner{cfg: cfg}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Progress returns the latest published progress.
func (r *Runner) Progress() Progress {
	return r.progress.load()
}

// Cancel requests cooperative cancellation. It is safe to call from any
// goroutine, before or during Run.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) isCancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.cancelled.Store(true)
	}
	return r.cancelled.Load()
}

func (r *Runner) publish(f float64, label string) {
	p := r.progress.publish(f, label)
	if r.cfg.OnProgress != nil {
		r.cfg.OnProgress(p)
	}
}

// Run imports assets in order. Per-asset failures are recorded in the
// outcome and do not stop the batch. The returned error is non-nil only if
// the run could not start or the final persist failed.
func (r *Runner) Run(ctx context.Context, assets []importdb.Asset) (*Outcome, error) {
	if !r.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return nil, ErrAlreadyStarted
	}

	db := r.cfg.Database
	release, err := db.Acquire()
	if err != nil {
		r.state.Store(int32(Idle))
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	if r.cancelled.Load() {
		cancel()
	}

	outcome := &Outcome{RunID: uuid.New().String()}
	logger := r.cfg.Logger.With("run", outcome.RunID)
	start := r.cfg.Clock.Now()
	lastPersist := start
	n := float64(len(assets))

	logger.Infow("import started", "assets", len(assets))

	for i, a := range assets {
		if r.isCancelled(ctx) {
			outcome.NotReached = idsOf(assets[i:])
			break
		}

		from, to := float64(i)/n, float64(i+1)/n
		r.publish(from, a.ID)
		progress := func(f float64, label string) bool {
			if label == "" {
				label = a.ID
			}
			r.publish(lerp(from, to, f), label)
			return !r.isCancelled(ctx)
		}

		began := r.cfg.Clock.Now()
		removed, err := r.importAsset(ctx, a, progress, logger)
		elapsed := r.cfg.Clock.Since(began)

		if errors.Is(err, errCancelled) {
			r.cfg.Metrics.ObserveAsset(metrics.ResultCancelled, elapsed)
			logger.Debugw("asset interrupted by cancellation", "asset", a.ID)
			outcome.NotReached = idsOf(assets[i:])
			break
		}
		if err != nil {
			r.cfg.Metrics.ObserveAsset(metrics.ResultFailed, elapsed)
			logger.Errorw("asset import failed", "asset", a.ID, "type", a.Type, "error", err)
			outcome.Failed = append(outcome.Failed, Failure{AssetID: a.ID, Err: err})
		} else {
			r.cfg.Metrics.ObserveAsset(metrics.ResultImported, elapsed)
			logger.Debugw("asset imported", "asset", a.ID, "duration", elapsed)
			outcome.Imported = append(outcome.Imported, a.ID)
			outcome.Removed = append(outcome.Removed, removed...)
		}

		r.publish(to, a.ID)

		if now := r.cfg.Clock.Now(); now.Sub(lastPersist) > r.cfg.CheckpointInterval {
			if err := r.checkpoint(); err != nil {
				logger.Warnw("checkpoint failed", "error", err)
			} else {
				logger.Debugw("checkpoint written", "after", a.ID)
			}
			lastPersist = now
		}
	}

	persistErr := r.checkpoint()
	if persistErr != nil {
		logger.Errorw("failed to persist import database", "error", persistErr)
		persistErr = fmt.Errorf("failed to persist import database: %w", persistErr)
	}

	outcome.Duration = r.cfg.Clock.Since(start)
	if r.cancelled.Load() {
		outcome.State = Cancelled
	} else {
		outcome.State = Completed
		r.publish(1, "done")
	}
	r.state.Store(int32(outcome.State))
	r.cfg.Metrics.RunFinished(outcome.State.String())

	logger.Infow("import finished",
		"state", outcome.State,
		"imported", len(outcome.Imported),
		"failed", len(outcome.Failed),
		"not_reached", len(outcome.NotReached),
		"removed", len(outcome.Removed),
		"duration", outcome.Duration,
	)
	return outcome, persistErr
}

func (r *Runner) checkpoint() error {
	if err := r.cfg.Database.Persist(); err != nil {
		return err
	}
	r.cfg.Metrics.Checkpoint()
	return nil
}

// importAsset transforms one asset, deletes its orphaned outputs and commits
// its record. It returns the deleted orphans.
func (r *Runner) importAsset(ctx context.Context, a importdb.Asset, progress importer.ProgressFunc, logger *zap.SugaredLogger) ([]string, error) {
	if a.Invalid != "" {
		return nil, fmt.Errorf("%w: %s", ErrTransformationFailed, a.Invalid)
	}
	inputs := make([]importer.File, 0, len(a.Inputs))
	for _, fp := range a.Inputs {
		f, err := r.cfg.Sources.ReadInput(fp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransformationFailed, err)
		}
		inputs = append(inputs, f)
	}

	outputs, err := r.transform(ctx, importer.Asset{
		ID:       a.ID,
		Type:     a.Type,
		Inputs:   inputs,
		Metadata: importer.Metadata(a.Metadata).Clone(),
	}, progress, 0)
	if err != nil {
		return nil, err
	}
	if r.isCancelled(ctx) {
		return nil, errCancelled
	}

	db := r.cfg.Database
	if owners := db.Owners(a.ID, outputs); len(owners) > 0 {
		claimed := slices.Sorted(maps.Keys(owners))
		return nil, fmt.Errorf("%w: %s is an output of %s", ErrOutputConflict, claimed[0], owners[claimed[0]])
	}
	orphans := db.Orphans(a.ID, outputs)
	var removed, kept []string
	for _, o := range orphans {
		if err := r.cfg.Outputs.Remove(o); err != nil {
			logger.Warnw("failed to remove orphaned output", "asset", a.ID, "output", o, "error", err)
			kept = append(kept, o)
			continue
		}
		removed = append(removed, o)
	}
	r.cfg.Metrics.AddOrphans(len(removed))

	// Orphans that could not be deleted stay recorded so a later reimport
	// retries them.
	db.RecordSuccess(a, append(outputs, kept...))
	return removed, nil
}

// transform runs the routine for asset and, recursively, for the additional
// assets it returns. It returns the union of all outputs.
func (r *Runner) transform(ctx context.Context, asset importer.Asset, progress importer.ProgressFunc, depth int) ([]string, error) {
	if depth > MaxFanOutDepth {
		return nil, fmt.Errorf("%w: %s: fan-out deeper than %d", ErrTransformationFailed, asset.ID, MaxFanOutDepth)
	}

	imp, err := r.cfg.Registry.Get(asset.Type)
	if err != nil {
		return nil, err
	}

	res, err := imp.Import(ctx, &importer.Request{
		Asset:       asset,
		Destination: r.cfg.Outputs.Root(),
		Progress:    progress,
	})
	if err != nil {
		if errors.Is(err, importer.ErrCancelled) || r.isCancelled(ctx) {
			return nil, errCancelled
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrTransformationFailed, asset.ID, err)
	}
	if res == nil {
		return nil, nil
	}

	outputs := make([]string, 0, len(res.Outputs))
	for _, o := range res.Outputs {
		clean, err := importer.CleanOutput(o)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrTransformationFailed, asset.ID, err)
		}
		outputs = append(outputs, clean)
	}

	for _, child := range res.Additional {
		if r.isCancelled(ctx) {
			return nil, errCancelled
		}
		childOutputs, err := r.transform(ctx, child, progress, depth+1)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, childOutputs...)
	}
	return util.SortedSet(outputs), nil
}

func idsOf(assets []importdb.Asset) []string {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	return ids
}
