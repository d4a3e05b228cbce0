package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/internal/metrics"
	"github.com/albertocavalcante/assetpipe/pkg/importdb"
	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// PipelineConfig wires the pieces of an import pipeline together.
type PipelineConfig struct {
	Scanner  *importdb.Scanner
	Database *importdb.Database
	Registry *importer.Registry
	Sources  SourceReader
	Outputs  OutputStore

	CheckpointInterval time.Duration
	Clock              clock.Clock
	Metrics            *metrics.Import
	OnProgress         func(Progress)
}

// Pipeline provides high-level scan, status and import operations.
type Pipeline struct {
	cfg    PipelineConfig
	logger *zap.SugaredLogger
}

// NewPipeline creates a pipeline. The database should already be loaded.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Sources == nil {
		cfg.Sources = NewDirSources(cfg.Scanner.Root())
	}
	return &Pipeline{cfg: cfg, logger: log.Component("pipeline")}
}

// Database returns the pipeline's import database.
func (p *Pipeline) Database() *importdb.Database {
	return p.cfg.Database
}

// Scanner returns the pipeline's source scanner.
func (p *Pipeline) Scanner() *importdb.Scanner {
	return p.cfg.Scanner
}

// Outputs returns the pipeline's output store.
func (p *Pipeline) Outputs() OutputStore {
	return p.cfg.Outputs
}

// Scan enumerates candidate assets and stamps them with their routine version.
func (p *Pipeline) Scan(ctx context.Context) ([]importdb.Asset, error) {
	assets, err := p.cfg.Scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sources: %w", err)
	}
	for i := range assets {
		assets[i].Version = p.cfg.Registry.Version(assets[i].Type)
	}
	p.logger.Debugw("scan complete", "assets", len(assets))
	return assets, nil
}

// Status checks for stale assets without modifying state.
func (p *Pipeline) Status(ctx context.Context) (*importdb.StaleSet, error) {
	assets, err := p.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return p.cfg.Database.Status(assets, p.cfg.Outputs), nil
}

// Stale returns the assets that need importing, or all of them when force is set.
func (p *Pipeline) Stale(ctx context.Context, force bool) ([]importdb.Asset, error) {
	assets, err := p.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if force {
		return assets, nil
	}
	return p.cfg.Database.FilterStale(assets, p.cfg.Outputs), nil
}

// NewRunner creates a runner bound to this pipeline.
func (p *Pipeline) NewRunner() *Runner {
	return NewRunner(Config{
		Registry:           p.cfg.Registry,
		Database:           p.cfg.Database,
		Sources:            p.cfg.Sources,
		Outputs:            p.cfg.Outputs,
		CheckpointInterval: p.cfg.CheckpointInterval,
		Clock:              p.cfg.Clock,
		Metrics:            p.cfg.Metrics,
		OnProgress:         p.cfg.OnProgress,
	})
}

// PruneRemoved drops records of assets that no longer exist in the source
// tree and deletes their outputs. It returns the deleted outputs.
func (p *Pipeline) PruneRemoved(ctx context.Context) ([]string, error) {
	assets, err := p.Scan(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		present[a.ID] = struct{}{}
	}

	release, err := p.cfg.Database.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	removed := p.cfg.Database.Prune(func(id string) bool {
		_, ok := present[id]
		return ok
	})
	if len(removed) == 0 {
		return nil, nil
	}

	var deleted []string
	for _, rec := range removed {
		for _, out := range rec.Outputs {
			if owners := p.cfg.Database.Owners(rec.AssetID, []string{out}); owners != nil {
				p.logger.Debugw("keeping output owned by another asset", "asset", rec.AssetID, "output", out, "owner", owners[out])
				continue
			}
			if err := p.cfg.Outputs.Remove(out); err != nil {
				p.logger.Warnw("failed to remove output of deleted asset", "asset", rec.AssetID, "output", out, "error", err)
				continue
			}
			deleted = append(deleted, out)
		}
		p.logger.Infow("pruned deleted asset", "asset", rec.AssetID, "outputs", len(rec.Outputs))
	}
	if err := p.cfg.Database.Persist(); err != nil {
		return deleted, fmt.Errorf("failed to persist import database: %w", err)
	}
	return deleted, nil
}
