package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/internal/metrics"
	"github.com/albertocavalcante/assetpipe/pkg/batch"
	"github.com/albertocavalcante/assetpipe/pkg/config"
	"github.com/albertocavalcante/assetpipe/pkg/importdb"
	"github.com/albertocavalcante/assetpipe/pkg/importer"
	"github.com/albertocavalcante/assetpipe/pkg/importer/builtin"
	"github.com/albertocavalcante/assetpipe/pkg/resource"
)

// project wires the configured pipeline pieces together.
type project struct {
	cfg      *config.Config
	scanner  *importdb.Scanner
	db       *importdb.Database
	outputs  *batch.DirOutputs
	pipeline *batch.Pipeline
}

// pipelineOptions carries per-command hooks into the pipeline.
type pipelineOptions struct {
	metrics    *metrics.Import
	onProgress func(batch.Progress)
}

// openProject loads the database and builds a pipeline for cfg.
func openProject(cfg *config.Config, opts pipelineOptions) (*project, error) {
	source := cfg.SourceDir()
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source directory %s does not exist (run 'assetpipe init' or set paths.source)", source)
	}

	scanner, err := importdb.NewScanner(importdb.ScanConfig{
		Root:       source,
		Types:      importer.NewTypeTable(nil, cfg.Import.Types),
		IgnoreDirs: cfg.Import.IgnoreDirs,
		Ignore:     cfg.Import.Ignore,
		Mode:       importdb.FingerprintMode(cfg.Import.Fingerprint),
	})
	if err != nil {
		return nil, err
	}

	store, err := importdb.OpenStore(cfg.Root, cfg.DatabasePath(), cfg.Database.Format)
	if err != nil {
		return nil, err
	}
	db := importdb.New(store)
	if !db.Load() {
		log.Debug("starting with an empty import database", "path", store.Path())
	}

	outputs := batch.NewDirOutputs(cfg.OutputDir())
	pipeline := batch.NewPipeline(batch.PipelineConfig{
		Scanner:            scanner,
		Database:           db,
		Registry:           builtin.NewRegistry(),
		Outputs:            outputs,
		CheckpointInterval: cfg.Import.CheckpointInterval.Duration,
		Metrics:            opts.metrics,
		OnProgress:         opts.onProgress,
	})

	return &project{
		cfg:      cfg,
		scanner:  scanner,
		db:       db,
		outputs:  outputs,
		pipeline: pipeline,
	}, nil
}

// newLocator mounts the output tree, the configured packs and the fallback
// directory.
func newLocator(ctx context.Context, cfg *config.Config, m *metrics.Resolve) (*resource.Locator, error) {
	loc := resource.NewLocator(resource.WithMetrics(m))

	if info, err := os.Stat(cfg.OutputDir()); err == nil && info.IsDir() {
		if err := loc.AddFileSystem(cfg.OutputDir(), cfg.Resources.OutputPriority); err != nil {
			return nil, err
		}
	}

	for i, path := range cfg.PackPaths() {
		pp, err := resource.OpenPackProvider(path, cfg.Resources.PackPriority+int32(i))
		if err != nil {
			_ = loc.Close()
			return nil, fmt.Errorf("failed to mount pack %s: %w", path, err)
		}
		var p resource.Provider = pp
		if cfg.CacheEnabled() {
			cached, err := resource.NewCachedProvider(ctx, pp, resource.CacheOptions{
				Life:      cfg.Resources.Cache.Life.Duration,
				MaxSizeMB: cfg.Resources.Cache.SizeMB,
				Metrics:   m,
			})
			if err != nil {
				_ = pp.Close()
				_ = loc.Close()
				return nil, err
			}
			p = cached
		}
		loc.Add(p)
	}

	if cfg.Resources.FallbackDir != "" {
		loc.Add(resource.NewFallbackProvider(cfg.Abs(cfg.Resources.FallbackDir), cfg.Resources.FallbackPriority))
	}
	return loc, nil
}
