package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetpipe/internal/metrics"
	"github.com/albertocavalcante/assetpipe/pkg/batch"
)

var importFlags struct {
	force      bool
	dryRun     bool
	noProgress bool
	prune      bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import stale assets",
	Long: `Scans the source tree, selects the assets whose inputs, importer or
outputs changed since their last successful import, and imports them in
order.

A failed asset keeps its previous record and outputs; the rest of the batch
continues. Ctrl+C cancels between assets and keeps everything already
imported.

Use --force to import every asset regardless of staleness.
Use --dry-run to list what would be imported.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importFlags.force, "force", false,
		"Import all assets, even fresh ones")
	importCmd.Flags().BoolVar(&importFlags.dryRun, "dry-run", false,
		"List stale assets without importing")
	importCmd.Flags().BoolVar(&importFlags.noProgress, "no-progress", false,
		"Disable the progress bar")
	importCmd.Flags().BoolVar(&importFlags.prune, "prune", true,
		"Drop records and outputs of assets removed from the source tree")

	rootCmd.AddCommand(importCmd)
}

// progressScale is the resolution of the progress bar.
const progressScale = 1000

// progressBar adapts batch progress to a pterm progress bar.
type progressBar struct {
	bar *pterm.ProgressbarPrinter
}

func newProgressBar(w io.Writer, total int) *progressBar {
	bar, err := pterm.DefaultProgressbar.
		WithTotal(progressScale).
		WithTitle(fmt.Sprintf("Importing %d assets", total)).
		WithWriter(w).
		Start()
	if err != nil {
		return nil
	}
	return &progressBar{bar: bar}
}

func (p *progressBar) update(pr batch.Progress) {
	if p == nil {
		return
	}
	target := int(pr.Fraction * progressScale)
	if delta := target - p.bar.Current; delta > 0 {
		p.bar.Add(delta)
	}
	if pr.Label != "" {
		p.bar.UpdateTitle(pr.Label)
	}
}

func (p *progressBar) stop() {
	if p == nil {
		return
	}
	_, _ = p.bar.Stop()
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var bar *progressBar
	proj, err := openProject(cfg, pipelineOptions{
		metrics:    metrics.NewImport(prometheus.NewRegistry()),
		onProgress: func(p batch.Progress) { bar.update(p) },
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if importFlags.prune && !importFlags.dryRun {
		removed, err := proj.pipeline.PruneRemoved(ctx)
		if err != nil {
			return fmt.Errorf("failed to prune removed assets: %w", err)
		}
		for _, p := range removed {
			fmt.Fprintf(out, "- %s\n", p)
		}
	}

	stale, err := proj.pipeline.Stale(ctx, importFlags.force)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		fmt.Fprintln(out, "All assets are up to date")
		return nil
	}

	if importFlags.dryRun {
		fmt.Fprintf(out, "Would import %d assets:\n", len(stale))
		for _, a := range stale {
			fmt.Fprintf(out, "  %s (%s)\n", a.ID, a.Type)
		}
		return nil
	}

	if !importFlags.noProgress {
		bar = newProgressBar(cmd.ErrOrStderr(), len(stale))
	}
	outcome, err := proj.pipeline.NewRunner().Run(ctx, stale)
	bar.stop()
	if err != nil {
		return err
	}

	printOutcome(out, outcome)
	if outcome.State == batch.Cancelled {
		return fmt.Errorf("import cancelled with %d assets not reached", len(outcome.NotReached))
	}
	if len(outcome.Failed) > 0 {
		return fmt.Errorf("%d assets failed to import", len(outcome.Failed))
	}
	return nil
}

func printOutcome(w io.Writer, o *batch.Outcome) {
	for _, id := range o.Imported {
		fmt.Fprintf(w, "✓ %s\n", id)
	}
	for _, f := range o.Failed {
		fmt.Fprintf(w, "✗ %s: %v\n", f.AssetID, f.Err)
	}
	for _, p := range o.Removed {
		fmt.Fprintf(w, "- %s\n", p)
	}
	fmt.Fprintf(w, "\n%s: %d imported, %d failed, %d not reached, %d outputs removed in %s\n",
		o.State, len(o.Imported), len(o.Failed), len(o.NotReached), len(o.Removed), o.Duration.Round(time.Millisecond))
}
