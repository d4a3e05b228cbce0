package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetpipe/cmd/assetpipe/internal/watch"
	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/internal/metrics"
)

var watchFlags struct {
	debounce    int
	metricsAddr string
	verbose     bool
	json        bool
	noColor     bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import assets automatically when sources change",
	Long: `Imports whatever is stale, then watches the source tree and imports
again whenever tracked files or their sidecars change.

Example output:

  $ assetpipe watch

  assetpipe: watching 214 assets in /path/to/assets
  assetpipe: ready

  [14:32:15] importing 1 asset...
  [14:32:15] ✓ textures/wall.png

Use --metrics-addr to serve Prometheus metrics while watching.
Press Ctrl+C to stop watching.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 500,
		"Debounce window in milliseconds")
	watchCmd.Flags().StringVar(&watchFlags.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	proj, err := openProject(cfg, pipelineOptions{metrics: metrics.NewImport(reg)})
	if err != nil {
		return err
	}

	if watchFlags.metricsAddr != "" {
		stop, err := serveMetrics(watchFlags.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	w, err := watch.New(watch.Config{
		Pipeline: proj.pipeline,
		Debounce: time.Duration(watchFlags.debounce) * time.Millisecond,
		Logger: watch.NewLogger(watch.LoggerConfig{
			Writer:  cmd.OutOrStdout(),
			Verbose: watchFlags.verbose,
			NoColor: watchFlags.noColor,
			JSON:    watchFlags.json,
		}),
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}

// serveMetrics starts an HTTP server for reg and returns its shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	// Surface bind errors before the watch starts.
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("failed to serve metrics on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
	}
	log.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}
