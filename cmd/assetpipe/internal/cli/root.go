// Package cli implements the assetpipe command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/pkg/config"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity  int
	logFormat  string
	configPath string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "Incremental asset import pipeline",
	Long: `Assetpipe turns source assets into runtime artifacts and serves them
through a layered resource locator.

Only assets whose inputs, importer or outputs changed since the last run
are imported again. Outputs a reimport no longer produces are deleted.

Configuration is read from assetpipe.toml or .assetpipe/config.toml,
searched upward from the current directory.`,
	SilenceUsage: true,
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "assetpipe %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.configPath, "config", "",
		"Config file (default: search for assetpipe.toml upward)")

	// Hook to apply flags before command runs
	cobra.OnInitialize(initLogging)
}

// initLogging applies CLI flags to the logger.
// This runs after flags are parsed but before command execution.
func initLogging() {
	log.Init(globalFlags.verbosity, globalFlags.logFormat)
}

// loadConfig loads the layered configuration, or the file named by
// --config, and reinitializes logging with its log file settings.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if globalFlags.configPath != "" {
		c, err := config.LoadFile(globalFlags.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	} else {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Log.File != "" {
		log.InitWithOptions(log.Options{
			Verbosity: globalFlags.verbosity,
			Format:    globalFlags.logFormat,
			File: &log.FileOptions{
				Path:       cfg.Abs(cfg.Log.File),
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Compress:   cfg.LogCompress(),
			},
		})
	}
	log.Debug("config loaded", "root", cfg.Root, "source", cfg.SourceDir(), "output", cfg.OutputDir())
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
