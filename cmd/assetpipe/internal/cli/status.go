package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetpipe/pkg/importdb"
)

var statusFlags struct {
	verbose bool
	json    bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which assets are stale",
	Long: `Shows the import status of every asset in the source tree.

An asset is stale when it was never imported, when any input changed, when
its type or importer version changed, or when one of its outputs is missing.

The --verbose flag lists every stale asset by reason.
The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.verbose, "verbose", false,
		"List stale assets by reason")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for assetpipe status.
type StatusOutput struct {
	Stale      bool               `json:"stale"`
	StaleCount int                `json:"stale_count"`
	StaleDirs  []string           `json:"stale_dirs"`
	Assets     *importdb.StaleSet `json:"assets"`
	Database   string             `json:"database"`
	Records    int                `json:"records"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	proj, err := openProject(cfg, pipelineOptions{})
	if err != nil {
		return err
	}

	set, err := proj.pipeline.Status(context.Background())
	if err != nil {
		return fmt.Errorf("failed to detect staleness: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusFlags.json {
		return outputJSON(out, StatusOutput{
			Stale:      !set.IsEmpty(),
			StaleCount: set.StaleCount(),
			StaleDirs:  set.AffectedDirs(),
			Assets:     set,
			Database:   proj.db.Store().Path(),
			Records:    proj.db.Len(),
		})
	}

	printStatus(out, set, statusFlags.verbose)
	return nil
}

func printStatus(w io.Writer, set *importdb.StaleSet, verbose bool) {
	if set.IsEmpty() {
		fmt.Fprintf(w, "All %d assets are up to date\n", len(set.Fresh))
		return
	}

	dirs := set.AffectedDirs()
	fmt.Fprintf(w, "%d stale assets in %d directories:\n", set.StaleCount(), len(dirs))
	for _, dir := range dirs {
		fmt.Fprintf(w, "  %s\n", dir)
	}

	if verbose {
		groups := []struct {
			title  string
			mark   string
			assets []string
		}{
			{"New assets", "+", set.New},
			{"Changed inputs", "~", set.InputsChanged},
			{"Type changed", "~", set.TypeChanged},
			{"Importer changed", "~", set.ImporterChanged},
			{"Outputs missing", "!", set.OutputsMissing},
			{"Removed from source", "-", set.Removed},
		}
		for _, g := range groups {
			if len(g.assets) == 0 {
				continue
			}
			fmt.Fprintf(w, "\n%s (%d):\n", g.title, len(g.assets))
			for _, id := range g.assets {
				fmt.Fprintf(w, "  %s %s\n", g.mark, id)
			}
		}
	}

	fmt.Fprintln(w, "\nRun 'assetpipe import' to import stale assets")
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
