package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetpipe/cmd/assetpipe/internal/detect"
	"github.com/albertocavalcante/assetpipe/pkg/config"
)

var initFlags struct {
	source string
	output string
	check  bool
	dryRun bool
	force  bool
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create an assetpipe.toml for a project",
	Long: `Initializes a project for assetpipe.

This command will:
1. Detect the asset types in the source directory
2. Report extensions no importer handles
3. Write assetpipe.toml with the source and output paths

Use --check to verify a config exists without making changes (useful for CI).
Use --dry-run to preview the file without writing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initFlags.source, "source", "",
		"Source directory relative to the project (default: assets if present, else .)")
	initCmd.Flags().StringVar(&initFlags.output, "output", "imported",
		"Output directory relative to the project")
	initCmd.Flags().BoolVar(&initFlags.check, "check", false,
		"Check if the project has a config (exit non-zero if not)")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show what would be written without writing it")
	initCmd.Flags().BoolVar(&initFlags.force, "force", false,
		"Overwrite an existing assetpipe.toml")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w := cmd.OutOrStdout()
	if initFlags.check {
		return runInitCheck(w, absPath)
	}

	source := initFlags.source
	if source == "" {
		source = defaultSource(absPath)
	}

	report, err := detect.Types(filepath.Join(absPath, source), nil)
	if err != nil {
		return fmt.Errorf("failed to detect asset types: %w", err)
	}
	printReport(w, report)

	content, err := generateConfig(source, initFlags.output)
	if err != nil {
		return err
	}

	configFile := filepath.Join(absPath, config.ConfigFileName)
	if initFlags.dryRun {
		return runInitDryRun(w, configFile, content)
	}
	return runInitApply(w, configFile, content, initFlags.force)
}

// defaultSource picks "assets" when the project has one.
func defaultSource(root string) string {
	if info, err := os.Stat(filepath.Join(root, "assets")); err == nil && info.IsDir() {
		return "assets"
	}
	return "."
}

// generateConfig renders a default config for the given paths. When the
// source is the project root the output directory is excluded from scanning.
func generateConfig(source, output string) ([]byte, error) {
	cfg := config.NewConfig()
	cfg.Paths.Source = filepath.ToSlash(source)
	cfg.Paths.Output = filepath.ToSlash(output)

	if filepath.Clean(source) == "." {
		first, _, _ := strings.Cut(filepath.ToSlash(filepath.Clean(output)), "/")
		if first != "" && first != "." && first != ".." {
			cfg.Import.IgnoreDirs = append(cfg.Import.IgnoreDirs, first)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	body, err := config.Encode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	header := "# assetpipe configuration\n# Generated by 'assetpipe init'\n\n"
	return append([]byte(header), body...), nil
}

func printReport(w io.Writer, r *detect.Report) {
	if r.Total() == 0 {
		fmt.Fprintln(w, "No importable assets detected.")
	} else {
		fmt.Fprintf(w, "Asset types (%d files):\n", r.Total())
		for _, typ := range r.TypeNames() {
			fmt.Fprintf(w, "  %-10s %d\n", typ, r.Types[typ])
		}
	}
	if r.Sidecars > 0 {
		fmt.Fprintf(w, "Sidecars: %d\n", r.Sidecars)
	}
	if unknown := r.UnknownExtensions(); len(unknown) > 0 {
		parts := make([]string, 0, len(unknown))
		for _, ext := range unknown {
			parts = append(parts, fmt.Sprintf("%s (%d)", ext, r.Unknown[ext]))
		}
		fmt.Fprintf(w, "Not imported: %s\n", strings.Join(parts, ", "))
		fmt.Fprintln(w, "Map them under [import.types] to import them.")
	}
	fmt.Fprintln(w)
}

func runInitCheck(w io.Writer, root string) error {
	var found string
	for _, p := range config.GetProjectConfigPaths(root) {
		if fileExists(p) {
			found = p
			break
		}
	}
	if found == "" {
		return fmt.Errorf("no config found in %s; run 'assetpipe init' to create one", root)
	}

	cfg, err := config.LoadFile(found)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", found, err)
	}
	if info, err := os.Stat(cfg.SourceDir()); err != nil || !info.IsDir() {
		return fmt.Errorf("%s: source directory %s does not exist", found, cfg.SourceDir())
	}

	fmt.Fprintf(w, "Project is properly configured (%s)\n", found)
	return nil
}

func runInitDryRun(w io.Writer, configFile string, content []byte) error {
	if fileExists(configFile) {
		fmt.Fprintf(w, "%s exists (would %s)\n", configFile, overwriteVerb())
	} else {
		fmt.Fprintf(w, "Would create %s:\n", configFile)
	}
	fmt.Fprintln(w, string(content))
	return nil
}

func overwriteVerb() string {
	if initFlags.force {
		return "overwrite"
	}
	return "not modify"
}

func runInitApply(w io.Writer, configFile string, content []byte, force bool) error {
	if fileExists(configFile) && !force {
		fmt.Fprintf(w, "%s already exists (skipping, use --force to overwrite)\n", configFile)
		return nil
	}
	if err := os.WriteFile(configFile, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.ConfigFileName, err)
	}
	fmt.Fprintf(w, "Created %s\n", configFile)

	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Review paths and [import.types] in assetpipe.toml")
	fmt.Fprintln(w, "  2. Run 'assetpipe import' to import assets")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
