package cli

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetpipe/pkg/pack"
)

var packFlags struct {
	dir     string
	verbose bool
}

var packCmd = &cobra.Command{
	Use:   "pack <out.apk>",
	Short: "Build a pack from imported outputs",
	Long: `Writes every file under the output directory into one pack file.

Text-like entries are compressed with zstd and the rest with lz4; entries
that do not shrink are stored as is. Every entry carries a BLAKE3 hash that
is verified on read.

Mount packs through paths.packs in assetpipe.toml.`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVar(&packFlags.dir, "dir", "",
		"Directory to pack (default: the configured output directory)")
	packCmd.Flags().BoolVar(&packFlags.verbose, "verbose", false,
		"List every packed entry")

	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	dir := packFlags.dir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.OutputDir()
	}

	entries, err := pack.CollectDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("nothing to pack in %s", dir)
	}

	out, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	index, err := pack.WriteFile(out, entries)
	if err != nil {
		return err
	}

	var raw, stored uint64
	w := cmd.OutOrStdout()
	for _, e := range index {
		raw += e.Size
		stored += e.StoredSize
		if packFlags.verbose {
			fmt.Fprintf(w, "  %-40s %8s -> %8s %s\n", e.ID,
				humanize.IBytes(e.Size), humanize.IBytes(e.StoredSize), e.Compression)
		}
	}
	fmt.Fprintf(w, "Packed %s entries into %s (%s -> %s)\n",
		humanize.Comma(int64(len(index))), out, humanize.IBytes(raw), humanize.IBytes(stored))
	return nil
}
