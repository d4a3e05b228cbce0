package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var lsFlags struct {
	prefix string
	suffix string
	strip  bool
	long   bool
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List resource ids",
	Long: `Lists every resource id known to any configured provider, sorted and
without duplicates.

Use --prefix and --suffix to filter, and --strip to drop the prefix from
the listed ids. The -l flag adds size, age and serving provider.`,
	Args: cobra.NoArgs,
	RunE: runLs,
}

func init() {
	lsCmd.Flags().StringVar(&lsFlags.prefix, "prefix", "",
		"Only list ids starting with this prefix")
	lsCmd.Flags().StringVar(&lsFlags.suffix, "suffix", "",
		"Only list ids ending with this suffix")
	lsCmd.Flags().BoolVar(&lsFlags.strip, "strip", false,
		"Remove the prefix from listed ids")
	lsCmd.Flags().BoolVarP(&lsFlags.long, "long", "l", false,
		"Show size, age and provider")

	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := newLocator(context.Background(), cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = loc.Close() }()

	ids := loc.Enumerate(lsFlags.prefix, lsFlags.strip, lsFlags.suffix)
	w := cmd.OutOrStdout()
	if !lsFlags.long {
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, id := range ids {
		full := id
		if lsFlags.strip {
			full = lsFlags.prefix + id
		}

		size := "-"
		if s, err := loc.Stream(full); err == nil {
			if s.Size() >= 0 {
				size = humanize.IBytes(uint64(s.Size()))
			}
			_ = s.Close()
		}
		age := "-"
		if ts := loc.Timestamp(full); !ts.IsZero() {
			age = humanize.Time(ts)
		}
		owner := "-"
		if p, ok := loc.Owner(full); ok {
			owner = providerName(p)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", size, age, owner, id)
	}
	return tw.Flush()
}
