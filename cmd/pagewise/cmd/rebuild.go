package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagewise-ai/pagewise/internal/generation"
)

// newRebuildCmd creates the rebuild command.
func newRebuildCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index generation from the chunk store",
		Long: `Rebuild snapshots the chunk store and builds a fresh generation of the
keyword, vector, and structured indices. With --watch it keeps running and
rebuilds whenever the store file changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			// openApp already built the initial generation.
			gen := a.manager.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "generation %s: %d chunks, dimension %d\n",
				gen.ID, gen.ChunkCount, gen.Dimension)

			if !watch {
				return nil
			}

			debounce := a.cfg.Rebuild.Debounce
			if debounce <= 0 {
				debounce = generation.DefaultDebounceWindow
			}
			w, err := generation.NewWatcher(a.manager, a.cfg.Store.Path, debounce)
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (debounce %s)\n",
				a.cfg.Store.Path, debounce.Round(time.Millisecond))
			return w.Start(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and rebuild on store changes")

	return cmd
}
