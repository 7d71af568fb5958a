package cli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"spanscope/internal/viewmodel"
)

func newListCommand(e *env) (cmd *cobra.Command) {
	var limit int
	var watch bool
	var interval time.Duration

	cmd = &cobra.Command{
		Use:   "list",
		Short: "List the most recent traces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := viewmodel.NewTraceList(e.backend,
				viewmodel.WithLimit(limit),
				viewmodel.WithInterval(interval),
				viewmodel.WithLogger(e.logger),
			)

			if !watch {
				if err := list.Refresh(cmd.Context()); err != nil {
					return fmt.Errorf("failed to fetch traces: %w", err)
				}
				return e.renderer.TraceList(cmd.OutOrStdout(), list.Snapshot())
			}
			return watchList(cmd, e, list)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", viewmodel.MaxListLimit, fmt.Sprintf("number of traces (1-%d)", viewmodel.MaxListLimit))
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling and redraw on every refresh")
	cmd.Flags().DurationVar(&interval, "interval", viewmodel.DefaultRefreshInterval, "polling interval for --watch")

	return cmd
}

// watchList polls in the background and redraws the snapshot every interval until interrupted.
func watchList(cmd *cobra.Command, e *env, list *viewmodel.TraceList) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	go list.Run(ctx)
	defer list.Stop()

	ticker := time.NewTicker(list.Interval())
	defer ticker.Stop()

	out := cmd.OutOrStdout()
	for {
		// Clear the screen and home the cursor before each redraw.
		fmt.Fprint(out, "\x1b[H\x1b[2J")
		if err := e.renderer.TraceList(out, list.Snapshot()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

