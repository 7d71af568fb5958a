package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spanscope/internal/viewmodel"
)

func newTraceCommand(e *env) (cmd *cobra.Command) {
	var width int

	cmd = &cobra.Command{
		Use:   "trace <trace-id>",
		Short: "Show one trace as a waterfall timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := viewmodel.NewDetailView(e.backend, e.logger)
			defer view.Close()

			state := view.Load(cmd.Context(), args[0])
			if err := e.renderer.WithBarWidth(width).TraceDetail(cmd.OutOrStdout(), state); err != nil {
				return err
			}

			switch state.Status {
			case viewmodel.StatusNotFound:
				return fmt.Errorf("trace %s not found", args[0])
			case viewmodel.StatusFailed:
				return fmt.Errorf("failed to fetch trace %s: %w", args[0], state.Err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 40, "waterfall width in characters")

	return cmd
}
