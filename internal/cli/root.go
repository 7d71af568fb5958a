// Package cli implements spanscopectl, a terminal client for the trace backend.
package cli

import (
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"spanscope/internal/clients"
	"spanscope/internal/config"
	"spanscope/internal/output"
)

// BackendFactory builds the backend client from the resolved flags.
type BackendFactory func(cfg config.BackendConfig) (clients.Backend, error)

type globalFlags struct {
	url     string
	kind    string
	timeout time.Duration
	noColor bool
	verbose bool
}

// env carries what every subcommand needs once the persistent flags are parsed.
type env struct {
	backend  clients.Backend
	renderer *output.Renderer
	logger   *slog.Logger
}

// NewCommand returns the root command for the spanscopectl CLI. A nil factory uses
// clients.New.
func NewCommand(factory BackendFactory) (cmd *cobra.Command) {
	if factory == nil {
		factory = func(cfg config.BackendConfig) (clients.Backend, error) {
			return clients.New(cfg, nil, nil)
		}
	}

	var flags globalFlags
	e := &env{}

	cmd = &cobra.Command{
		Use:          "spanscopectl",
		Short:        "spanscope trace viewer CLI",
		Long:         `spanscopectl lists recent traces and draws single traces as a waterfall in the terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if flags.verbose {
				level = slog.LevelDebug
			}
			e.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			backend, err := factory(config.BackendConfig{
				Kind:    flags.kind,
				URL:     flags.url,
				Timeout: flags.timeout.String(),
			})
			if err != nil {
				return err
			}
			e.backend = backend
			e.renderer = output.NewRenderer(!flags.noColor && !color.NoColor)
			return nil
		},
	}

	cmd.AddCommand(
		newListCommand(e),
		newTraceCommand(e),
	)

	cmd.PersistentFlags().StringVar(&flags.url, "url", "http://localhost:8002", "trace backend url")
	cmd.PersistentFlags().StringVar(&flags.kind, "kind", config.BackendNative, "backend kind (native or tempo)")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "backend request timeout")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log backend requests to stderr")

	return cmd
}
