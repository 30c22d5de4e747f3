package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bankguard/internal/app"
	"bankguard/pkg/requestcontext"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the session, memory and audit retention sweeps once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.App) error {
				if err := a.Sweep(ctx, requestcontext.Now(ctx)); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "sweep complete")
				return err
			})
		},
	}
}
