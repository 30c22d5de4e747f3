// Package cli implements bankguardctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"bankguard/internal/app"
	"bankguard/internal/platform/config"
	"bankguard/internal/platform/logger"
	"bankguard/pkg/requestcontext"
)

// Actor is recorded as the user of every audited change made by the CLI.
const Actor = "bankguardctl"

// RootOptions holds state shared by all commands.
type RootOptions struct {
	Config *config.Config
	Logger *slog.Logger

	// load defaults to config.Load; tests inject a fixed config.
	load func() (*config.Config, error)
}

// NewRootCommand creates the root command for bankguardctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{load: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bankguardctl",
		Short: "Operate a bankguard deployment",
		Long:  "Seed roles, compliance rules and knowledge articles, run retention sweeps, and mint management tokens.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Logger = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "text")
			return nil
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	return cmd
}

// withApp builds the components against the configured stores, runs fn and
// closes everything, draining queued audit records.
func withApp(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.Build(ctx, opts.Config, opts.Logger, app.Options{SkipMetrics: true})
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	defer a.Close(context.Background())

	if a.DB == nil {
		opts.Logger.WarnContext(ctx, "DATABASE_URL not set; changes are discarded when the command exits")
	}
	return fn(requestcontext.WithUserID(ctx, Actor), a)
}
