package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bankguard/internal/app"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token --sub <user> --role <role>",
		Short: "Mint a bearer token for the management routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := rootOpts.Config.JWT.SigningKey
			if key == "" {
				return errors.New("JWT_SIGNING_KEY is not set")
			}
			if ttl <= 0 {
				return fmt.Errorf("ttl must be positive, got %s", ttl)
			}
			token, err := app.NewTokenService(key).GenerateAccessToken(subject, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "token subject (operator user id)")
	cmd.Flags().StringVar(&role, "role", "", "role checked against the permission gate")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
