// File: cmd/token.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/docketpilot/internal/api"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Long:  "Signs an HS256 token with api.jwt_secret (DOCKETPILOT_JWT_SECRET).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !cfg.API().AuthEnabled() {
				return fmt.Errorf("no JWT secret is configured (hint: set DOCKETPILOT_JWT_SECRET)")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			tok, err := api.GenerateToken([]byte(cfg.API().JWTSecret), subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
