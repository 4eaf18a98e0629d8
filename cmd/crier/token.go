package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/btouchard/crier/internal/auth"
	"github.com/btouchard/crier/internal/config"
)

func newTokenCommand(load configLoader) *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
		rotate bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token for a user",
		Example: `  # Token for user 42 with the configured TTL
  crier token --user 42

  # Replace the generated signing key first (invalidates every token)
  crier token --user 42 --rotate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.DevTokenTTL
			}

			dir := config.ExpandHome(cfg.Auth.SecretDir)
			if rotate {
				if cfg.Auth.SigningSecret != "" {
					return fmt.Errorf("--rotate only applies to the generated key; auth.signing_secret is set")
				}
				if _, err := auth.RotateSigningKey(dir); err != nil {
					return err
				}
			}

			secret, err := auth.SigningSecret(cfg.Auth.SigningSecret, dir)
			if err != nil {
				return err
			}
			token, err := auth.MintToken(secret, cfg.Auth.Issuer, userID, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id carried in the uid claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 = no expiry; default auth.dev_token_ttl)")
	cmd.Flags().BoolVar(&rotate, "rotate", false, "regenerate the signing key before minting")
	return cmd
}
