package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"domainreader/internal/platform/config"
	"domainreader/internal/platform/token"
)

type tokenOptions struct {
	Subject string
	Scope   string
	TTL     time.Duration
}

// newTokenCommand issues a bearer token for the writer API, signed with the
// configured key.
func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the writer API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigFile)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSigningKey == "" {
				return fmt.Errorf("no jwt signing key configured")
			}
			signed, err := token.NewService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer).
				Issue(opts.Subject, opts.Scope, opts.TTL)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&opts.Scope, "scope", "writer", "token scope")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
