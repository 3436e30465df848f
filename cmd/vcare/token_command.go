package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/First008/vcare/internal/server"
	"github.com/spf13/cobra"
)

var errNoSecret = errors.New("no JWT secret configured (set server.jwt_secret or VCARE_JWT_SECRET, or pass --secret)")

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				secret = cfg.Server.JWTSecret
			}
			if secret == "" {
				return errNoSecret
			}

			token, err := server.IssueToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "vcare-client", "Token subject")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default server.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
