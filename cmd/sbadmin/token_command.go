package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyboardgen/internal/middleware"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Session token helpers for local testing",
	}

	var userID string
	var email string
	var ttl time.Duration

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			token, err := middleware.SignJWT(cfg.JWTSecret, userID, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "User ID placed in the subject claim")
	issue.Flags().StringVar(&email, "email", "", "Optional email claim")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	tokenCmd.AddCommand(issue)
	return tokenCmd
}
