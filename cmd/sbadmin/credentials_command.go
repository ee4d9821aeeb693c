package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCredentialsCommand(ctx *commandContext) *cobra.Command {
	credsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored provider API keys",
	}
	credsCmd.AddCommand(newCredentialsSetCommand(ctx))
	return credsCmd
}

func newCredentialsSetCommand(ctx *commandContext) *cobra.Command {
	var provider string
	var key string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an API key for a model provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider = strings.ToLower(strings.TrimSpace(provider))
			key = strings.TrimSpace(key)
			if provider == "" || key == "" {
				return errors.New("--provider and --key are required")
			}

			runCtx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			store, closeFn, err := ctx.credentials(runCtx)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Set(runCtx, provider, key); err != nil {
				return fmt.Errorf("store %s key: %w", provider, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s API key ending in %s\n", provider, lastFour(key))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "gemini", "Provider name (gemini, openai)")
	cmd.Flags().StringVar(&key, "key", "", "API key value")
	return cmd
}

func lastFour(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}
