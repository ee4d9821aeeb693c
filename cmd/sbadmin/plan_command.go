package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyboardgen/internal/domain"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage subscription plans",
	}
	planCmd.AddCommand(newPlanSetCommand(ctx))
	return planCmd
}

func newPlanSetCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var planName string
	var reset bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Assign a plan to a user and update the credit ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return errors.New("--user is required")
			}
			plan, err := domain.ParsePlan(planName)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			svc, closeFn, err := ctx.plans(runCtx)
			if err != nil {
				return err
			}
			defer closeFn()

			mu, err := svc.SetPlan(runCtx, userID, plan, reset)
			if err != nil {
				return fmt.Errorf("set plan: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %s is now on %s: %d/%d credits used, %d remaining (period %s)\n",
				userID, plan, mu.Used, mu.MonthlyLimit, mu.Remaining, mu.PeriodStart.Format("2006-01-02"))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID to update")
	cmd.Flags().StringVar(&planName, "plan", "", "Plan to assign (free, basic, pro, business)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Reset the period's used credits to zero")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
