package usage

import (
	"context"

	"storyboardgen/internal/domain"
)

// Service resolves a user's plan before touching the ledger.
type Service struct {
	Ledger        *Ledger
	Subscriptions *Subscriptions
}

// Context builds the budget context for userID from the subscription row.
func (s *Service) Context(ctx context.Context, userID string) (domain.UsageContext, error) {
	plan, _, err := s.Subscriptions.Plan(ctx, userID)
	if err != nil {
		return domain.UsageContext{}, err
	}
	return domain.UsageContext{Plan: plan}, nil
}

// Current returns the usage entry for userID on their effective plan.
func (s *Service) Current(ctx context.Context, userID string) (domain.MonthlyUsage, domain.UsageContext, error) {
	uc, err := s.Context(ctx, userID)
	if err != nil {
		return domain.MonthlyUsage{}, domain.UsageContext{}, err
	}
	mu, err := s.Ledger.Usage(ctx, userID, uc.Plan)
	return mu, uc, err
}

// SetPlan activates plan for userID and moves the ledger onto it. With reset
// the period's used counter starts again at zero.
func (s *Service) SetPlan(ctx context.Context, userID string, plan domain.PlanType, reset bool) (domain.MonthlyUsage, error) {
	sub, err := s.Subscriptions.Get(ctx, userID)
	if err != nil {
		return domain.MonthlyUsage{}, err
	}
	sub.UserID = userID
	sub.Plan = plan
	sub.IsActive = plan.IsPaid()
	if err := s.Subscriptions.Upsert(ctx, sub); err != nil {
		return domain.MonthlyUsage{}, err
	}
	if reset {
		return s.Ledger.ResetForNewPlan(ctx, userID, plan)
	}
	return s.Ledger.ChangePlan(ctx, userID, plan)
}
