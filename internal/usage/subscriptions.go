package usage

import (
	"context"
	"fmt"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/sqlinline"
)

// Subscriptions reads and writes the subscriptions table.
type Subscriptions struct {
	sql infra.SQLExecutor
}

func NewSubscriptions(sql infra.SQLExecutor) *Subscriptions {
	return &Subscriptions{sql: sql}
}

// Get returns the subscription of userID. Accounts without a row are on the free plan.
func (s *Subscriptions) Get(ctx context.Context, userID string) (domain.Subscription, error) {
	sub, err := scanSubscription(s.sql.QueryRow(ctx, sqlinline.QSelectSubscription, userID))
	if infra.IsNoRows(err) {
		return domain.Subscription{UserID: userID, Plan: domain.PlanFree}, nil
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("subscriptions: get: %w", err)
	}
	return sub, nil
}

// Plan resolves the effective plan of userID and whether it is paid.
// Inactive and missing subscriptions count as free.
func (s *Subscriptions) Plan(ctx context.Context, userID string) (domain.PlanType, bool, error) {
	sub, err := s.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	plan := sub.EffectivePlan()
	return plan, plan.IsPaid(), nil
}

// GetByCustomer looks a subscription up by its Stripe customer id.
func (s *Subscriptions) GetByCustomer(ctx context.Context, customerID string) (domain.Subscription, error) {
	sub, err := scanSubscription(s.sql.QueryRow(ctx, sqlinline.QSelectSubscriptionByCustomer, customerID))
	if infra.IsNoRows(err) {
		return domain.Subscription{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("subscriptions: get by customer: %w", err)
	}
	return sub, nil
}

// Upsert stores sub. Empty Stripe ids keep the stored ones.
func (s *Subscriptions) Upsert(ctx context.Context, sub domain.Subscription) error {
	if sub.UserID == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertSubscription,
		sub.UserID,
		string(sub.Plan),
		sub.IsActive,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("subscriptions: upsert: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var (
		sub  domain.Subscription
		plan string
	)
	if err := row.Scan(&sub.UserID, &plan, &sub.IsActive, &sub.StripeCustomerID, &sub.StripeSubscriptionID); err != nil {
		return domain.Subscription{}, err
	}
	parsed, err := domain.ParsePlan(plan)
	if err != nil {
		parsed = domain.PlanFree
	}
	sub.Plan = parsed
	return sub, nil
}
