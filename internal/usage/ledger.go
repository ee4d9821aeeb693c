// Package usage owns the per-user credit ledger and subscription rows.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/sqlinline"
)

// Ledger reads and debits the usage table. Every mutation is a single
// conditional statement, so concurrent callers in other processes are safe.
type Ledger struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
	now    func() time.Time
}

func NewLedger(sql infra.SQLExecutor, logger zerolog.Logger) *Ledger {
	return &Ledger{sql: sql, logger: logger, now: time.Now}
}

// Usage returns the entry for the current period. A missing row reads as
// zero used against the plan limit.
func (l *Ledger) Usage(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	if err := requireUser(userID); err != nil {
		return domain.MonthlyUsage{}, err
	}
	period := plan.PeriodStart(l.now())
	var used, limit int
	err := l.sql.QueryRow(ctx, sqlinline.QSelectUsage, userID, period).Scan(&used, &limit)
	switch {
	case infra.IsNoRows(err):
		return domain.NewMonthlyUsage(userID, period, 0, plan.CreditLimit()), nil
	case err != nil:
		return domain.MonthlyUsage{}, fmt.Errorf("usage: select: %w", err)
	}
	return domain.NewMonthlyUsage(userID, period, used, limit), nil
}

// Consume adds amount to used when the result stays within the limit and
// fails with domain.ErrCreditLimitExceeded otherwise, leaving the row as it was.
func (l *Ledger) Consume(ctx context.Context, userID string, amount int, plan domain.PlanType) (domain.MonthlyUsage, error) {
	if err := requireUser(userID); err != nil {
		return domain.MonthlyUsage{}, err
	}
	if amount < 0 {
		return domain.MonthlyUsage{}, domain.NewValidationError("amount", "must not be negative")
	}
	if amount == 0 {
		return l.Usage(ctx, userID, plan)
	}

	period := plan.PeriodStart(l.now())
	var used, limit int
	err := l.sql.QueryRow(ctx, sqlinline.QConsumeUsage, userID, period, amount, plan.CreditLimit()).Scan(&used, &limit)
	if infra.IsNoRows(err) {
		l.logger.Warn().Str("user_id", userID).Int("amount", amount).Msg("credit debit rejected")
		return domain.MonthlyUsage{}, fmt.Errorf("usage: consume %d: %w", amount, domain.ErrCreditLimitExceeded)
	}
	if err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("usage: consume: %w", err)
	}
	l.logger.Debug().Str("user_id", userID).Int("amount", amount).Int("used", used).Msg("credits consumed")
	return domain.NewMonthlyUsage(userID, period, used, limit), nil
}

// ChangePlan moves the current period onto the plan's limit and keeps used.
func (l *Ledger) ChangePlan(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	return l.writeLimit(ctx, sqlinline.QSetUsageLimit, userID, plan)
}

// ResetForNewPlan moves the current period onto the plan's limit with used set to zero.
func (l *Ledger) ResetForNewPlan(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	return l.writeLimit(ctx, sqlinline.QResetUsage, userID, plan)
}

func (l *Ledger) writeLimit(ctx context.Context, query, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	if err := requireUser(userID); err != nil {
		return domain.MonthlyUsage{}, err
	}
	period := plan.PeriodStart(l.now())
	var used, limit int
	if err := l.sql.QueryRow(ctx, query, userID, period, plan.CreditLimit()).Scan(&used, &limit); err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("usage: set limit: %w", err)
	}
	l.logger.Info().Str("user_id", userID).Str("plan", string(plan)).Int("limit", limit).Int("used", used).Msg("usage limit updated")
	return domain.NewMonthlyUsage(userID, period, used, limit), nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	return nil
}
