package domain

import (
	"strings"
	"time"
)

// PlanType enumerates subscription tiers.
type PlanType string

const (
	PlanFree     PlanType = "free"
	PlanBasic    PlanType = "basic"
	PlanPro      PlanType = "pro"
	PlanBusiness PlanType = "business"
)

// FreeLifetimeCredits is the total number of credits an account without a
// paid plan can ever use.
const FreeLifetimeCredits = 3

var planLimits = map[PlanType]int{
	PlanFree:     FreeLifetimeCredits,
	PlanBasic:    90,
	PlanPro:      180,
	PlanBusiness: 600,
}

// ParsePlan normalizes free-form input into a known plan.
func ParsePlan(raw string) (PlanType, error) {
	plan := PlanType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := planLimits[plan]; !ok {
		return "", ErrUnsupportedPlan
	}
	return plan, nil
}

// CreditLimit returns the credit allowance per period for the plan. Unknown
// plans get the free allowance.
func (p PlanType) CreditLimit() int {
	if limit, ok := planLimits[p]; ok {
		return limit
	}
	return FreeLifetimeCredits
}

// IsPaid reports whether the plan is a paid tier.
func (p PlanType) IsPaid() bool {
	switch p {
	case PlanBasic, PlanPro, PlanBusiness:
		return true
	default:
		return false
	}
}

// lifetimePeriod is the fixed period used by the free tier so its counter
// never rolls over.
var lifetimePeriod = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// PeriodStart returns the ledger period containing now for the plan.
func (p PlanType) PeriodStart(now time.Time) time.Time {
	if !p.IsPaid() {
		return lifetimePeriod
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthlyUsage is one credit ledger entry.
type MonthlyUsage struct {
	UserID       string    `json:"user_id"`
	PeriodStart  time.Time `json:"period_start"`
	Used         int       `json:"used"`
	MonthlyLimit int       `json:"monthly_limit"`
	Remaining    int       `json:"remaining"`
}

// NewMonthlyUsage builds an entry with Remaining derived from used and limit.
func NewMonthlyUsage(userID string, period time.Time, used, limit int) MonthlyUsage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return MonthlyUsage{
		UserID:       userID,
		PeriodStart:  period,
		Used:         used,
		MonthlyLimit: limit,
		Remaining:    remaining,
	}
}

// Subscription is the billing state of an account.
type Subscription struct {
	UserID               string   `json:"user_id"`
	Plan                 PlanType `json:"plan"`
	IsActive             bool     `json:"is_active"`
	StripeCustomerID     string   `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string   `json:"stripe_subscription_id,omitempty"`
}

// EffectivePlan is the plan credits are computed from.
func (s Subscription) EffectivePlan() PlanType {
	if !s.IsActive || !s.Plan.IsPaid() {
		return PlanFree
	}
	return s.Plan
}

// AuthContext identifies the caller of an operation.
type AuthContext struct {
	UserID string
	Email  string
}

// UsageContext carries the budget a run is checked against.
type UsageContext struct {
	Plan PlanType
}

// Paid reports whether the budget belongs to a paid plan.
func (u UsageContext) Paid() bool { return u.Plan.IsPaid() }
