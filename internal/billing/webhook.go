package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/notify"
)

// ErrWebhookNotConfigured is returned when no endpoint secret is set. Payloads are never trusted unsigned.
var ErrWebhookNotConfigured = errors.New("billing: webhook secret not configured")

// SubscriptionStore persists billing state.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (domain.Subscription, error)
	GetByCustomer(ctx context.Context, customerID string) (domain.Subscription, error)
	Upsert(ctx context.Context, sub domain.Subscription) error
}

// PlanLedger moves a user's credit ledger onto a new plan.
type PlanLedger interface {
	ChangePlan(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error)
	ResetForNewPlan(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error)
}

type Options struct {
	Secret     string
	PricePlans map[string]string
}

// Webhook applies verified Stripe events to subscriptions and the usage ledger.
type Webhook struct {
	secret     string
	pricePlans map[string]domain.PlanType
	subs       SubscriptionStore
	ledger     PlanLedger
	mailer     notify.Mailer
	logger     zerolog.Logger
}

func NewWebhook(opts Options, subs SubscriptionStore, ledger PlanLedger, mailer notify.Mailer, logger zerolog.Logger) *Webhook {
	plans := make(map[string]domain.PlanType, len(opts.PricePlans))
	for price, raw := range opts.PricePlans {
		plan, err := domain.ParsePlan(raw)
		if err != nil {
			logger.Warn().Str("price", price).Str("plan", raw).Msg("ignoring price mapped to unknown plan")
			continue
		}
		plans[price] = plan
	}
	return &Webhook{
		secret:     strings.TrimSpace(opts.Secret),
		pricePlans: plans,
		subs:       subs,
		ledger:     ledger,
		mailer:     mailer,
		logger:     logger,
	}
}

// Outcome describes what an event changed.
type Outcome struct {
	EventID string          `json:"event_id"`
	Type    string          `json:"type"`
	Handled bool            `json:"handled"`
	UserID  string          `json:"user_id,omitempty"`
	Plan    domain.PlanType `json:"plan,omitempty"`
}

// Handle verifies payload against the Stripe-Signature header and applies it.
func (w *Webhook) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if w.secret == "" {
		return Outcome{}, ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("billing: verify event: %w: %w", domain.ErrUnauthorized, err)
	}
	out := Outcome{EventID: event.ID, Type: string(event.Type)}
	log := w.logger.With().Str("event_id", event.ID).Str("type", out.Type).Logger()

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return out, domain.NewValidationError("data", "malformed checkout session")
		}
		err = w.checkoutCompleted(ctx, &session, &out)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return out, domain.NewValidationError("data", "malformed subscription")
		}
		err = w.subscriptionChanged(ctx, &sub, &out)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return out, domain.NewValidationError("data", "malformed subscription")
		}
		err = w.subscriptionDeleted(ctx, &sub, &out)
	default:
		log.Debug().Msg("ignoring stripe event")
		return out, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("stripe event failed")
		return out, err
	}
	log.Info().Str("user_id", out.UserID).Str("plan", string(out.Plan)).Msg("stripe event applied")
	return out, nil
}

func (w *Webhook) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession, out *Outcome) error {
	userID := strings.TrimSpace(session.ClientReferenceID)
	if userID == "" {
		userID = strings.TrimSpace(session.Metadata["user_id"])
	}
	if userID == "" {
		return domain.NewValidationError("client_reference_id", "checkout session has no user")
	}
	plan, err := domain.ParsePlan(session.Metadata["plan"])
	if err != nil || !plan.IsPaid() {
		return domain.NewValidationError("metadata.plan", "checkout session has no paid plan")
	}
	sub, err := w.subs.Get(ctx, userID)
	if err != nil {
		return err
	}
	sub.UserID = userID
	sub.Plan = plan
	sub.IsActive = true
	if session.Customer != nil && session.Customer.ID != "" {
		sub.StripeCustomerID = session.Customer.ID
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		sub.StripeSubscriptionID = session.Subscription.ID
	}
	if err := w.subs.Upsert(ctx, sub); err != nil {
		return err
	}
	if _, err := w.ledger.ResetForNewPlan(ctx, userID, plan); err != nil {
		return err
	}
	out.Handled, out.UserID, out.Plan = true, userID, plan

	email := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = session.CustomerDetails.Email
	}
	if email != "" && w.mailer != nil {
		if err := w.mailer.Send(ctx, notify.PlanActivated(email, plan)); err != nil {
			w.logger.Warn().Err(err).Str("user_id", userID).Msg("plan activation email failed")
		}
	}
	return nil
}

func (w *Webhook) subscriptionChanged(ctx context.Context, stripeSub *stripe.Subscription, out *Outcome) error {
	sub, err := w.lookup(ctx, stripeSub)
	if err != nil {
		return err
	}
	plan, ok := w.planFor(stripeSub)
	if !ok {
		plan = sub.Plan
	}
	sub.Plan = plan
	sub.IsActive = stripeSub.Status == stripe.SubscriptionStatusActive || stripeSub.Status == stripe.SubscriptionStatusTrialing
	sub.StripeSubscriptionID = stripeSub.ID
	if err := w.subs.Upsert(ctx, sub); err != nil {
		return err
	}
	if _, err := w.ledger.ChangePlan(ctx, sub.UserID, sub.EffectivePlan()); err != nil {
		return err
	}
	out.Handled, out.UserID, out.Plan = true, sub.UserID, sub.EffectivePlan()
	return nil
}

func (w *Webhook) subscriptionDeleted(ctx context.Context, stripeSub *stripe.Subscription, out *Outcome) error {
	sub, err := w.lookup(ctx, stripeSub)
	if err != nil {
		return err
	}
	sub.IsActive = false
	sub.Plan = domain.PlanFree
	if err := w.subs.Upsert(ctx, sub); err != nil {
		return err
	}
	if _, err := w.ledger.ChangePlan(ctx, sub.UserID, domain.PlanFree); err != nil {
		return err
	}
	out.Handled, out.UserID, out.Plan = true, sub.UserID, domain.PlanFree
	return nil
}

// lookup finds the account for a Stripe subscription by customer id, falling back to metadata.
func (w *Webhook) lookup(ctx context.Context, stripeSub *stripe.Subscription) (domain.Subscription, error) {
	if stripeSub.Customer != nil && stripeSub.Customer.ID != "" {
		sub, err := w.subs.GetByCustomer(ctx, stripeSub.Customer.ID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Subscription{}, err
		}
	}
	if userID := strings.TrimSpace(stripeSub.Metadata["user_id"]); userID != "" {
		sub, err := w.subs.Get(ctx, userID)
		if err != nil {
			return domain.Subscription{}, err
		}
		sub.UserID = userID
		if stripeSub.Customer != nil {
			sub.StripeCustomerID = stripeSub.Customer.ID
		}
		return sub, nil
	}
	return domain.Subscription{}, fmt.Errorf("billing: subscription %s: %w", stripeSub.ID, domain.ErrNotFound)
}

func (w *Webhook) planFor(stripeSub *stripe.Subscription) (domain.PlanType, bool) {
	if stripeSub.Items != nil {
		for _, item := range stripeSub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if plan, ok := w.pricePlans[item.Price.ID]; ok {
				return plan, true
			}
		}
	}
	if plan, err := domain.ParsePlan(stripeSub.Metadata["plan"]); err == nil {
		return plan, true
	}
	return "", false
}
