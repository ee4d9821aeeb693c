package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/notify"
)

const testSecret = "whsec_test"

type memSubs struct {
	mu   sync.Mutex
	rows map[string]domain.Subscription
}

func newMemSubs(rows ...domain.Subscription) *memSubs {
	m := &memSubs{rows: map[string]domain.Subscription{}}
	for _, r := range rows {
		m.rows[r.UserID] = r
	}
	return m
}

func (m *memSubs) Get(_ context.Context, userID string) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.rows[userID]; ok {
		return sub, nil
	}
	return domain.Subscription{UserID: userID, Plan: domain.PlanFree}, nil
}

func (m *memSubs) GetByCustomer(_ context.Context, customerID string) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.rows {
		if sub.StripeCustomerID == customerID {
			return sub, nil
		}
	}
	return domain.Subscription{}, domain.ErrNotFound
}

func (m *memSubs) Upsert(_ context.Context, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sub.UserID] = sub
	return nil
}

type planCall struct {
	userID string
	plan   domain.PlanType
	reset  bool
}

type fakeLedger struct {
	calls []planCall
}

func (f *fakeLedger) ChangePlan(_ context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	f.calls = append(f.calls, planCall{userID: userID, plan: plan})
	return domain.MonthlyUsage{}, nil
}

func (f *fakeLedger) ResetForNewPlan(_ context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	f.calls = append(f.calls, planCall{userID: userID, plan: plan, reset: true})
	return domain.MonthlyUsage{}, nil
}

type outbox struct {
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestWebhook(subs *memSubs, ledger *fakeLedger, mail *outbox) *Webhook {
	return NewWebhook(Options{
		Secret:     testSecret,
		PricePlans: map[string]string{"price_pro": "pro", "price_bad": "platinum"},
	}, subs, ledger, mail, zerolog.Nop())
}

func event(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, id, typ, object))
}

func TestCheckoutCompletedActivatesPlan(t *testing.T) {
	subs, ledger, mail := newMemSubs(), &fakeLedger{}, &outbox{}
	w := newTestWebhook(subs, ledger, mail)
	payload := event("evt_1", "checkout.session.completed", `{
		"id":"cs_1","object":"checkout.session","client_reference_id":"user-1",
		"customer":"cus_1","subscription":"sub_1","metadata":{"plan":"basic"},
		"customer_details":{"email":"ana@example.com"}}`)

	out, err := w.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, domain.PlanBasic, out.Plan)

	sub, _ := subs.Get(context.Background(), "user-1")
	assert.True(t, sub.IsActive)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, []planCall{{userID: "user-1", plan: domain.PlanBasic, reset: true}}, ledger.calls)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "ana@example.com", mail.sent[0].ToEmail)
}

func TestSubscriptionUpdatedMapsPrice(t *testing.T) {
	subs := newMemSubs(domain.Subscription{UserID: "user-2", Plan: domain.PlanBasic, IsActive: true, StripeCustomerID: "cus_2"})
	ledger := &fakeLedger{}
	w := newTestWebhook(subs, ledger, &outbox{})
	payload := event("evt_2", "customer.subscription.updated", `{
		"id":"sub_2","object":"subscription","customer":"cus_2","status":"active",
		"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_pro","object":"price"}}]}}`)

	out, err := w.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, out.Plan)
	sub, _ := subs.Get(context.Background(), "user-2")
	assert.Equal(t, domain.PlanPro, sub.Plan)
	assert.Equal(t, "sub_2", sub.StripeSubscriptionID)
	assert.Equal(t, []planCall{{userID: "user-2", plan: domain.PlanPro}}, ledger.calls)
}

func TestSubscriptionPastDueFallsBackToFree(t *testing.T) {
	subs := newMemSubs(domain.Subscription{UserID: "user-3", Plan: domain.PlanPro, IsActive: true, StripeCustomerID: "cus_3"})
	ledger := &fakeLedger{}
	w := newTestWebhook(subs, ledger, &outbox{})
	payload := event("evt_3", "customer.subscription.updated", `{"id":"sub_3","object":"subscription","customer":"cus_3","status":"past_due"}`)

	out, err := w.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, out.Plan)
	sub, _ := subs.Get(context.Background(), "user-3")
	assert.False(t, sub.IsActive)
	assert.Equal(t, domain.PlanPro, sub.Plan)
}

func TestSubscriptionDeletedDowngrades(t *testing.T) {
	subs := newMemSubs(domain.Subscription{UserID: "user-4", Plan: domain.PlanBusiness, IsActive: true, StripeCustomerID: "cus_4"})
	ledger := &fakeLedger{}
	w := newTestWebhook(subs, ledger, &outbox{})
	payload := event("evt_4", "customer.subscription.deleted", `{"id":"sub_4","object":"subscription","customer":"cus_4","status":"canceled"}`)

	_, err := w.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	sub, _ := subs.Get(context.Background(), "user-4")
	assert.Equal(t, domain.PlanFree, sub.Plan)
	assert.False(t, sub.IsActive)
	assert.Equal(t, []planCall{{userID: "user-4", plan: domain.PlanFree}}, ledger.calls)
}

func TestUnknownCustomerIsNotFound(t *testing.T) {
	w := newTestWebhook(newMemSubs(), &fakeLedger{}, &outbox{})
	payload := event("evt_5", "customer.subscription.deleted", `{"id":"sub_5","object":"subscription","customer":"cus_missing"}`)
	_, err := w.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRejectsBadSignatureAndMissingSecret(t *testing.T) {
	subs, ledger := newMemSubs(), &fakeLedger{}
	w := newTestWebhook(subs, ledger, &outbox{})
	payload := event("evt_6", "checkout.session.completed", `{"id":"cs_6","object":"checkout.session","client_reference_id":"u","metadata":{"plan":"pro"}}`)

	_, err := w.Handle(context.Background(), payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, ledger.calls)

	unconfigured := NewWebhook(Options{}, subs, ledger, nil, zerolog.Nop())
	_, err = unconfigured.Handle(context.Background(), payload, sign(payload, "", time.Now()))
	assert.True(t, errors.Is(err, ErrWebhookNotConfigured))
}

func TestIgnoresUnrelatedEvents(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWebhook(newMemSubs(), ledger, &outbox{})
	payload := event("evt_7", "invoice.paid", `{"id":"in_1","object":"invoice"}`)
	out, err := w.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.False(t, out.Handled)
	assert.Empty(t, ledger.calls)
}
