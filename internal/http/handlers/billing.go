package handlers

import (
	"errors"
	"io"
	"net/http"

	"storyboardgen/internal/billing"
	"storyboardgen/internal/domain"
)

const maxWebhookBytes = 64 << 10

func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		a.error(w, http.StatusRequestEntityTooLarge, "bad_request", "payload too large")
		return
	}
	out, err := a.Billing.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		a.json(w, http.StatusOK, out)
	case errors.Is(err, billing.ErrWebhookNotConfigured):
		a.error(w, http.StatusServiceUnavailable, "not_configured", "billing webhook is not configured")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
	default:
		a.fail(w, r, err)
	}
}
