package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"storyboardgen/internal/billing"
	"storyboardgen/internal/domain"
	"storyboardgen/internal/generation"
	"storyboardgen/internal/middleware"
	"storyboardgen/internal/project"
	"storyboardgen/internal/providers/caption"
)

// Generator runs and regenerates storyboard scenes.
type Generator interface {
	Run(ctx context.Context, s *generation.Session) (*generation.RunResult, error)
	Regenerate(ctx context.Context, s *generation.Session, req generation.RegenerateRequest) (*generation.RunResult, error)
}

// UsageService resolves budgets and current usage.
type UsageService interface {
	Context(ctx context.Context, userID string) (domain.UsageContext, error)
	Current(ctx context.Context, userID string) (domain.MonthlyUsage, domain.UsageContext, error)
}

// ReferenceResolver turns client supplied images into model references.
type ReferenceResolver interface {
	ResolveAll(ctx context.Context, raws []string) ([]domain.ReferenceImage, error)
}

// ProjectStore is the read side of project persistence.
type ProjectStore interface {
	List(ctx context.Context, userID string, limit, offset int) ([]domain.Project, error)
	Get(ctx context.Context, userID, projectID string) (domain.Project, error)
	Delete(ctx context.Context, userID, projectID string) error
	Archive(ctx context.Context, userID, projectID string) (*project.Archive, error)
}

// PresetStore keeps named prompt sets.
type PresetStore interface {
	List(ctx context.Context, userID string) ([]domain.PromptPreset, error)
	Save(ctx context.Context, userID, name string, prompts []string) (domain.PromptPreset, error)
	Delete(ctx context.Context, userID, id string) error
}

// BillingWebhook applies signed payment events.
type BillingWebhook interface {
	Handle(ctx context.Context, payload []byte, signature string) (billing.Outcome, error)
}

type App struct {
	Logger            zerolog.Logger
	Generator         Generator
	Usage             UsageService
	References        ReferenceResolver
	Projects          ProjectStore
	Presets           PresetStore
	Captions          caption.Captioner
	Billing           BillingWebhook
	GenerationTimeout time.Duration
	DB                Pinger
}

const maxBodyBytes = 64 << 20

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": msg},
	})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (a *App) currentAuth(w http.ResponseWriter, r *http.Request) (domain.AuthContext, bool) {
	auth, ok := middleware.AuthFromContext(r.Context())
	if !ok || auth.UserID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return domain.AuthContext{}, false
	}
	return auth, true
}

// fail maps domain errors onto the JSON error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		credits *domain.InsufficientCreditsError
		invalid *domain.ValidationError
	)
	switch {
	case errors.As(err, &credits):
		a.json(w, http.StatusPaymentRequired, map[string]any{"error": creditBody(credits)})
	case errors.As(err, &invalid):
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", invalid.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrMissingAPIKey):
		a.error(w, http.StatusServiceUnavailable, "missing_api_key", "the image model is not configured")
	case errors.Is(err, domain.ErrModelUnavailable):
		a.error(w, http.StatusBadGateway, "model_unavailable", "the model is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		a.error(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func creditBody(e *domain.InsufficientCreditsError) map[string]any {
	action := "remaining"
	if e.ShowUpgrade() {
		action = "upgrade"
	}
	code := "insufficient_credits"
	if errors.Is(e, domain.ErrCreditExhaustedUpstream) {
		code = "credit_exhausted"
	}
	return map[string]any{
		"code":      code,
		"message":   e.Error(),
		"action":    action,
		"requested": e.Requested,
		"remaining": e.Remaining,
	}
}

// detached keeps long generations running when the client disconnects so
// debits and saves still happen for the work already done.
func (a *App) detached(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := a.GenerationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
}
