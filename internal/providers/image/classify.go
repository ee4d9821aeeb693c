package image

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"storyboardgen/internal/domain"
)

// Classify maps a provider error onto the tagged model error kinds. This is
// the only place provider messages are inspected.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var tagged *domain.ModelError
	if errors.As(err, &tagged) {
		return err
	}
	kind := classifyKind(err)
	if kind == domain.ErrModelRateLimited {
		return &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: fmt.Errorf("%w: %w", domain.ErrModelRateLimited, err)}
	}
	return &domain.ModelError{Kind: kind, Cause: err}
}

func classifyKind(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrModelUnavailable
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.ErrMissingAPIKey
		case http.StatusTooManyRequests:
			return domain.ErrModelRateLimited
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "entity was not found"),
		strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "api_key_invalid"),
		strings.Contains(msg, "api key not found"),
		strings.Contains(msg, "missing api key"):
		return domain.ErrMissingAPIKey
	case strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "resource has been exhausted"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return domain.ErrModelRateLimited
	default:
		return domain.ErrModelUnavailable
	}
}
