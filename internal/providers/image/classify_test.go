package image

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"

	"storyboardgen/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"entity not found", errors.New("rpc error: Requested entity was not found."), domain.ErrMissingAPIKey},
		{"invalid key", errors.New("googleapi: Error 400: API key not valid. Please pass a valid API key."), domain.ErrMissingAPIKey},
		{"quota", errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)."), domain.ErrModelRateLimited},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED"), domain.ErrModelRateLimited},
		{"digits in message", errors.New("upstream request 4291 failed"), domain.ErrModelUnavailable},
		{"api error 403", &googleapi.Error{Code: 403, Message: "forbidden"}, domain.ErrMissingAPIKey},
		{"api error 429", fmt.Errorf("generate: %w", &googleapi.Error{Code: 429}), domain.ErrModelRateLimited},
		{"deadline", context.DeadlineExceeded, domain.ErrModelUnavailable},
		{"other", errors.New("internal error"), domain.ErrModelUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("Classify(%v) = %v, want kind %v", tc.err, got, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("Classify must keep the cause")
			}
		})
	}
}

func TestClassifyThrottlingIsNotACreditError(t *testing.T) {
	got := Classify(&googleapi.Error{Code: 429, Message: "Resource has been exhausted"})
	if !errors.Is(got, domain.ErrModelUnavailable) || !errors.Is(got, domain.ErrModelRateLimited) {
		t.Fatalf("throttling must be an unavailable model: %v", got)
	}
	if errors.Is(got, domain.ErrCreditExhaustedUpstream) || errors.Is(got, domain.ErrInsufficientCredits) {
		t.Fatalf("throttling must not be reported as a credit problem: %v", got)
	}
}

func TestClassifyKeepsTaggedErrors(t *testing.T) {
	tagged := &domain.ModelError{Kind: domain.ErrMissingAPIKey}
	if got := Classify(tagged); got != error(tagged) {
		t.Fatalf("tagged error was rewrapped: %v", got)
	}
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) must be nil")
	}
}
