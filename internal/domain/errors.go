package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrValidation              = errors.New("validation failed")
	ErrInsufficientCredits     = errors.New("insufficient credits")
	ErrCreditLimitExceeded     = errors.New("credit limit exceeded")
	ErrCreditExhaustedUpstream = errors.New("credits exhausted upstream")
	ErrModelUnavailable        = errors.New("model unavailable")
	ErrModelRateLimited        = errors.New("model rate limited")
	ErrMissingAPIKey           = errors.New("missing api key")
	ErrPersistence             = errors.New("persistence failed")
	ErrUnsupportedPlan         = errors.New("unsupported plan")
)

// ValidationError reports a rejected input before any side effect happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientCreditsError is returned when a run needs more credits than the
// ledger has left. Paid decides whether callers offer an upgrade or show the
// remaining count.
type InsufficientCreditsError struct {
	Requested int
	Remaining int
	Paid      bool
	Cause     error
}

func (e *InsufficientCreditsError) Error() string {
	msg := fmt.Sprintf("insufficient credits: requested %d, remaining %d", e.Requested, e.Remaining)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

func (e *InsufficientCreditsError) Unwrap() error { return e.Cause }

// ShowUpgrade reports whether the account should be pointed at the upgrade flow.
func (e *InsufficientCreditsError) ShowUpgrade() bool {
	return !e.Paid || e.Remaining == 0
}

// ModelError is the tagged error returned at the model boundary. Kind is
// ErrMissingAPIKey or ErrModelUnavailable. Provider throttling is an
// ErrModelUnavailable whose cause wraps ErrModelRateLimited; it never touches
// the credit ledger.
type ModelError struct {
	Kind  error
	Cause error
}

func (e *ModelError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *ModelError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
