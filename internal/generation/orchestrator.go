// Package generation fans scene prompts out to the image model, debits the
// credit ledger for what succeeded and hands settled runs to persistence.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"storyboardgen/internal/domain"
)

// Model renders one image per call.
type Model interface {
	Generate(ctx context.Context, prompt string, refs []domain.ReferenceImage, size domain.SizeConfig) (domain.ImagePayload, error)
}

// Ledger is the part of the usage ledger the orchestrator needs.
type Ledger interface {
	Usage(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error)
	Consume(ctx context.Context, userID string, amount int, plan domain.PlanType) (domain.MonthlyUsage, error)
}

// Saver persists a settled run and returns the project id.
type Saver interface {
	SaveRun(ctx context.Context, req domain.SaveRunRequest) (string, error)
}

// ImageResolver turns a data URL or remote image URL into a reference image.
type ImageResolver interface {
	Resolve(ctx context.Context, raw string) (domain.ReferenceImage, error)
}

// Options tunes the orchestrator. MaxParallelScenes <= 0 means unbounded.
type Options struct {
	MaxParallelScenes int
}

type Orchestrator struct {
	model    Model
	ledger   Ledger
	saver    Saver
	resolver ImageResolver
	logger   zerolog.Logger
	opts     Options
}

func NewOrchestrator(model Model, ledger Ledger, saver Saver, resolver ImageResolver, logger zerolog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		model:    model,
		ledger:   ledger,
		saver:    saver,
		resolver: resolver,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		opts:     opts,
	}
}

// RunResult is the outcome of a settled run. Results is always populated
// once generation started; SaveErr, DebitErr and CreditErr report problems
// that do not invalidate the generated images.
type RunResult struct {
	Results   []domain.SceneResult `json:"results"`
	Usage     domain.MonthlyUsage  `json:"usage"`
	ProjectID string               `json:"project_id,omitempty"`
	SaveErr   error                `json:"-"`
	DebitErr  error                `json:"-"`
	CreditErr error                `json:"-"`
}

// Successful returns the number of scenes holding an image.
func (r *RunResult) Successful() int {
	return domain.CountSuccessful(r.Results)
}

// Run generates every scene of s concurrently and waits for all of them to
// settle. Validation and pre-flight credit errors are returned before any
// model call; everything after that is reported on the RunResult.
func (o *Orchestrator) Run(ctx context.Context, s *Session) (*RunResult, error) {
	prompts := s.Prompts()
	if err := validateRun(s, prompts); err != nil {
		return nil, err
	}

	usage, err := o.preflight(ctx, s, len(prompts))
	if err != nil {
		return nil, err
	}

	prompts = s.startAll()
	o.fanOut(ctx, s, prompts)

	res := &RunResult{Usage: usage}
	o.settle(ctx, s, len(prompts), res)
	return res, nil
}

func validateRun(s *Session, prompts []string) error {
	if strings.TrimSpace(s.Auth.UserID) == "" {
		return domain.ErrUnauthorized
	}
	if len(s.References) == 0 {
		return domain.NewValidationError("references", "at least one reference image is required")
	}
	if len(prompts) == 0 {
		return domain.NewValidationError("prompts", "at least one scene prompt is required")
	}
	return nil
}

func (o *Orchestrator) preflight(ctx context.Context, s *Session, needed int) (domain.MonthlyUsage, error) {
	usage, err := o.ledger.Usage(ctx, s.Auth.UserID, s.Budget.Plan)
	if err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("read usage: %w", err)
	}
	if needed > usage.Remaining {
		return usage, &domain.InsufficientCreditsError{
			Requested: needed,
			Remaining: usage.Remaining,
			Paid:      s.Budget.Paid(),
		}
	}
	return usage, nil
}

// fanOut issues one model call per prompt. Calls never cancel each other and
// a failed call only marks its own slot.
func (o *Orchestrator) fanOut(ctx context.Context, s *Session, prompts []string) {
	var (
		g    errgroup.Group
		refs = s.References
		size = s.Size.Normalize()
	)
	if o.opts.MaxParallelScenes > 0 {
		g.SetLimit(o.opts.MaxParallelScenes)
	}
	for i, prompt := range prompts {
		g.Go(func() error {
			payload, err := o.model.Generate(ctx, RenderPrompt(prompt, size, len(refs)), refs, size)
			s.settle(i, payload, err)
			if err != nil {
				o.logger.Warn().Err(err).Str("user_id", s.Auth.UserID).Int("scene", i).Msg("scene generation failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// settle debits the ledger once for the successful scenes, resyncs usage
// after a credit race and saves the run.
func (o *Orchestrator) settle(ctx context.Context, s *Session, requested int, res *RunResult) {
	res.Results = s.Results()
	successes := domain.CountSuccessful(res.Results)
	userID, plan := s.Auth.UserID, s.Budget.Plan

	creditRace := false
	if successes > 0 {
		usage, err := o.ledger.Consume(ctx, userID, successes, plan)
		switch {
		case err == nil:
			res.Usage = usage
		case errors.Is(err, domain.ErrCreditLimitExceeded):
			creditRace = true
		default:
			res.DebitErr = err
			o.logger.Error().Err(err).Str("user_id", userID).Int("amount", successes).Msg("credit debit failed")
		}
	}

	if creditRace {
		o.settleCreditRace(ctx, s, res, requested)
	}

	if successes > 0 {
		o.save(ctx, s, res)
	}
	res.ProjectID = s.ProjectID()

	o.logger.Info().
		Str("user_id", userID).
		Int("scenes", len(res.Results)).
		Int("succeeded", successes).
		Str("project_id", res.ProjectID).
		Msg("generation settled")
}

// settleCreditRace resyncs usage after the ledger rejected a debit that
// pre-flight had allowed.
func (o *Orchestrator) settleCreditRace(ctx context.Context, s *Session, res *RunResult, requested int) {
	if fresh, err := o.ledger.Usage(ctx, s.Auth.UserID, s.Budget.Plan); err == nil {
		res.Usage = fresh
	}
	res.CreditErr = &domain.InsufficientCreditsError{
		Requested: requested,
		Remaining: res.Usage.Remaining,
		Paid:      s.Budget.Paid(),
		Cause:     domain.ErrCreditExhaustedUpstream,
	}
}

func (o *Orchestrator) save(ctx context.Context, s *Session, res *RunResult) {
	if o.saver == nil {
		return
	}
	id, err := o.saver.SaveRun(ctx, s.saveRequest())
	if id != "" {
		s.SetProjectID(id)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		res.SaveErr = err
		o.logger.Error().Err(err).Str("user_id", s.Auth.UserID).Str("project_id", id).Msg("save run failed")
	}
}

func sceneErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		return "The image model API key is missing or invalid."
	case errors.Is(err, domain.ErrModelRateLimited):
		return "The image model is busy. Wait a moment and regenerate this scene."
	case errors.Is(err, context.DeadlineExceeded):
		return "Generation timed out."
	case errors.Is(err, context.Canceled):
		return "Generation was cancelled."
	case errors.Is(err, domain.ErrModelUnavailable):
		return "The image model is unavailable. Try regenerating this scene."
	default:
		return err.Error()
	}
}
