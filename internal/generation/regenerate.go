package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storyboardgen/internal/domain"
)

// RegenerateRequest targets one scene of a session. An empty Prompt keeps the
// current one. PriorImage is a data URL or remote URL of the previous attempt.
type RegenerateRequest struct {
	Index      int
	Prompt     string
	PriorImage string
}

// Regenerate re-runs a single scene with the same credit rules as Run for a
// one-scene batch. The slot keeps its previous state until the new attempt
// settles and then is overwritten.
func (o *Orchestrator) Regenerate(ctx context.Context, s *Session, req RegenerateRequest) (*RunResult, error) {
	if strings.TrimSpace(s.Auth.UserID) == "" {
		return nil, domain.ErrUnauthorized
	}
	prompts := s.Prompts()
	if req.Index < 0 || req.Index >= len(prompts) {
		return nil, domain.NewValidationError("index", fmt.Sprintf("scene %d does not exist", req.Index))
	}
	prior := strings.TrimSpace(req.PriorImage)
	if len(s.References) == 0 && prior == "" {
		return nil, domain.NewValidationError("references", "at least one reference image is required")
	}

	refs := o.references(ctx, s, prior)
	if len(refs) == 0 {
		return nil, domain.NewValidationError("prior_image", "the previous image could not be loaded and no reference images were sent")
	}

	usage, err := o.preflight(ctx, s, 1)
	if err != nil {
		return nil, err
	}

	if p := strings.TrimSpace(req.Prompt); p != "" {
		s.setPrompt(req.Index, p)
	}
	prompt := s.Prompts()[req.Index]

	size := s.Size.Normalize()
	payload, genErr := o.model.Generate(ctx, RenderPrompt(prompt, size, len(refs)), refs, size)
	slot := s.settle(req.Index, payload, genErr)

	res := &RunResult{Usage: usage, Results: s.Results()}
	if genErr != nil {
		o.logger.Warn().Err(genErr).Str("user_id", s.Auth.UserID).Int("scene", req.Index).Msg("scene regeneration failed")
		res.ProjectID = s.ProjectID()
		return res, nil
	}

	updated, err := o.ledger.Consume(ctx, s.Auth.UserID, 1, s.Budget.Plan)
	switch {
	case err == nil:
		res.Usage = updated
	case errors.Is(err, domain.ErrCreditLimitExceeded):
		o.settleCreditRace(ctx, s, res, 1)
	default:
		res.DebitErr = err
		o.logger.Error().Err(err).Str("user_id", s.Auth.UserID).Msg("credit debit failed")
	}

	if slot.HasImage() {
		o.save(ctx, s, res)
	}
	res.ProjectID = s.ProjectID()
	return res, nil
}

// references prepends the previous attempt to the session references.
// An unreadable prior image is logged and skipped.
func (o *Orchestrator) references(ctx context.Context, s *Session, prior string) []domain.ReferenceImage {
	refs := append([]domain.ReferenceImage(nil), s.References...)
	if prior == "" || o.resolver == nil {
		return refs
	}
	img, err := o.resolver.Resolve(ctx, prior)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", s.Auth.UserID).Msg("prior image skipped")
		return refs
	}
	return append([]domain.ReferenceImage{img}, refs...)
}
