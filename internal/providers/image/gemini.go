// Package image adapts image generation backends to the orchestrator's model contract.
package image

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"storyboardgen/internal/domain"
)

// KeySource looks up a stored API key when none is configured.
type KeySource interface {
	GeminiAPIKey(ctx context.Context) (string, error)
}

type GeminiOptions struct {
	APIKey string
	Model  string
	Keys   KeySource
	Logger zerolog.Logger
}

// Gemini calls a Gemini image model through the generative-ai-go SDK.
type Gemini struct {
	apiKey string
	model  string
	keys   KeySource
	logger zerolog.Logger

	mu     sync.Mutex
	key    string
	client *genai.Client
}

func NewGemini(opts GeminiOptions) *Gemini {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	return &Gemini{
		apiKey: strings.TrimSpace(opts.APIKey),
		model:  model,
		keys:   opts.Keys,
		logger: opts.Logger.With().Str("provider", "gemini").Str("model", model).Logger(),
	}
}

// Generate sends the rendered prompt followed by the reference images and
// returns the first image part of the response.
func (g *Gemini) Generate(ctx context.Context, prompt string, refs []domain.ReferenceImage, size domain.SizeConfig) (domain.ImagePayload, error) {
	client, err := g.clientFor(ctx)
	if err != nil {
		return domain.ImagePayload{}, err
	}

	model := client.GenerativeModel(g.model)
	candidates := int32(1)
	model.CandidateCount = &candidates

	parts := make([]genai.Part, 0, len(refs)+1)
	parts = append(parts, genai.Text(prompt))
	for _, ref := range refs {
		parts = append(parts, genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		g.logger.Warn().Err(err).Msg("generate content failed")
		return domain.ImagePayload{}, Classify(err)
	}
	return extractImage(resp)
}

func extractImage(resp *genai.GenerateContentResponse) (domain.ImagePayload, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)}
		}
		return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: errors.New("empty response")}
	}
	var text []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Blob:
				if strings.HasPrefix(p.MIMEType, "image/") && len(p.Data) > 0 {
					return domain.ImagePayload{Data: p.Data, MIMEType: p.MIMEType}, nil
				}
			case genai.Text:
				text = append(text, string(p))
			}
		}
	}
	cause := errors.New("response contained no image")
	if len(text) > 0 {
		cause = fmt.Errorf("response contained no image: %s", truncate(strings.Join(text, " "), 200))
	}
	return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: cause}
}

// clientFor returns a client for the current key, rebuilding it when a
// stored key was rotated.
func (g *Gemini) clientFor(ctx context.Context) (*genai.Client, error) {
	key := g.apiKey
	if key == "" && g.keys != nil {
		stored, err := g.keys.GeminiAPIKey(ctx)
		if err != nil {
			return nil, &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: fmt.Errorf("load api key: %w", err)}
		}
		key = strings.TrimSpace(stored)
	}
	if key == "" {
		return nil, &domain.ModelError{Kind: domain.ErrMissingAPIKey}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil && g.key == key {
		return g.client, nil
	}
	client, err := genai.NewClient(context.WithoutCancel(ctx), option.WithAPIKey(key))
	if err != nil {
		return nil, Classify(fmt.Errorf("create gemini client: %w", err))
	}
	if g.client != nil {
		_ = g.client.Close()
	}
	g.client, g.key = client, key
	return client, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
