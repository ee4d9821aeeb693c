package caption

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiTextModel = "gemini-2.5-flash"

type GeminiOptions struct {
	APIKey     string
	Keys       KeySource
	Model      string
	Fallback   Captioner
	OnFallback FallbackFunc
}

// Gemini writes captions with a Gemini text model.
type Gemini struct {
	apiKey     string
	keys       KeySource
	model      string
	fallback   Captioner
	onFallback FallbackFunc
}

func NewGemini(opts GeminiOptions) *Gemini {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiTextModel
	}
	return &Gemini{
		apiKey:     strings.TrimSpace(opts.APIKey),
		keys:       opts.Keys,
		model:      model,
		fallback:   opts.Fallback,
		onFallback: opts.OnFallback,
	}
}

func (g *Gemini) Captions(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := g.resolveKey(ctx)
	if key == "" {
		return g.useFallback(ctx, req, "missing_api_key", nil)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return g.useFallback(ctx, req, "client", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.SetTemperature(0.7)
	model.SetCandidateCount(1)
	model.ResponseMIMEType = "application/json"
	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return g.useFallback(ctx, req, "generate", err)
	}
	text := extractText(resp)
	if text == "" {
		return g.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	parsed, err := parseModelPayload(text)
	if err != nil {
		return g.useFallback(ctx, req, "parse_payload", err)
	}
	static, err := NewStatic().Captions(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{
		Captions: merge(parsed, static.Captions, len(req.Prompts)),
		Provider: geminiProviderName,
	}, nil
}

func (g *Gemini) resolveKey(ctx context.Context) string {
	if g.apiKey != "" {
		return g.apiKey
	}
	if g.keys == nil {
		return ""
	}
	key, err := g.keys.GeminiAPIKey(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(key)
}

func (g *Gemini) useFallback(ctx context.Context, req Request, reason string, err error) (*Result, error) {
	return fallbackWith(ctx, g.fallback, g.onFallback, geminiProviderName, req, reason, err)
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}
