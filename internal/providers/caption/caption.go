package caption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storyboardgen/internal/domain"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// Request asks for one TikTok and one Instagram caption per scene prompt.
type Request struct {
	ProjectName string
	Prompts     []string
	Locale      string
}

// Result is the caption set returned to clients.
type Result struct {
	Captions       domain.Captions `json:"captions"`
	Provider       string          `json:"provider"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
}

// Captioner writes social captions for a storyboard.
type Captioner interface {
	Captions(ctx context.Context, req Request) (*Result, error)
}

// KeySource resolves provider keys at call time.
type KeySource interface {
	GeminiAPIKey(ctx context.Context) (string, error)
	OpenAIAPIKey(ctx context.Context) (string, error)
}

// FallbackFunc observes provider failures that were answered by the fallback.
type FallbackFunc func(provider, reason string, err error)

func (r Request) validate() error {
	if len(r.Prompts) == 0 {
		return domain.NewValidationError("prompts", "at least one scene prompt is required")
	}
	return nil
}

func (r Request) scenes() []domain.Scene {
	scenes := make([]domain.Scene, 0, len(r.Prompts))
	for _, p := range r.Prompts {
		scenes = append(scenes, domain.PromptToScene(p))
	}
	return scenes
}

type modelPayload struct {
	TikTok    []string `json:"tiktok"`
	Instagram []string `json:"instagram"`
}

func buildPrompt(req Request) string {
	locale := coalesce(req.Locale, "en")
	sb := &strings.Builder{}
	sb.WriteString("You write short social media captions for an illustrated storyboard. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"tiktok":string[],"instagram":string[]}`)
	fmt.Fprintf(sb, ". Write exactly %d entries in each array, one per scene and in scene order. Use locale '%s' for language choices. TikTok captions are punchy with two or three hashtags. Instagram captions are one or two sentences followed by hashtags.", len(req.Prompts), locale)
	if name := strings.TrimSpace(req.ProjectName); name != "" {
		fmt.Fprintf(sb, " Storyboard title: %q.", name)
	}
	sb.WriteString(" Scenes:")
	for i, scene := range req.scenes() {
		fmt.Fprintf(sb, "\n%d. title=%q description=%q", i+1, scene.Title, scene.Description)
	}
	return sb.String()
}

// merge aligns the model output with the scene count, filling gaps from the fallback set.
func merge(parsed modelPayload, fallback domain.Captions, n int) domain.Captions {
	out := domain.Captions{TikTok: make([]string, n), Instagram: make([]string, n)}
	for i := 0; i < n; i++ {
		out.TikTok[i] = coalesce(at(parsed.TikTok, i), at(fallback.TikTok, i))
		out.Instagram[i] = coalesce(at(parsed.Instagram, i), at(fallback.Instagram, i))
	}
	return out
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload(raw string) (modelPayload, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return modelPayload{}, errors.New("empty payload")
	}
	var decoded modelPayload
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return modelPayload{}, err
	}
	if len(decoded.TikTok) == 0 && len(decoded.Instagram) == 0 {
		return modelPayload{}, errors.New("payload has no captions")
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// fallbackWith answers from the static captioner and records why.
func fallbackWith(ctx context.Context, static Captioner, notify FallbackFunc, provider string, req Request, reason string, err error) (*Result, error) {
	if notify != nil {
		notify(provider, reason, err)
	}
	if static == nil {
		static = NewStatic()
	}
	res, ferr := static.Captions(ctx, req)
	if ferr != nil {
		return nil, ferr
	}
	res.FallbackReason = reason
	return res, nil
}
