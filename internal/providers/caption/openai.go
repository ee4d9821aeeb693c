package caption

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAIOptions struct {
	APIKey     string
	Keys       KeySource
	Model      string
	BaseURL    string
	Extra      []option.RequestOption
	Fallback   Captioner
	OnFallback FallbackFunc
}

// OpenAI writes captions with the chat completions API.
type OpenAI struct {
	apiKey     string
	keys       KeySource
	model      string
	opts       []option.RequestOption
	fallback   Captioner
	onFallback FallbackFunc
}

func NewOpenAI(opts OpenAIOptions) *OpenAI {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	var reqOpts []option.RequestOption
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	reqOpts = append(reqOpts, opts.Extra...)
	return &OpenAI{
		apiKey:     strings.TrimSpace(opts.APIKey),
		keys:       opts.Keys,
		model:      model,
		opts:       reqOpts,
		fallback:   opts.Fallback,
		onFallback: opts.OnFallback,
	}
}

func (o *OpenAI) Captions(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := o.resolveKey(ctx)
	if key == "" {
		return o.useFallback(ctx, req, "missing_api_key", nil)
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(key)}, o.opts...)...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a social media copywriter that only responds with valid JSON."),
			openai.UserMessage(buildPrompt(req)),
		},
	})
	if err != nil {
		return o.useFallback(ctx, req, "http_request", err)
	}
	if len(resp.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	parsed, err := parseModelPayload(text)
	if err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	static, err := NewStatic().Captions(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{
		Captions: merge(parsed, static.Captions, len(req.Prompts)),
		Provider: openAIProviderName,
	}, nil
}

func (o *OpenAI) resolveKey(ctx context.Context) string {
	if o.apiKey != "" {
		return o.apiKey
	}
	if o.keys == nil {
		return ""
	}
	key, err := o.keys.OpenAIAPIKey(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(key)
}

func (o *OpenAI) useFallback(ctx context.Context, req Request, reason string, err error) (*Result, error) {
	return fallbackWith(ctx, o.fallback, o.onFallback, openAIProviderName, req, reason, err)
}
