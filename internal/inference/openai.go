package inference

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend talks to an OpenAI-compatible chat-completions endpoint
// with bearer auth and JSON response mode.
type OpenAIBackend struct {
	client *openai.Client
	cfg    Config
}

func NewOpenAIBackend(cfg Config) *OpenAIBackend {
	cfg = cfg.withDefaults(DefaultOpenAIModel)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIBackend{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (b *OpenAIBackend) Name() string { return ProviderOpenAI }

func (b *OpenAIBackend) Analyze(ctx context.Context, prompt string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: float32(b.cfg.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		te := &TransportError{Backend: ProviderOpenAI, Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			te.StatusCode = apiErr.HTTPStatusCode
		}
		return nil, te
	}
	if len(resp.Choices) == 0 {
		return nil, &ParseError{Backend: ProviderOpenAI, Err: errors.New("no choices in response")}
	}
	return ParseResponse(ProviderOpenAI, resp.Choices[0].Message.Content)
}
