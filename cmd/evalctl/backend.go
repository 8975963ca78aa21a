package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcreliability/engine/provider"
)

const openAIChatCompletionsURL = "https://api.openai.com/v1/chat/completions"

// openAIBackend is a minimal OpenAI-compatible chat completions client
// satisfying provider.Backend. The base URL is configurable so the same
// implementation serves any OpenAI-compatible endpoint (Azure OpenAI,
// a local vLLM gateway, etc).
type openAIBackend struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAIBackend(name, apiKey, baseURL string) *openAIBackend {
	if baseURL == "" {
		baseURL = openAIChatCompletionsURL
	}
	return &openAIBackend{
		name:       name,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *openAIBackend) Name() string { return b.name }

func (b *openAIBackend) CostPerToken(model string) float64 {
	// Flat estimate covering input+output tokens; good enough for cost
	// ceiling enforcement without per-model pricing tables.
	switch model {
	case "gpt-4o-mini":
		return 0.00000015
	default:
		return 0.000005
	}
}

func (b *openAIBackend) DowngradeModel(model string) string {
	if model == "gpt-4o-mini" {
		return ""
	}
	return "gpt-4o-mini"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Logprobs    bool          `json:"logprobs,omitempty"`
	TopLogprobs int           `json:"top_logprobs,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Logprobs *struct {
			Content []struct {
				Token       string `json:"token"`
				TopLogprobs []struct {
					Token   string  `json:"token"`
					Logprob float64 `json:"logprob"`
				} `json:"top_logprobs"`
			} `json:"content"`
		} `json:"logprobs"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (b *openAIBackend) Complete(ctx context.Context, req provider.Request, opts ...provider.Option) (*provider.Response, error) {
	for _, opt := range opts {
		opt(&req)
	}

	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.WantLogprobs {
		body.Logprobs = true
		body.TopLogprobs = 5
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completions call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completions returned no choices")
	}
	choice := parsed.Choices[0]

	out := &provider.Response{
		Content: choice.Message.Content,
		ModelID: req.Model,
		Usage: provider.TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
		CostUSD: float64(parsed.Usage.TotalTokens) * b.CostPerToken(req.Model),
	}

	if req.WantLogprobs && choice.Logprobs != nil {
		for _, tok := range choice.Logprobs.Content {
			for _, top := range tok.TopLogprobs {
				if top.Token == req.CalibrationToken {
					out.Logprobs = append(out.Logprobs, provider.Logprob{Token: top.Token, LogProb: top.Logprob})
				}
			}
		}
	}

	return out, nil
}
