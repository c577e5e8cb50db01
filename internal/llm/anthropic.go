package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	anthropicDefaultModel = "claude-3-5-haiku-20241022"
	anthropicDefaultURL   = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
)

// AnthropicProvider calls the Claude Messages API
type AnthropicProvider struct {
	baseURL  string
	endpoint jsonEndpoint
	config   Config
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

// NewAnthropicProvider creates a provider; an API key is required
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultURL
	}

	return &AnthropicProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		endpoint: jsonEndpoint{
			provider: "anthropic",
			client:   newHTTPClient(config, 60*time.Second),
			headers: map[string]string{
				"x-api-key":         config.APIKey,
				"anthropic-version": anthropicVersion,
			},
			errMessage: func(body []byte) string {
				var apiErr struct {
					Error struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error"`
				}
				if json.Unmarshal(body, &apiErr) != nil || apiErr.Error.Message == "" {
					return ""
				}
				return apiErr.Error.Type + ": " + apiErr.Error.Message
			},
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// IsAvailable sends a tiny completion; there is no cheaper authenticated call
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	var resp anthropicResponse
	err := p.endpoint.post(ctx, p.baseURL+"/v1/messages", anthropicRequest{
		Model:     p.model(""),
		MaxTokens: 10,
		Messages:  []anthropicMessage{{Role: "user", Content: "Hi"}},
	}, &resp)
	return err == nil
}

// Complete sends one user turn. JSON requests prefill the assistant turn
// with "{" so the reply starts inside the object.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	apiReq := anthropicRequest{
		Model:       p.model(req.Model),
		MaxTokens:   resolveMaxTokens(req, p.config),
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: resolveTemperature(req),
	}
	prefill := ""
	if req.JSON {
		prefill = "{"
		apiReq.Messages = append(apiReq.Messages, anthropicMessage{Role: "assistant", Content: prefill})
	}

	var resp anthropicResponse
	if err := p.endpoint.post(ctx, p.baseURL+"/v1/messages", apiReq, &resp); err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("no content in Anthropic response")
	}

	var text strings.Builder
	text.WriteString(prefill)
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Text:       strings.TrimSpace(text.String()),
		Model:      resp.Model,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func (p *AnthropicProvider) model(override string) string {
	if override != "" {
		return override
	}
	if p.config.Model != "" {
		return p.config.Model
	}
	return anthropicDefaultModel
}
