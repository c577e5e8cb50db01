package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const ollamaDefaultURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server through /api/chat
type OllamaProvider struct {
	baseURL  string
	endpoint jsonEndpoint
	config   Config
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`

	// only present once done
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// NewOllamaProvider creates a provider for a local or remote Ollama server
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}

	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		endpoint: jsonEndpoint{
			provider: "ollama",
			// local models are slow on long extraction prompts
			client: newHTTPClient(config, 120*time.Second),
			errMessage: func(body []byte) string {
				var apiErr struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(body, &apiErr)
				return apiErr.Error
			},
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks that the server answers the model listing
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	return p.endpoint.get(ctx, p.baseURL+"/api/tags")
}

// Complete sends one non-streaming chat turn. JSON requests use Ollama's
// format=json mode, which keeps small models from wrapping the reply in prose.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, gemma2)")
	}

	chat := ollamaChatRequest{
		Model:  model,
		Stream: false,
		Options: ollamaOptions{
			Temperature: resolveTemperature(req),
			NumPredict:  resolveMaxTokens(req, p.config),
		},
	}
	if req.System != "" {
		chat.Messages = append(chat.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	chat.Messages = append(chat.Messages, ollamaMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		chat.Format = "json"
	}

	var resp ollamaChatResponse
	if err := p.endpoint.post(ctx, p.baseURL+"/api/chat", chat, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	text := strings.TrimSpace(resp.Message.Content)

	// some models report no counts; estimate at four characters a token
	tokens := resp.PromptEvalCount + resp.EvalCount
	if tokens == 0 {
		tokens = (len(req.Prompt) + len(text)) / 4
	}

	return &CompletionResponse{
		Text:       text,
		Model:      resp.Model,
		TokensUsed: tokens,
	}, nil
}
