package llm

import (
	"context"
)

// Provider is an opaque text-in/text-out language model
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the raw reply text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains a single prompt
type CompletionRequest struct {
	// Prompt is the user message
	Prompt string

	// System is an optional system instruction
	System string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature for sampling; 0 means DefaultTemperature
	Temperature float64

	// JSON asks the backend to constrain the reply to a single JSON object
	// where it has a way to do so
	JSON bool
}

// CompletionResponse contains the model's raw reply
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// DefaultTemperature keeps both extraction and answering close to greedy decoding
const DefaultTemperature = 0.1

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Model:     "",
		Timeout:   60,
		MaxTokens: 1200,
	}
}

func resolveMaxTokens(req CompletionRequest, cfg Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 1000
}

func resolveTemperature(req CompletionRequest) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return DefaultTemperature
}
