package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/logging"
)

// NoContextAnswer is returned when there is nothing to ground an answer on
const NoContextAnswer = "I couldn't find relevant information in the knowledge graph to answer this question."

// DefaultAnswerMaxTokens bounds generated answers
const DefaultAnswerMaxTokens = 256

// Answerer generates answers from a graph context block
type Answerer struct {
	provider  Provider
	maxTokens int
	logger    *log.Logger
}

// NewAnswerer creates an answerer; a nil provider disables it
func NewAnswerer(provider Provider, maxTokens int, logger *log.Logger) *Answerer {
	if maxTokens <= 0 {
		maxTokens = DefaultAnswerMaxTokens
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Answerer{
		provider:  provider,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// IsEnabled returns true if a provider is configured
func (a *Answerer) IsEnabled() bool {
	return a != nil && a.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (a *Answerer) ProviderName() string {
	if !a.IsEnabled() {
		return ""
	}
	return a.provider.Name()
}

// Answer asks the provider to answer question from graphContext. Provider
// failures come back as answer text rather than errors.
func (a *Answerer) Answer(ctx context.Context, question, graphContext string) string {
	if strings.TrimSpace(graphContext) == "" {
		return NoContextAnswer
	}
	if !a.IsEnabled() {
		return "LLM not available for answering questions."
	}

	resp, err := a.provider.Complete(ctx, CompletionRequest{
		Prompt:      BuildAnswerPrompt(question, graphContext),
		System:      answerSystem,
		MaxTokens:   a.maxTokens,
		Temperature: DefaultTemperature,
	})
	if err != nil {
		a.logger.Error("answer generation failed", "provider", a.provider.Name(), "err", err)
		return fmt.Sprintf("Error generating answer: %v", err)
	}

	a.logger.Debug("answer generated", "model", resp.Model, "tokens", resp.TokensUsed)
	return strings.TrimSpace(resp.Text)
}
