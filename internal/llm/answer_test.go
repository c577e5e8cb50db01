package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *CompletionResponse
	err       error
	lastReq   CompletionRequest
	calls     int
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

func TestAnswerer_EmptyContext(t *testing.T) {
	mock := &MockProvider{name: "mock", response: &CompletionResponse{Text: "unused"}}
	answerer := NewAnswerer(mock, 0, nil)

	got := answerer.Answer(context.Background(), "What is encrypted?", "   ")
	if got != NoContextAnswer {
		t.Errorf("Expected NoContextAnswer, got %q", got)
	}
	if mock.calls != 0 {
		t.Errorf("Provider should not be called without context, got %d calls", mock.calls)
	}
}

func TestAnswerer_Disabled(t *testing.T) {
	answerer := NewAnswerer(nil, 0, nil)

	if answerer.IsEnabled() {
		t.Error("Expected answerer to be disabled")
	}
	if answerer.ProviderName() != "" {
		t.Errorf("Expected empty provider name, got %q", answerer.ProviderName())
	}

	got := answerer.Answer(context.Background(), "q", "NODE: Policy_Section_1")
	if got != "LLM not available for answering questions." {
		t.Errorf("Unexpected answer: %q", got)
	}
}

func TestAnswerer_Success(t *testing.T) {
	mock := &MockProvider{
		name:     "mock",
		response: &CompletionResponse{Text: "  Data must be encrypted.\n", Model: "m", TokensUsed: 12},
	}
	answerer := NewAnswerer(mock, 0, nil)

	got := answerer.Answer(context.Background(), "What is encrypted?", "NODE: req_1_1")
	if got != "Data must be encrypted." {
		t.Errorf("Unexpected answer: %q", got)
	}
	if mock.lastReq.MaxTokens != DefaultAnswerMaxTokens {
		t.Errorf("Expected max tokens %d, got %d", DefaultAnswerMaxTokens, mock.lastReq.MaxTokens)
	}
	if !strings.Contains(mock.lastReq.Prompt, "NODE: req_1_1") {
		t.Error("Prompt should carry the graph context")
	}
	if !strings.Contains(mock.lastReq.Prompt, "QUESTION: What is encrypted?") {
		t.Error("Prompt should carry the question")
	}
}

func TestAnswerer_ProviderError(t *testing.T) {
	mock := &MockProvider{name: "mock", err: errors.New("rate limited")}
	answerer := NewAnswerer(mock, 64, nil)

	got := answerer.Answer(context.Background(), "q", "NODE: x")
	if got != "Error generating answer: rate limited" {
		t.Errorf("Unexpected answer: %q", got)
	}
	if mock.lastReq.MaxTokens != 64 {
		t.Errorf("Expected max tokens 64, got %d", mock.lastReq.MaxTokens)
	}
}

func TestBuildExtractionPrompt_Truncates(t *testing.T) {
	text := strings.Repeat("é", 50)
	prompt := BuildExtractionPrompt(text, 10)

	if !strings.Contains(prompt, strings.Repeat("é", 10)) {
		t.Error("Expected truncated document in prompt")
	}
	if strings.Contains(prompt, strings.Repeat("é", 11)) {
		t.Error("Document should be cut at 10 characters")
	}
	if !strings.Contains(prompt, `"policy_sections"`) {
		t.Error("Prompt should describe the JSON shape")
	}
}

func TestExtractionRequest(t *testing.T) {
	req := ExtractionRequest("Section 1", 0, 1200)
	if req.MaxTokens != 1200 {
		t.Errorf("Expected 1200 max tokens, got %d", req.MaxTokens)
	}
	if req.Temperature != DefaultTemperature {
		t.Errorf("Expected temperature %v, got %v", DefaultTemperature, req.Temperature)
	}
	if req.System == "" {
		t.Error("Expected system prompt")
	}
	if !req.JSON {
		t.Error("Expected extraction to ask for a JSON reply")
	}
}
