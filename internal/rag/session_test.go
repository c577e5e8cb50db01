package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/policygraph/internal/llm"
	"github.com/ppiankov/policygraph/internal/model"
	"github.com/ppiankov/policygraph/internal/retrieve"
)

const extractionReply = "```json\n" + `{
  "policy_sections": [
    {"id": "section_1", "title": "Access Control", "content": "must use encryption",
     "requirements": [{"id": "req_1.1", "text": "Store data with encryption"}]}
  ],
  "entities": [{"id": "e1", "text": "encryption", "type": "PROCESS"}],
  "relationships": []
}` + "\n```"

// mockProvider answers extraction prompts with extractionReply and
// everything else with answer
type mockProvider struct {
	mu        sync.Mutex
	answer    string
	answerErr error
	prompts   []string
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *mockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	m.mu.Unlock()

	if strings.Contains(req.Prompt, "QUESTION:") {
		if m.answerErr != nil {
			return nil, m.answerErr
		}
		return &llm.CompletionResponse{Text: m.answer, Model: "mock-1"}, nil
	}
	return &llm.CompletionResponse{Text: extractionReply, Model: "mock-1"}, nil
}

func (m *mockProvider) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Storage.GraphsDir = filepath.Join(t.TempDir(), "graphs")
	cfg.Cache.Enabled = false
	return cfg
}

func writeDoc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func newTestSession(t *testing.T, provider llm.Provider) (*Session, *model.Config) {
	t.Helper()
	cfg := testConfig(t)
	return New(Options{Config: cfg, Provider: provider}), cfg
}

func TestProcessDocument_BuildsAndSaves(t *testing.T) {
	s, cfg := newTestSession(t, &mockProvider{answer: "Use encryption."})
	doc := writeDoc(t, "policy.v2.txt", "1. Access Control. Store data with encryption.")

	resp := s.ProcessDocument(context.Background(), doc, "")

	if resp.Answer != "Document processed successfully. Graph has 4 nodes and 4 edges" {
		t.Errorf("Unexpected answer: %q", resp.Answer)
	}
	if resp.GraphStatus != "Document processed successfully" {
		t.Errorf("Unexpected status: %q", resp.GraphStatus)
	}
	if s.Name() != "policy" {
		t.Errorf("Expected graph name policy, got %q", s.Name())
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.GraphsDir, "policy.json")); err != nil {
		t.Errorf("Expected saved graph file: %v", err)
	}
}

func TestProcessDocument_WithQuery(t *testing.T) {
	provider := &mockProvider{answer: "  Data must be stored with encryption.  "}
	s, _ := newTestSession(t, provider)
	doc := writeDoc(t, "policy.txt", "Access control policy")

	resp := s.ProcessDocument(context.Background(), doc, "What encryption rules apply?")

	if resp.Answer != "Data must be stored with encryption." {
		t.Errorf("Unexpected answer: %q", resp.Answer)
	}
	if resp.GraphStatus != "Graph built with 4 nodes and 4 edges" {
		t.Errorf("Unexpected status: %q", resp.GraphStatus)
	}
	prompt := provider.lastPrompt()
	if !strings.Contains(prompt, "NODE: Policy_Section_1") || !strings.Contains(prompt, "NODE: e1") {
		t.Errorf("Answer prompt should carry the matching nodes:\n%s", prompt)
	}
}

func TestProcessDocument_Failures(t *testing.T) {
	s, _ := newTestSession(t, &mockProvider{})
	ctx := context.Background()

	resp := s.ProcessDocument(ctx, "", "")
	if resp.Answer != "Document path is required" || resp.GraphStatus != "Processing failed" {
		t.Errorf("Unexpected response for empty path: %+v", resp)
	}

	doc := writeDoc(t, "policy.txt", "text")
	s.ProcessDocument(ctx, doc, "")
	before := s.Graph().NumNodes()

	resp = s.ProcessDocument(ctx, filepath.Join(t.TempDir(), "missing.txt"), "")
	if !strings.HasPrefix(resp.Answer, "Error processing document: ") || resp.GraphStatus != "Processing failed" {
		t.Errorf("Unexpected response for missing file: %+v", resp)
	}

	unsupported := writeDoc(t, "policy.docx", "text")
	resp = s.ProcessDocument(ctx, unsupported, "")
	if !strings.Contains(resp.Answer, "unsupported") {
		t.Errorf("Expected unsupported format error, got %q", resp.Answer)
	}

	if s.Graph().NumNodes() != before || s.Name() != "policy" {
		t.Error("A failed document must leave the current graph untouched")
	}
}

func TestProcessDocument_SaveFailure(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg.Storage.GraphsDir = filepath.Join(blocker, "graphs")
	s := New(Options{Config: cfg, Provider: &mockProvider{answer: "Encrypt it."}})
	doc := writeDoc(t, "policy.txt", "text")

	for _, query := range []string{"", "What about encryption?"} {
		resp := s.ProcessDocument(context.Background(), doc, query)
		if !strings.HasPrefix(resp.Answer, "Error processing document: ") {
			t.Errorf("query %q: expected save error answer, got %q", query, resp.Answer)
		}
		if resp.GraphStatus != StatusProcessingFailed {
			t.Errorf("query %q: expected %q status, got %q", query, StatusProcessingFailed, resp.GraphStatus)
		}
	}
}

func TestProcessDocument_NoProvider(t *testing.T) {
	s, _ := newTestSession(t, nil)
	doc := writeDoc(t, "policy.md", "# Policy")

	resp := s.ProcessDocument(context.Background(), doc, "What about encryption?")

	if resp.Answer != "LLM not available for answering questions." {
		t.Errorf("Unexpected answer: %q", resp.Answer)
	}
	if resp.GraphStatus != "Graph built with 1 nodes and 0 edges" {
		t.Errorf("Unexpected status: %q", resp.GraphStatus)
	}
}

func TestBuild(t *testing.T) {
	s, _ := newTestSession(t, &mockProvider{})
	ctx := context.Background()

	stats, err := s.Build(ctx, writeDoc(t, "policy.txt", "text"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Sections != 1 || stats.Requirements != 1 || stats.InferredRelationships != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if _, err := s.Build(ctx, ""); err == nil {
		t.Error("Expected error for empty path")
	}
	if _, err := s.Build(ctx, filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("Expected error for missing document")
	}
}

func TestQuery(t *testing.T) {
	provider := &mockProvider{answer: "Encrypt it."}
	s, _ := newTestSession(t, provider)
	ctx := context.Background()

	resp := s.Query(ctx, "What about encryption?")
	if resp.Answer != "No knowledge graph available. Please upload a document first." {
		t.Errorf("Unexpected answer on empty graph: %q", resp.Answer)
	}

	s.ProcessDocument(ctx, writeDoc(t, "policy.txt", "text"), "")

	if got := s.Query(ctx, "What about encryption?").Answer; got != "Encrypt it." {
		t.Errorf("Unexpected answer: %q", got)
	}
	if got := s.Query(ctx, "Who is the CEO?").Answer; got != "Encrypt it." {
		t.Errorf("Unexpected answer for unmatched question: %q", got)
	}
	if prompt := provider.lastPrompt(); !strings.Contains(prompt, retrieve.NoRelevantNodes) {
		t.Errorf("Unmatched question should send the no-match block to the provider:\n%s", prompt)
	}

	provider.answerErr = errors.New("rate limited")
	if got := s.Query(ctx, "What about encryption?").Answer; got != "Error generating answer: rate limited" {
		t.Errorf("Unexpected error answer: %q", got)
	}
}

func TestModifyNode(t *testing.T) {
	s, _ := newTestSession(t, &mockProvider{})
	s.ProcessDocument(context.Background(), writeDoc(t, "policy.txt", "text"), "")

	tests := []struct {
		name       string
		id         string
		details    string
		wantAnswer string
		wantNode   string
		wantStatus string
	}{
		{"missing id", "", "x", "Both node_id and new_details are required", "unknown", "Modification failed - missing parameters"},
		{"missing details", "e1", "", "Both node_id and new_details are required", "e1", "Modification failed - missing parameters"},
		{"not found", "nope", "x", "Node nope not found in the knowledge graph", "nope", "Node not found"},
		{"success", "req_1_1", "Encrypt with AES-256", "Node req_1_1 has been successfully updated with the new details", "req_1_1", "Node updated successfully and graph re-indexed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.ModifyNode(tt.id, tt.details)
			if resp.Answer != tt.wantAnswer || resp.ModifiedNode != tt.wantNode || resp.GraphStatus != tt.wantStatus {
				t.Errorf("Unexpected response: %+v", resp)
			}
		})
	}

	n, _ := s.Graph().Node("req_1_1")
	if n.Content != "Encrypt with AES-256" || !n.Modified {
		t.Errorf("Expected modified content, got %+v", n)
	}
}

func TestDeleteNode(t *testing.T) {
	s, _ := newTestSession(t, &mockProvider{})
	s.ProcessDocument(context.Background(), writeDoc(t, "policy.txt", "text"), "")

	resp := s.DeleteNode("")
	if resp.Answer != "node_id is required" || resp.DeletedNode != "unknown" || resp.GraphStatus != "Deletion failed - missing node_id" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	resp = s.DeleteNode("e1")
	if resp.Answer != "Node e1 has been successfully deleted from the knowledge graph" || resp.GraphStatus != "Node deleted successfully and graph re-indexed" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if s.Graph().NumNodes() != 3 || s.Graph().NumEdges() != 2 {
		t.Errorf("Expected 3 nodes and 2 edges, got %d and %d", s.Graph().NumNodes(), s.Graph().NumEdges())
	}

	resp = s.DeleteNode("e1")
	if resp.Answer != "Node e1 not found in the knowledge graph" || resp.GraphStatus != "Node not found" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestSaveAndOpenGraph(t *testing.T) {
	cfg := testConfig(t)
	s := New(Options{Config: cfg, Provider: &mockProvider{}})

	if _, err := s.SaveGraph(); err == nil {
		t.Error("Expected error saving without a graph name")
	}

	s.ProcessDocument(context.Background(), writeDoc(t, "policy.txt", "text"), "")
	s.ModifyNode("e1", "Symmetric encryption")
	if _, err := s.SaveGraph(); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}

	other := New(Options{Config: cfg})
	if err := other.OpenGraph("missing"); err == nil {
		t.Error("Expected error opening a missing graph")
	}
	if err := other.OpenGraph("policy"); err != nil {
		t.Fatalf("OpenGraph: %v", err)
	}

	info, ok := other.NodeInfo("e1")
	if !ok {
		t.Fatal("Expected node e1 after reopening")
	}
	if info.Attributes["description"] != "Symmetric encryption" || info.Attributes["modified"] != true {
		t.Errorf("Modification not persisted: %+v", info.Attributes)
	}
	if len(info.Incoming) != 2 {
		t.Errorf("Expected 2 incoming neighbours, got %v", info.Incoming)
	}

	names, err := other.Graphs()
	if err != nil || len(names) != 1 || names[0] != "policy" {
		t.Errorf("Unexpected graph list %v (err %v)", names, err)
	}

	stats := other.Stats()
	if stats.TotalNodes != 4 || !stats.IsConnected {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if !strings.Contains(other.Visualize(), "Policy_Section_1 --[contains_requirement]--> req_1_1") {
		t.Errorf("Unexpected visualization:\n%s", other.Visualize())
	}
}

func TestProviderFromConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	p, err := ProviderFromConfig(cfg)
	if err != nil || p != nil {
		t.Errorf("Expected no provider, got %v (err %v)", p, err)
	}

	t.Setenv("OPENAI_API_KEY", "")
	cfg.LLM.Provider = "openai"
	if _, err := ProviderFromConfig(cfg); err == nil {
		t.Error("Expected error without an API key")
	}

	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3.1:8b"
	p, err = ProviderFromConfig(cfg)
	if err != nil || p == nil || p.Name() != "ollama" {
		t.Errorf("Expected ollama provider, got %v (err %v)", p, err)
	}
	if _, ok := p.(*llm.LimitedProvider); !ok {
		t.Errorf("Expected provider wrapped in a concurrency limit, got %T", p)
	}
}
