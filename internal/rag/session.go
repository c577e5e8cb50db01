// Package rag wires document loading, extraction, graph building and
// retrieval into one question-answering session over a single graph.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/cache"
	"github.com/ppiankov/policygraph/internal/extract"
	"github.com/ppiankov/policygraph/internal/graph"
	"github.com/ppiankov/policygraph/internal/llm"
	"github.com/ppiankov/policygraph/internal/loader"
	"github.com/ppiankov/policygraph/internal/logging"
	"github.com/ppiankov/policygraph/internal/model"
	"github.com/ppiankov/policygraph/internal/retrieve"
)

// Response is what every session operation reports back
type Response struct {
	Answer       string `json:"answer"`
	GraphStatus  string `json:"graph_status,omitempty"`
	ModifiedNode string `json:"modified_node,omitempty"`
	DeletedNode  string `json:"deleted_node,omitempty"`
}

// Graph status values reported by Response.GraphStatus
const (
	StatusProcessingFailed = "Processing failed"
	StatusProcessed        = "Document processed successfully"
	StatusNodeUpdated      = "Node updated successfully and graph re-indexed"
	StatusNodeDeleted      = "Node deleted successfully and graph re-indexed"
	StatusNodeNotFound     = "Node not found"
)

// Options configures a Session
type Options struct {
	Config   *model.Config
	Provider llm.Provider // nil disables extraction and answering
	Cache    cache.Cache  // optional extraction cache
	Logger   *log.Logger
}

// Session owns one graph builder and the collaborators that feed and query it.
// It is not safe for concurrent use.
type Session struct {
	builder   *graph.Builder
	loaders   *loader.Registry
	extractor *extract.Extractor
	retriever *retrieve.Retriever
	answerer  *llm.Answerer
	provider  llm.Provider
	name      string
	logger    *log.Logger
}

// New creates a session with an empty graph
func New(opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	base := opts.Logger
	if base == nil {
		base = logging.Discard()
	}

	return &Session{
		builder: graph.NewBuilder(graph.BuilderOptions{
			GraphsDir: cfg.Storage.GraphsDir,
			Logger:    base,
		}),
		loaders: loader.NewRegistry(loader.Options{
			AllowedExtensions: cfg.Documents.AllowedExtensions,
			MaxFileSize:       cfg.Documents.MaxFileSize,
			HTTP:              cfg.HTTP,
			Logger:            base,
		}),
		extractor: extract.NewExtractor(opts.Provider, extract.ExtractorOptions{
			MaxInputChars: cfg.LLM.ExtractionInputChars,
			MaxTokens:     cfg.LLM.ExtractionMaxTokens,
			Model:         cfg.LLM.Model,
			Cache:         opts.Cache,
			CacheTTL:      cfg.Cache.DiskTTL,
			Logger:        base,
		}),
		retriever: retrieve.New(retrieve.Options{
			MaxNodes:      cfg.Retrieval.MaxNodes,
			ContentLimit:  cfg.Retrieval.ContentLimit,
			NeighborLimit: cfg.Retrieval.NeighborLimit,
			Logger:        base,
		}),
		answerer: llm.NewAnswerer(opts.Provider, cfg.LLM.AnswerMaxTokens, logging.Component(base, "answer")),
		provider: opts.Provider,
		logger:   logging.Component(base, "session"),
	}
}

// NewFromConfig creates the configured provider and cache and returns a
// session using them. An empty provider name yields a session without LLM.
func NewFromConfig(cfg *model.Config, logger *log.Logger) (*Session, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	provider, err := ProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Config:   cfg,
		Provider: provider,
		Cache:    cache.FromConfig(cfg.Cache),
		Logger:   logger,
	}), nil
}

// ProviderFromConfig resolves API keys from the environment and creates the
// provider named by cfg.LLM.Provider, or nil when none is configured. The
// provider is wrapped in a concurrency limit of cfg.LLM.MaxConcurrentRequests.
func ProviderFromConfig(cfg *model.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "" {
		return nil, nil
	}
	llmCfg, err := llm.APIKeyFromEnv(llm.ConfigFromModel(cfg))
	if err != nil {
		return nil, fmt.Errorf("configure LLM provider: %w", err)
	}
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	return llm.WithConcurrencyLimit(provider, cfg.LLM.MaxConcurrentRequests), nil
}

// Graph returns a read-only view of the current graph
func (s *Session) Graph() graph.Reader {
	return s.builder.Graph()
}

// Name is the name the current graph was built or opened under
func (s *Session) Name() string {
	return s.name
}

// HasLLM reports whether a provider is configured
func (s *Session) HasLLM() bool {
	return s.provider != nil
}

// ProcessDocument loads path, extracts its structure, rebuilds the graph,
// saves it under the document name and answers query when one is given.
// A document that cannot be loaded leaves the current graph untouched.
func (s *Session) ProcessDocument(ctx context.Context, path, query string) Response {
	if strings.TrimSpace(path) == "" {
		return Response{Answer: "Document path is required", GraphStatus: StatusProcessingFailed}
	}

	text, err := s.loaders.Load(ctx, path)
	if err != nil {
		s.logger.Error("document load failed", "path", path, "err", err)
		return Response{
			Answer:      fmt.Sprintf("Error processing document: %v", err),
			GraphStatus: StatusProcessingFailed,
		}
	}

	stats, err := s.buildText(ctx, path, text)
	if err != nil {
		s.logger.Error("graph save failed", "name", s.name, "err", err)
		return Response{
			Answer:      fmt.Sprintf("Error processing document: %v", err),
			GraphStatus: StatusProcessingFailed,
		}
	}

	if strings.TrimSpace(query) != "" {
		return Response{
			Answer:      s.answer(ctx, query),
			GraphStatus: fmt.Sprintf("Graph built with %d nodes and %d edges", stats.Nodes, stats.Edges),
		}
	}
	return Response{
		Answer:      fmt.Sprintf("Document processed successfully. Graph has %d nodes and %d edges", stats.Nodes, stats.Edges),
		GraphStatus: StatusProcessed,
	}
}

// Build is ProcessDocument without the answer: it returns the build counts,
// or the load or save error
func (s *Session) Build(ctx context.Context, path string) (graph.BuildStats, error) {
	if strings.TrimSpace(path) == "" {
		return graph.BuildStats{}, fmt.Errorf("document path is required")
	}
	text, err := s.loaders.Load(ctx, path)
	if err != nil {
		return graph.BuildStats{}, fmt.Errorf("load document: %w", err)
	}
	return s.buildText(ctx, path, text)
}

func (s *Session) buildText(ctx context.Context, path, text string) (graph.BuildStats, error) {
	start := time.Now()
	extraction := s.extractor.Extract(ctx, text)
	stats := s.builder.Build(extraction)
	s.name = graph.DocumentName(path)

	if s.logger.GetLevel() <= log.DebugLevel {
		s.logger.Debug("graph structure\n" + graph.Visualize(s.builder.Graph()))
	}
	s.logger.Info("document processed",
		"path", path,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"elapsed", time.Since(start).Round(time.Millisecond))

	if _, err := s.builder.Save(s.name); err != nil {
		return stats, fmt.Errorf("save graph: %w", err)
	}
	return stats, nil
}

// Query answers question from the current graph
func (s *Session) Query(ctx context.Context, question string) Response {
	return Response{Answer: s.answer(ctx, question)}
}

func (s *Session) answer(ctx context.Context, question string) string {
	if s.builder.IsEmpty() {
		return "No knowledge graph available. Please upload a document first."
	}
	if !s.answerer.IsEnabled() {
		return "LLM not available for answering questions."
	}

	// an empty match still goes to the model with the no-match block
	ids, graphContext := s.retriever.Retrieve(s.builder.Graph(), question)
	s.logger.Debug("context retrieved", "nodes", len(ids))
	return s.answerer.Answer(ctx, question, graphContext)
}

// ModifyNode replaces a node's details. The change is kept in memory until SaveGraph.
func (s *Session) ModifyNode(id, details string) Response {
	if id == "" || details == "" {
		modified := id
		if modified == "" {
			modified = "unknown"
		}
		return Response{
			Answer:       "Both node_id and new_details are required",
			ModifiedNode: modified,
			GraphStatus:  "Modification failed - missing parameters",
		}
	}

	if err := s.builder.Modify(id, details); err != nil {
		if !graph.IsNotFound(err) {
			s.logger.Error("modify failed", "node", id, "err", err)
		}
		return Response{
			Answer:       fmt.Sprintf("Node %s not found in the knowledge graph", id),
			ModifiedNode: id,
			GraphStatus:  StatusNodeNotFound,
		}
	}

	return Response{
		Answer:       fmt.Sprintf("Node %s has been successfully updated with the new details", id),
		ModifiedNode: id,
		GraphStatus:  StatusNodeUpdated,
	}
}

// DeleteNode removes a node and its edges. The change is kept in memory until SaveGraph.
func (s *Session) DeleteNode(id string) Response {
	if id == "" {
		return Response{
			Answer:      "node_id is required",
			DeletedNode: "unknown",
			GraphStatus: "Deletion failed - missing node_id",
		}
	}

	if err := s.builder.Delete(id); err != nil {
		if !graph.IsNotFound(err) {
			s.logger.Error("delete failed", "node", id, "err", err)
		}
		return Response{
			Answer:      fmt.Sprintf("Node %s not found in the knowledge graph", id),
			DeletedNode: id,
			GraphStatus: StatusNodeNotFound,
		}
	}

	return Response{
		Answer:      fmt.Sprintf("Node %s has been successfully deleted from the knowledge graph", id),
		DeletedNode: id,
		GraphStatus: StatusNodeDeleted,
	}
}

// OpenGraph replaces the current graph with a saved one
func (s *Session) OpenGraph(name string) error {
	if err := s.builder.Load(name); err != nil {
		return err
	}
	s.name = name
	return nil
}

// SaveGraph writes the current graph back under its name
func (s *Session) SaveGraph() (string, error) {
	if s.name == "" {
		return "", fmt.Errorf("no graph to save: process a document or open a graph first")
	}
	return s.builder.Save(s.name)
}

// Graphs lists the saved graph names
func (s *Session) Graphs() ([]string, error) {
	return graph.ListGraphs(s.builder.Dir())
}

// Visualize renders the current graph as text
func (s *Session) Visualize() string {
	if s.builder.IsEmpty() {
		return "No graph loaded. Please process a document first."
	}
	return graph.Visualize(s.builder.Graph())
}

// Stats summarizes the current graph
func (s *Session) Stats() graph.Stats {
	return graph.ComputeStats(s.builder.Graph())
}

// NodeInfo describes one node and its neighbours
func (s *Session) NodeInfo(id string) (graph.NodeInfo, bool) {
	return s.builder.NodeInfo(id)
}
