// Package retrieve selects graph nodes relevant to a question and renders
// them as a context block for answer generation.
package retrieve

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/graph"
	"github.com/ppiankov/policygraph/internal/logging"
)

// NoRelevantNodes is the context block returned when nothing matched
const NoRelevantNodes = "No relevant nodes found in the knowledge graph."

// DefaultKeywords is the relevance vocabulary
var DefaultKeywords = []string{
	"compliance", "requirement", "policy", "data", "security",
	"encryption", "audit", "storage", "processing", "sharing",
	"consent", "protection", "governance", "risk", "review",
}

const (
	DefaultMaxNodes      = 8
	DefaultContentLimit  = 300
	DefaultNeighborLimit = 3
)

// Options configures a Retriever; zero values use the defaults
type Options struct {
	MaxNodes      int
	ContentLimit  int
	NeighborLimit int
	Keywords      []string
	Logger        *log.Logger
}

// Retriever matches questions to nodes through a shared keyword
type Retriever struct {
	opts     Options
	keywords []string
	logger   *log.Logger
}

// New creates a retriever
func New(opts Options) *Retriever {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	if opts.ContentLimit <= 0 {
		opts.ContentLimit = DefaultContentLimit
	}
	if opts.NeighborLimit <= 0 {
		opts.NeighborLimit = DefaultNeighborLimit
	}

	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	return &Retriever{
		opts:     opts,
		keywords: lowered,
		logger:   logging.Component(opts.Logger, "retrieve"),
	}
}

// FindRelevant returns, in graph order, the ids of nodes sharing at least one
// keyword with the question
func (r *Retriever) FindRelevant(g graph.Reader, question string) []string {
	q := strings.ToLower(question)

	var asked []string
	for _, k := range r.keywords {
		if strings.Contains(q, k) {
			asked = append(asked, k)
		}
	}

	var ids []string
	if len(asked) > 0 {
		for _, n := range g.Nodes() {
			text := strings.ToLower(n.SearchText())
			for _, k := range asked {
				if strings.Contains(text, k) {
					ids = append(ids, n.ID)
					break
				}
			}
		}
	}

	r.logger.Debug("relevant nodes", "count", len(ids), "keywords", asked)
	return ids
}

// Context renders up to MaxNodes of ids as NODE blocks separated by blank lines
func (r *Retriever) Context(g graph.Reader, ids []string) string {
	if len(ids) > r.opts.MaxNodes {
		ids = ids[:r.opts.MaxNodes]
	}

	var parts []string
	for _, id := range ids {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		parts = append(parts, r.block(g, n))
	}

	if len(parts) == 0 {
		return NoRelevantNodes
	}
	return strings.Join(parts, "\n\n")
}

// Retrieve runs FindRelevant then Context
func (r *Retriever) Retrieve(g graph.Reader, question string) (ids []string, context string) {
	ids = r.FindRelevant(g, question)
	return ids, r.Context(g, ids)
}

func (r *Retriever) block(g graph.Reader, n graph.Node) string {
	attrs := n.Attributes()

	var b strings.Builder
	fmt.Fprintf(&b, "NODE: %s\n", n.ID)
	if label, ok := attrs["label"]; ok {
		fmt.Fprintf(&b, "Title: %v\n", label)
	}
	if kind, ok := attrs["type"]; ok {
		fmt.Fprintf(&b, "Type: %v\n", kind)
	}
	if n.HasContent() {
		fmt.Fprintf(&b, "Content: %s\n", clip(n.Content, r.opts.ContentLimit))
	}
	if desc, ok := attrs["description"]; ok {
		fmt.Fprintf(&b, "Description: %v\n", desc)
	}

	if preds := g.Predecessors(n.ID); len(preds) > 0 {
		fmt.Fprintf(&b, "Connected from: %s\n", strings.Join(head(preds, r.opts.NeighborLimit), ", "))
	}
	if succs := g.Successors(n.ID); len(succs) > 0 {
		fmt.Fprintf(&b, "Connects to: %s\n", strings.Join(head(succs, r.opts.NeighborLimit), ", "))
	}
	return b.String()
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func head(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
