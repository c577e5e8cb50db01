package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/logging"
)

const fileExt = ".json"

// document is the on-disk graph layout. The directed/multigraph/graph keys
// let node-link readers load the file as-is.
type document struct {
	Directed   bool              `json:"directed"`
	Multigraph bool              `json:"multigraph"`
	Graph      map[string]any    `json:"graph"`
	Nodes      []json.RawMessage `json:"nodes"`
	Edges      []json.RawMessage `json:"edges"`
}

// Encode renders g as an indented graph document with nodes and edges in
// graph order
func Encode(g Reader) ([]byte, error) {
	doc := document{
		Directed:   true,
		Multigraph: true,
		Graph:      map[string]any{},
		Nodes:      []json.RawMessage{},
		Edges:      []json.RawMessage{},
	}

	for _, n := range g.Nodes() {
		data, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, data)
	}
	for _, e := range g.Edges() {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode edge %s->%s: %w", e.Source, e.Target, err)
		}
		doc.Edges = append(doc.Edges, data)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// Decode rebuilds a graph from a graph document. Nodes are inserted before
// edges, both in file order; malformed entries and edges with unknown
// endpoints are skipped and logged.
func Decode(data []byte, logger *log.Logger) (*Graph, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse graph document: %w", err)
	}

	g := New()
	for i, raw := range doc.Nodes {
		var n Node
		if err := json.Unmarshal(raw, &n); err != nil {
			logger.Warn("skipping malformed node", "index", i, "err", err)
			continue
		}
		g.AddNode(n)
	}
	for i, raw := range doc.Edges {
		var e Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.Warn("skipping malformed edge", "index", i, "err", err)
			continue
		}
		if err := g.AddEdge(e); err != nil {
			logger.Warn("skipping edge", "source", e.Source, "target", e.Target, "err", err)
		}
	}
	return g, nil
}

// Dir is the graphs directory
func (b *Builder) Dir() string {
	return b.dir
}

// Path returns the file a graph called name is stored in
func (b *Builder) Path(name string) string {
	return filepath.Join(b.dir, name+fileExt)
}

// Save writes the current graph to <graphs dir>/<name>.json
func (b *Builder) Save(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("graph name is required")
	}
	data, err := Encode(b.graph)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return "", fmt.Errorf("create graphs dir: %w", err)
	}
	path := b.Path(name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}

	b.logger.Info("graph saved", "path", path, "nodes", b.graph.NumNodes(), "edges", b.graph.NumEdges())
	return path, nil
}

// Load replaces the current graph with <graphs dir>/<name>.json. On error
// the current graph is left untouched.
func (b *Builder) Load(name string) error {
	path := b.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph %s: %w", name, err)
	}

	g, err := Decode(data, b.logger)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", name, err)
	}
	b.graph = g

	b.logger.Info("graph loaded", "path", path, "nodes", g.NumNodes(), "edges", g.NumEdges())
	return nil
}

// ListGraphs returns the names of the graphs stored in dir, sorted
func ListGraphs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read graphs dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename graph file: %w", err)
	}
	return nil
}

// MarshalJSON flattens the attributes next to id and connected_to
func (ni NodeInfo) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(ni.Attributes)+2)
	for k, v := range ni.Attributes {
		out[k] = v
	}
	out["id"] = ni.ID
	out["connected_to"] = map[string][]string{
		"incoming": nonNil(ni.Incoming),
		"outgoing": nonNil(ni.Outgoing),
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
