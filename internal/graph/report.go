package graph

import (
	"fmt"
	"strings"
)

const (
	banner = "============================================================"
	rule   = "----------------------------------------"
)

// Stats summarizes a graph
type Stats struct {
	TotalNodes  int            `json:"total_nodes" yaml:"total_nodes"`
	TotalEdges  int            `json:"total_edges" yaml:"total_edges"`
	NodesByType map[string]int `json:"nodes_by_type" yaml:"nodes_by_type"`
	IsConnected bool           `json:"is_connected" yaml:"is_connected"`
	Density     float64        `json:"density" yaml:"density"`
}

// connectivity is implemented by graphs that can answer it directly
type connectivity interface {
	IsWeaklyConnected() bool
}

func kindName(n Node) string {
	if n.Kind == "" {
		return "unknown"
	}
	return string(n.Kind)
}

// Visualize renders the graph as text: nodes grouped by type in first-seen
// order, then every edge
func Visualize(g Reader) string {
	var groups []string
	byKind := map[string][]Node{}
	for _, n := range g.Nodes() {
		k := kindName(n)
		if _, ok := byKind[k]; !ok {
			groups = append(groups, k)
		}
		byKind[k] = append(byKind[k], n)
	}

	var b strings.Builder
	b.WriteString(banner + "\nKNOWLEDGE GRAPH VISUALIZATION\n" + banner + "\n")

	for _, k := range groups {
		fmt.Fprintf(&b, "\n%s NODES:\n%s\n", strings.ToUpper(k), rule)
		for _, n := range byKind[k] {
			label := n.Label
			if label == "" {
				label = n.ID
			}
			fmt.Fprintf(&b, "  %s: %s\n", n.ID, label)
			if len([]rune(n.Content)) > 50 {
				fmt.Fprintf(&b, "      Content: %s...\n", truncate(n.Content, 50))
			}
		}
	}

	fmt.Fprintf(&b, "\nRELATIONSHIPS:\n%s\n", rule)
	for _, e := range g.Edges() {
		rel := e.Relationship
		if rel == "" {
			rel = "connected_to"
		}
		fmt.Fprintf(&b, "  %s --[%s]--> %s\n", e.Source, rel, e.Target)
	}

	b.WriteString("\n" + banner)
	return b.String()
}

// ComputeStats counts nodes per type and reports connectivity and density
func ComputeStats(g Reader) Stats {
	stats := Stats{
		TotalNodes:  g.NumNodes(),
		TotalEdges:  g.NumEdges(),
		NodesByType: map[string]int{},
	}
	for _, n := range g.Nodes() {
		stats.NodesByType[kindName(n)]++
	}

	if c, ok := g.(connectivity); ok {
		stats.IsConnected = c.IsWeaklyConnected()
	} else {
		stats.IsConnected = weaklyConnected(g)
	}

	if n := stats.TotalNodes; n > 1 {
		stats.Density = float64(stats.TotalEdges) / float64(n*(n-1))
	}
	return stats
}

// weaklyConnected rebuilds connectivity from the Reader alone
func weaklyConnected(g Reader) bool {
	g2 := New()
	for _, n := range g.Nodes() {
		g2.AddNode(n)
	}
	for _, e := range g.Edges() {
		_ = g2.AddEdge(e)
	}
	return g2.IsWeaklyConnected()
}
