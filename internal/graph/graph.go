package graph

import (
	"errors"
	"fmt"
)

// FrameworkID is the id of the root node every build starts with
const FrameworkID = "Policy_Framework"

// ErrNodeNotFound is returned when an operation names an id the graph does not hold
var ErrNodeNotFound = errors.New("node not found")

// Reader is the read-only view of a graph handed to retrieval and reporting
type Reader interface {
	Nodes() []Node
	Node(id string) (Node, bool)
	Edges() []Edge
	Successors(id string) []string
	Predecessors(id string) []string
	NumNodes() int
	NumEdges() int
}

// Graph is a directed multigraph with string node ids. Nodes and each
// node's out-edges keep insertion order. Not safe for concurrent use.
type Graph struct {
	order []string
	nodes map[string]*Node
	out   map[string][]*Edge
	in    map[string][]*Edge
	edges int
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

// AddNode inserts n, or replaces the attributes of an existing node with the
// same id while keeping its edges and position. Reports whether it replaced.
func (g *Graph) AddNode(n Node) bool {
	if existing, ok := g.nodes[n.ID]; ok {
		*existing = n
		return true
	}
	node := n
	g.nodes[n.ID] = &node
	g.order = append(g.order, n.ID)
	return false
}

// AddEdge connects two existing nodes
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.Source]; !ok {
		return fmt.Errorf("edge source %s: %w", e.Source, ErrNodeNotFound)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return fmt.Errorf("edge target %s: %w", e.Target, ErrNodeNotFound)
	}
	edge := e
	g.out[e.Source] = append(g.out[e.Source], &edge)
	g.in[e.Target] = append(g.in[e.Target], &edge)
	g.edges++
	return nil
}

// RemoveNode deletes a node and every edge touching it
func (g *Graph) RemoveNode(id string) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}

	for _, e := range g.out[id] {
		if e.Target != id {
			g.in[e.Target] = without(g.in[e.Target], id, true)
		}
		g.edges--
	}
	for _, e := range g.in[id] {
		if e.Source != id {
			g.out[e.Source] = without(g.out[e.Source], id, false)
			g.edges--
		}
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)

	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// without drops edges whose source (bySource) or target equals id
func without(edges []*Edge, id string, bySource bool) []*Edge {
	kept := edges[:0]
	for _, e := range edges {
		end := e.Target
		if bySource {
			end = e.Source
		}
		if end != id {
			kept = append(kept, e)
		}
	}
	return kept
}

// Update applies fn to the stored node
func (g *Graph) Update(id string, fn func(*Node)) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNodeNotFound)
	}
	fn(n)
	return nil
}

// HasNode reports whether id is in the graph
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes in insertion order
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns all edges grouped by source in node order, each group in
// insertion order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for _, id := range g.order {
		for _, e := range g.out[id] {
			out = append(out, *e)
		}
	}
	return out
}

// OutEdges returns the edges leaving id
func (g *Graph) OutEdges(id string) []Edge {
	return copyEdges(g.out[id])
}

// InEdges returns the edges entering id
func (g *Graph) InEdges(id string) []Edge {
	return copyEdges(g.in[id])
}

func copyEdges(edges []*Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = *e
	}
	return out
}

// Successors returns distinct targets of id's out-edges in first-seen order
func (g *Graph) Successors(id string) []string {
	return distinct(g.out[id], func(e *Edge) string { return e.Target })
}

// Predecessors returns distinct sources of id's in-edges in first-seen order
func (g *Graph) Predecessors(id string) []string {
	return distinct(g.in[id], func(e *Edge) string { return e.Source })
}

func distinct(edges []*Edge, end func(*Edge) string) []string {
	seen := make(map[string]bool, len(edges))
	out := []string{}
	for _, e := range edges {
		id := end(e)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// NumNodes returns the node count
func (g *Graph) NumNodes() int {
	return len(g.order)
}

// NumEdges returns the edge count, parallel edges included
func (g *Graph) NumEdges() int {
	return g.edges
}

// IsWeaklyConnected reports whether every node is reachable from the first
// when edge direction is ignored. An empty graph is not connected.
func (g *Graph) IsWeaklyConnected() bool {
	if len(g.order) == 0 {
		return false
	}

	seen := map[string]bool{g.order[0]: true}
	stack := []string{g.order[0]}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visit := func(next string) {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
		for _, e := range g.out[id] {
			visit(e.Target)
		}
		for _, e := range g.in[id] {
			visit(e.Source)
		}
	}
	return len(seen) == len(g.order)
}
