package graph

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/policygraph/internal/extract"
	"github.com/ppiankov/policygraph/internal/logging"
)

// BuildStats counts what a build added
type BuildStats struct {
	Sections              int `json:"sections"`
	Requirements          int `json:"requirements"`
	Entities              int `json:"entities"`
	ExplicitRelationships int `json:"explicit_relationships"`
	InferredRelationships int `json:"inferred_relationships"`
	SkippedEntities       int `json:"skipped_entities"`
	DroppedRelationships  int `json:"dropped_relationships"`
	Nodes                 int `json:"nodes"`
	Edges                 int `json:"edges"`
}

// NodeInfo describes one node with its neighbourhood
type NodeInfo struct {
	ID         string
	Attributes map[string]any
	Incoming   []string
	Outgoing   []string
}

// BuilderOptions configures a Builder
type BuilderOptions struct {
	GraphsDir string // where Save and Load look for graph files
	Logger    *log.Logger
}

// Builder owns one knowledge graph and every mutation of it
type Builder struct {
	graph  *Graph
	dir    string
	logger *log.Logger
}

// NewBuilder creates a builder holding an empty graph
func NewBuilder(opts BuilderOptions) *Builder {
	return &Builder{
		graph:  New(),
		dir:    opts.GraphsDir,
		logger: logging.Component(opts.Logger, "graph"),
	}
}

// Graph returns a read-only view of the current graph
func (b *Builder) Graph() Reader {
	return b.graph
}

// IsEmpty reports whether the builder holds no nodes
func (b *Builder) IsEmpty() bool {
	return b.graph.NumNodes() == 0
}

// Build discards the current graph and builds a new one from e
func (b *Builder) Build(e extract.Extraction) BuildStats {
	b.graph = New()
	b.graph.AddNode(FrameworkNode())

	var stats BuildStats
	stats.Sections = b.addSections(e.PolicySections)
	stats.Requirements = b.addRequirements(e.PolicySections)
	stats.Entities, stats.SkippedEntities = b.addEntities(e.Entities)
	stats.ExplicitRelationships, stats.DroppedRelationships = b.addRelationships(e.Relationships)
	stats.InferredRelationships = b.inferRelationships(e)
	stats.Nodes = b.graph.NumNodes()
	stats.Edges = b.graph.NumEdges()

	b.logger.Info("graph built",
		"sections", stats.Sections,
		"requirements", stats.Requirements,
		"entities", stats.Entities,
		"explicit", stats.ExplicitRelationships,
		"inferred", stats.InferredRelationships,
		"nodes", stats.Nodes,
		"edges", stats.Edges)

	return stats
}

func (b *Builder) addSections(sections []extract.Section) int {
	added := 0
	for _, s := range sections {
		id := SectionID(s.ID)

		label := s.Title
		if label == "" {
			label = "Section " + id
		}
		node := SectionNode(id, label, s.Content, "Policy section: "+s.Title, len(s.Requirements))

		if b.graph.AddNode(node) {
			b.logger.Warn("section id collision, overwriting", "id", id, "original", s.ID)
		}
		b.mustEdge(Edge{
			Source:       FrameworkID,
			Target:       id,
			Relationship: "contains_section",
			Description:  "Framework contains this section",
		})
		added++
	}
	return added
}

func (b *Builder) addRequirements(sections []extract.Section) int {
	added := 0
	for _, s := range sections {
		sectionID := SectionID(s.ID)
		for _, r := range s.Requirements {
			id := RequirementID(r.ID)

			label := r.FullReference
			if label == "" {
				label = id
			}
			if b.graph.AddNode(RequirementNode(id, label, r.Text, "Requirement: "+truncate(r.Text, 100)+"...")) {
				b.logger.Warn("requirement id collision, overwriting", "id", id, "original", r.ID)
			}
			b.mustEdge(Edge{
				Source:       sectionID,
				Target:       id,
				Relationship: "contains_requirement",
				Description:  "Section contains requirement " + id,
			})
			added++
		}
	}
	return added
}

func (b *Builder) addEntities(entities []extract.Entity) (added, skipped int) {
	for _, ent := range entities {
		if ent.ID == "" || isBlank(ent.Text) {
			b.logger.Warn("skipping entity without id or text", "id", ent.ID)
			skipped++
			continue
		}

		entityType := ent.Type
		if entityType == "" {
			entityType = "ENTITY"
		}
		description := ent.Sentence
		if description == "" {
			description = ent.Description
		}
		if b.graph.AddNode(EntityNode(ent.ID, ent.Text, entityType, description)) {
			b.logger.Warn("entity id collision, overwriting", "id", ent.ID)
		}
		added++
	}
	return added, skipped
}

func (b *Builder) addRelationships(rels []extract.Relationship) (added, dropped int) {
	for _, r := range rels {
		if !b.graph.HasNode(r.From) || !b.graph.HasNode(r.To) {
			b.logger.Warn("skipping relationship, nodes not found", "from", r.From, "to", r.To)
			dropped++
			continue
		}

		label := r.Relationship
		if label == "" {
			label = "related_to"
		}
		description := r.Text
		if description == "" {
			description = "Relationship"
		}
		b.mustEdge(Edge{Source: r.From, Target: r.To, Relationship: label, Description: description})
		added++
	}
	return added, dropped
}

// inferRelationships links sections and requirements to the entities their
// text mentions
func (b *Builder) inferRelationships(e extract.Extraction) int {
	added := 0
	for _, ent := range e.Entities {
		if !b.isEntity(ent.ID) || isBlank(ent.Text) {
			continue
		}

		for _, s := range e.PolicySections {
			sectionID := SectionID(s.ID)
			if containsFold(s.Content, ent.Text) && b.graph.HasNode(sectionID) {
				b.mustEdge(Edge{
					Source:       sectionID,
					Target:       ent.ID,
					Relationship: "mentions_entity",
					Description:  "Section mentions " + ent.Text,
				})
				added++
			}
		}

		for _, s := range e.PolicySections {
			for _, r := range s.Requirements {
				reqID := RequirementID(r.ID)
				if containsFold(r.Text, ent.Text) && b.graph.HasNode(reqID) {
					b.mustEdge(Edge{
						Source:       reqID,
						Target:       ent.ID,
						Relationship: "involves_entity",
						Description:  "Requirement involves " + ent.Text,
					})
					added++
				}
			}
		}
	}
	return added
}

func (b *Builder) isEntity(id string) bool {
	n, ok := b.graph.Node(id)
	return ok && n.Kind == KindEntity
}

// mustEdge adds an edge whose endpoints the caller has just created
func (b *Builder) mustEdge(e Edge) {
	if err := b.graph.AddEdge(e); err != nil {
		b.logger.Error("failed to add edge", "source", e.Source, "target", e.Target, "err", err)
	}
}

// Modify replaces the node's content, or its description when it has no
// content, and marks it modified
func (b *Builder) Modify(id, details string) error {
	if err := b.graph.Update(id, func(n *Node) { n.SetDetails(details) }); err != nil {
		return err
	}
	b.logger.Info("node modified", "id", id)
	return nil
}

// Delete removes the node and its incident edges
func (b *Builder) Delete(id string) error {
	if !b.graph.RemoveNode(id) {
		return fmt.Errorf("%s: %w", id, ErrNodeNotFound)
	}
	b.logger.Info("node deleted", "id", id)
	return nil
}

// NodeInfo returns the node's attributes and neighbour ids
func (b *Builder) NodeInfo(id string) (NodeInfo, bool) {
	n, ok := b.graph.Node(id)
	if !ok {
		return NodeInfo{}, false
	}
	return NodeInfo{
		ID:         id,
		Attributes: n.Attributes(),
		Incoming:   b.graph.Predecessors(id),
		Outgoing:   b.graph.Successors(id),
	}, true
}

// IsNotFound reports whether err is ErrNodeNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}
