package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind is the persisted "type" attribute of a node
type Kind string

const (
	KindFramework   Kind = "framework"
	KindSection     Kind = "policy_section"
	KindRequirement Kind = "requirement"
	KindEntity      Kind = "entity"
)

// Known reports whether k is one of the kinds the builder creates
func (k Kind) Known() bool {
	switch k {
	case KindFramework, KindSection, KindRequirement, KindEntity:
		return true
	}
	return false
}

// Attribute names as they appear in graph files
const (
	attrType              = "type"
	attrLabel             = "label"
	attrContent           = "content"
	attrRequirementsCount = "requirements_count"
	attrDescription       = "description"
	attrEntityType        = "entity_type"
	attrOriginalText      = "original_text"
	attrModified          = "modified"
)

// Node is a graph vertex. Which fields are meaningful depends on Kind;
// nodes of unknown kinds keep their attributes in Extra.
type Node struct {
	ID          string
	Kind        Kind
	Label       string
	Content     string
	Description string

	RequirementsCount int // policy_section

	EntityType   string // entity
	OriginalText string // entity

	Modified bool

	// Extra holds attributes this package does not model, preserved on save.
	// A modelled key found here carried an unexpected type and overrides the field.
	Extra map[string]any

	hasContent bool
}

// FrameworkNode is the root of every built graph
func FrameworkNode() Node {
	return Node{
		ID:          FrameworkID,
		Kind:        KindFramework,
		Label:       "Document Knowledge Framework",
		Description: "Overall document knowledge structure",
	}
}

// SectionNode creates a policy section node
func SectionNode(id, label, content, description string, requirements int) Node {
	return Node{
		ID:                id,
		Kind:              KindSection,
		Label:             label,
		Content:           content,
		Description:       description,
		RequirementsCount: requirements,
		hasContent:        true,
	}
}

// RequirementNode creates a requirement node
func RequirementNode(id, label, content, description string) Node {
	return Node{
		ID:          id,
		Kind:        KindRequirement,
		Label:       label,
		Content:     content,
		Description: description,
		hasContent:  true,
	}
}

// EntityNode creates an entity node
func EntityNode(id, text, entityType, description string) Node {
	return Node{
		ID:           id,
		Kind:         KindEntity,
		Label:        text,
		EntityType:   entityType,
		Description:  description,
		OriginalText: text,
	}
}

// HasContent reports whether the node carries a content attribute
func (n Node) HasContent() bool {
	return n.hasContent
}

// SetDetails replaces content when the node has it, description otherwise,
// and marks the node modified
func (n *Node) SetDetails(details string) {
	if n.hasContent {
		n.Content = details
		delete(n.Extra, attrContent)
	} else {
		n.Description = details
		delete(n.Extra, attrDescription)
	}
	n.Modified = true
	delete(n.Extra, attrModified)
}

// SearchText is the first present of content, label and description
func (n Node) SearchText() string {
	if n.hasContent {
		return n.Content
	}
	if n.Label != "" {
		return n.Label
	}
	return n.Description
}

// Attributes returns the node's attributes as they would be persisted, without the id
func (n Node) Attributes() map[string]any {
	attrs := make(map[string]any, len(n.Extra)+6)
	for _, kv := range n.knownAttributes() {
		attrs[kv.key] = kv.value
	}
	for k, v := range n.Extra {
		attrs[k] = v
	}
	return attrs
}

type keyValue struct {
	key   string
	value any
}

// knownAttributes lists modelled attributes in file order
func (n Node) knownAttributes() []keyValue {
	var kvs []keyValue
	if n.Kind != "" {
		kvs = append(kvs, keyValue{attrType, string(n.Kind)})
	}

	if n.Label != "" || n.Kind.Known() {
		kvs = append(kvs, keyValue{attrLabel, n.Label})
	}
	if n.hasContent {
		kvs = append(kvs, keyValue{attrContent, n.Content})
	}
	if n.Kind == KindSection {
		kvs = append(kvs, keyValue{attrRequirementsCount, n.RequirementsCount})
	}
	if n.Description != "" || n.Kind.Known() {
		kvs = append(kvs, keyValue{attrDescription, n.Description})
	}
	if n.Kind == KindEntity {
		kvs = append(kvs,
			keyValue{attrEntityType, n.EntityType},
			keyValue{attrOriginalText, n.OriginalText})
	}
	if n.Modified {
		kvs = append(kvs, keyValue{attrModified, true})
	}
	return kvs
}

// MarshalJSON writes {"id": ..., <known attributes>, <extra attributes sorted>}
func (n Node) MarshalJSON() ([]byte, error) {
	kvs := append([]keyValue{{"id", n.ID}}, n.knownAttributes()...)
	return marshalOrdered(kvs, n.Extra)
}

// UnmarshalJSON reads a flat node object; attributes it does not model go to Extra
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, ok := raw["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("node without string id")
	}
	delete(raw, "id")
	*n = NodeFromAttributes(id, raw)
	return nil
}

// NodeFromAttributes rebuilds a node from its persisted attributes
func NodeFromAttributes(id string, attrs map[string]any) Node {
	n := Node{ID: id, Extra: map[string]any{}}

	for k, v := range attrs {
		consumed := true
		switch k {
		case attrType:
			s, ok := v.(string)
			consumed = ok
			n.Kind = Kind(s)
		case attrLabel:
			n.Label = stringValue(v)
			consumed = n.Label != ""
		case attrContent:
			n.Content, consumed = v.(string)
			n.hasContent = consumed
		case attrDescription:
			n.Description = stringValue(v)
			consumed = n.Description != ""
		case attrModified:
			// an explicit false is kept as written
			n.Modified, _ = v.(bool)
			consumed = n.Modified
		default:
			consumed = false
		}
		if !consumed {
			n.Extra[k] = v
		}
	}

	if n.Kind.Known() {
		for _, k := range []string{attrLabel, attrDescription} {
			if s, ok := n.Extra[k].(string); ok && s == "" {
				delete(n.Extra, k)
			}
		}
	}

	// kind-specific attributes are only modelled for their kind
	switch n.Kind {
	case KindSection:
		n.hasContent = true
		if f, ok := n.Extra[attrRequirementsCount].(float64); ok && f == math.Trunc(f) {
			n.RequirementsCount = int(f)
			delete(n.Extra, attrRequirementsCount)
		} else if i, ok := n.Extra[attrRequirementsCount].(int); ok {
			n.RequirementsCount = i
			delete(n.Extra, attrRequirementsCount)
		}
	case KindRequirement:
		n.hasContent = true
	case KindEntity:
		if s, ok := n.Extra[attrEntityType].(string); ok {
			n.EntityType = s
			delete(n.Extra, attrEntityType)
		}
		if s, ok := n.Extra[attrOriginalText].(string); ok {
			n.OriginalText = s
			delete(n.Extra, attrOriginalText)
		}
	}

	if len(n.Extra) == 0 {
		n.Extra = nil
	}
	return n
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// Edge is a directed, labelled connection between two nodes
type Edge struct {
	Source       string
	Target       string
	Relationship string
	Description  string
	Extra        map[string]any
}

// Attributes returns the edge attributes without source and target
func (e Edge) Attributes() map[string]any {
	attrs := make(map[string]any, len(e.Extra)+2)
	attrs["relationship"] = e.Relationship
	attrs["description"] = e.Description
	for k, v := range e.Extra {
		attrs[k] = v
	}
	return attrs
}

// MarshalJSON writes {"source", "target", "relationship", "description", <extra sorted>}
func (e Edge) MarshalJSON() ([]byte, error) {
	return marshalOrdered([]keyValue{
		{"source", e.Source},
		{"target", e.Target},
		{"relationship", e.Relationship},
		{"description", e.Description},
	}, e.Extra)
}

// UnmarshalJSON reads a flat edge object
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Edge{Extra: map[string]any{}}
	var ok bool
	if out.Source, ok = raw["source"].(string); !ok {
		return fmt.Errorf("edge without string source")
	}
	if out.Target, ok = raw["target"].(string); !ok {
		return fmt.Errorf("edge without string target")
	}
	for k, v := range raw {
		switch k {
		case "source", "target":
		case "relationship":
			if s, isStr := v.(string); isStr {
				out.Relationship = s
				continue
			}
			out.Extra[k] = v
		case "description":
			if s, isStr := v.(string); isStr {
				out.Description = s
				continue
			}
			out.Extra[k] = v
		default:
			out.Extra[k] = v
		}
	}
	if len(out.Extra) == 0 {
		out.Extra = nil
	}
	*e = out
	return nil
}

// marshalOrdered encodes known pairs in order followed by extra keys sorted.
// An extra value under a known key replaces the known value in place.
func marshalOrdered(known []keyValue, extra map[string]any) ([]byte, error) {
	seen := make(map[string]bool, len(known))
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	for _, kv := range known {
		seen[kv.key] = true
		value := kv.value
		if v, ok := extra[kv.key]; ok {
			value = v
		}
		if err := write(kv.key, value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
