package graph

import (
	"strings"
	"testing"

	"github.com/ppiankov/policygraph/internal/extract"
)

func TestVisualize(t *testing.T) {
	e := accessControlExtraction()
	e.PolicySections[0].Content = strings.Repeat("encryption everywhere ", 5)

	b := NewBuilder(BuilderOptions{})
	b.Build(e)
	out := Visualize(b.Graph())

	for _, want := range []string{
		"KNOWLEDGE GRAPH VISUALIZATION",
		"\nFRAMEWORK NODES:\n----------------------------------------\n  Policy_Framework: Document Knowledge Framework\n",
		"POLICY_SECTION NODES:",
		"  Policy_Section_1: Access Control\n      Content: " + e.PolicySections[0].Content[:50] + "...\n",
		"  Policy_Section_1 --[contains_requirement]--> req_1_1\n",
		"  req_1_1 --[involves_entity]--> e1\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Visualization missing %q\n%s", want, out)
		}
	}

	if strings.Index(out, "FRAMEWORK NODES") > strings.Index(out, "ENTITY NODES") {
		t.Error("Types should appear in first-seen order")
	}
	if strings.Contains(out, "Content: Store data") {
		t.Error("Short content should not be previewed")
	}
	if !strings.HasSuffix(out, "\n"+banner) {
		t.Error("Expected closing banner")
	}
}

func TestComputeStats(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	b.Build(accessControlExtraction())

	stats := ComputeStats(b.Graph())
	if stats.TotalNodes != 4 || stats.TotalEdges != 4 {
		t.Errorf("Unexpected totals: %+v", stats)
	}
	if stats.NodesByType["entity"] != 1 || stats.NodesByType["framework"] != 1 {
		t.Errorf("Unexpected counts: %v", stats.NodesByType)
	}
	if !stats.IsConnected {
		t.Error("Expected connected graph")
	}
	if stats.Density != 4.0/12.0 {
		t.Errorf("Expected density 1/3, got %v", stats.Density)
	}
}

func TestComputeStats_Disconnected(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	b.Build(extract.Normalize(extract.Extraction{
		Entities: []extract.Entity{{ID: "lonely", Text: "Island"}},
	}))

	stats := ComputeStats(b.Graph())
	if stats.IsConnected {
		t.Error("Framework and an unlinked entity are not connected")
	}
	if stats.Density != 0 {
		t.Errorf("Expected zero density, got %v", stats.Density)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(New())
	if stats.TotalNodes != 0 || stats.IsConnected || stats.Density != 0 {
		t.Errorf("Unexpected stats for empty graph: %+v", stats)
	}
}
