package extract

// Extraction is the canonical extraction result consumed by the graph builder
type Extraction struct {
	PolicySections []Section      `json:"policy_sections" mapstructure:"policy_sections"`
	Entities       []Entity       `json:"entities" mapstructure:"entities"`
	Relationships  []Relationship `json:"relationships" mapstructure:"relationships"`
}

// Section is a policy section with its ordered requirements
type Section struct {
	ID           string        `json:"id" mapstructure:"id"`
	Title        string        `json:"title,omitempty" mapstructure:"title"`
	Content      string        `json:"content" mapstructure:"content"`
	Requirements []Requirement `json:"requirements" mapstructure:"requirements"`
}

// Requirement is a single compliance requirement inside a section
type Requirement struct {
	ID             string `json:"id" mapstructure:"id"`
	Text           string `json:"text,omitempty" mapstructure:"text"`
	FullReference  string `json:"full_reference" mapstructure:"full_reference"`
	ComplianceType string `json:"compliance_type,omitempty" mapstructure:"compliance_type"`
}

// Entity is a named thing mentioned by the document
type Entity struct {
	ID          string `json:"id" mapstructure:"id"`
	Text        string `json:"text" mapstructure:"text"`
	Type        string `json:"type,omitempty" mapstructure:"type"`
	Description string `json:"description,omitempty" mapstructure:"description"`

	// Sentence is the descriptive field the builder reads; it falls back to Description
	Sentence string `json:"sentence" mapstructure:"sentence"`
}

// Relationship is an explicit edge proposed by the model
type Relationship struct {
	From         string `json:"from" mapstructure:"from"`
	To           string `json:"to" mapstructure:"to"`
	Relationship string `json:"relationship,omitempty" mapstructure:"relationship"`
	Text         string `json:"text" mapstructure:"text"`
	Description  string `json:"description,omitempty" mapstructure:"description"`
}

// Empty returns the canonical empty extraction
func Empty() Extraction {
	return Extraction{
		PolicySections: []Section{},
		Entities:       []Entity{},
		Relationships:  []Relationship{},
	}
}

// EmptyResult returns the canonical empty structured value
func EmptyResult() map[string]any {
	return map[string]any{
		"entities":        []any{},
		"relationships":   []any{},
		"policy_sections": []any{},
	}
}

// RequirementCount totals requirements across all sections
func (e Extraction) RequirementCount() int {
	n := 0
	for _, s := range e.PolicySections {
		n += len(s.Requirements)
	}
	return n
}
