package extract

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"

	"github.com/ppiankov/policygraph/internal/logging"
)

// Normalizer turns loosely shaped model output into a canonical Extraction
type Normalizer struct {
	logger *log.Logger
}

// NewNormalizer creates a normalizer; a nil logger discards output
func NewNormalizer(logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Normalizer{logger: logger}
}

// FromMap decodes and normalizes with a silent normalizer
func FromMap(data map[string]any) Extraction {
	n := NewNormalizer(nil)
	return n.Normalize(n.Decode(data))
}

// Normalize backfills with a silent normalizer
func Normalize(e Extraction) Extraction {
	return NewNormalizer(nil).Normalize(e)
}

// Decode reads the three top-level sequences out of data. Elements of the
// wrong shape are skipped; scalar fields are coerced to strings.
func (n *Normalizer) Decode(data map[string]any) Extraction {
	out := Empty()
	if data == nil {
		return out
	}

	rawSections, ok := data["policy_sections"]
	if !ok {
		rawSections = data["sections"]
	}

	for i, item := range asList(rawSections) {
		m, ok := item.(map[string]any)
		if !ok {
			n.logger.Warn("skipping malformed section", "index", i, "type", fmt.Sprintf("%T", item))
			continue
		}
		m = withRequirementList(m)

		var s Section
		if err := weakDecode(m, &s); err != nil {
			n.logger.Warn("skipping undecodable section", "index", i, "err", err)
			continue
		}
		out.PolicySections = append(out.PolicySections, s)
	}

	for i, item := range asList(data["entities"]) {
		m, ok := item.(map[string]any)
		if !ok {
			n.logger.Warn("skipping malformed entity", "index", i)
			continue
		}
		var e Entity
		if err := weakDecode(m, &e); err != nil {
			n.logger.Warn("skipping undecodable entity", "index", i, "err", err)
			continue
		}
		out.Entities = append(out.Entities, e)
	}

	for i, item := range asList(data["relationships"]) {
		m, ok := item.(map[string]any)
		if !ok {
			n.logger.Warn("skipping malformed relationship", "index", i)
			continue
		}
		var r Relationship
		if err := weakDecode(m, &r); err != nil {
			n.logger.Warn("skipping undecodable relationship", "index", i, "err", err)
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}

	return out
}

// Normalize fills every optional field with a deterministic default.
// Empty strings count as missing, so applying it twice changes nothing.
func (n *Normalizer) Normalize(e Extraction) Extraction {
	out := Extraction{
		PolicySections: make([]Section, len(e.PolicySections)),
		Entities:       make([]Entity, len(e.Entities)),
		Relationships:  make([]Relationship, len(e.Relationships)),
	}

	for i, s := range e.PolicySections {
		if s.ID == "" {
			s.ID = fmt.Sprintf("section_%d", i+1)
		}
		if s.Content == "" {
			s.Content = s.Title
		}

		reqs := make([]Requirement, len(s.Requirements))
		for j, r := range s.Requirements {
			if r.ID == "" {
				r.ID = fmt.Sprintf("req_%d.%d", i+1, j+1)
			}
			if r.FullReference == "" {
				r.FullReference = fmt.Sprintf("Section %d.%d", i+1, j+1)
			}
			reqs[j] = r
		}
		s.Requirements = reqs
		out.PolicySections[i] = s
	}

	for i, r := range e.Relationships {
		if r.Text == "" {
			r.Text = r.Description
		}
		if r.Text == "" {
			r.Text = fmt.Sprintf("Relationship %s to %s", r.From, r.To)
		}
		out.Relationships[i] = r
	}

	for i, ent := range e.Entities {
		if ent.Sentence == "" {
			ent.Sentence = ent.Description
		}
		out.Entities[i] = ent
	}

	n.logger.Debug("normalized extraction",
		"sections", len(out.PolicySections),
		"requirements", out.RequirementCount(),
		"entities", len(out.Entities),
		"relationships", len(out.Relationships))

	return out
}

// withRequirementList returns a copy of m whose requirements value is always
// a list of objects; bare strings become {"text": s}
func withRequirementList(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}

	var reqs []any
	for _, item := range asList(m["requirements"]) {
		switch v := item.(type) {
		case map[string]any:
			reqs = append(reqs, v)
		case string:
			reqs = append(reqs, map[string]any{"text": v})
		}
	}
	cp["requirements"] = reqs
	return cp
}

func asList(v any) []any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	return list
}

func weakDecode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
