package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ppiankov/policygraph/internal/logging"
)

// maxParseAttempts bounds how many candidate strings are parsed per reply
const maxParseAttempts = 3

var (
	fenceJSONRe = regexp.MustCompile("```json\\s*")
	fenceRe     = regexp.MustCompile("```\\s*")

	// one level of nesting, used when brace tracking finds no balanced span
	nestedObjectRe = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

	trailingObjCommaRe = regexp.MustCompile(`,\s*\}`)
	trailingArrCommaRe = regexp.MustCompile(`,\s*\]`)
	bareKeyRe          = regexp.MustCompile(`([{,])\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	singleValueRe      = regexp.MustCompile(`:\s*'([^']+)'`)
	singleKeyRe        = regexp.MustCompile(`'([^']+)'\s*:`)
	objectGapRe        = regexp.MustCompile(`\}\s*\{`)
	arrayObjectGapRe   = regexp.MustCompile(`\]\s*\{`)
	leadingJunkRe      = regexp.MustCompile(`^[^{]*`)
	trailingJunkRe     = regexp.MustCompile(`[^}]*$`)
)

type repair struct {
	name  string
	apply func(string) string
}

// repairChain is applied in order
var repairChain = []repair{
	{"trailing_object_comma", func(s string) string { return trailingObjCommaRe.ReplaceAllString(s, "}") }},
	{"trailing_array_comma", func(s string) string { return trailingArrCommaRe.ReplaceAllString(s, "]") }},
	{"bare_keys", func(s string) string { return bareKeyRe.ReplaceAllString(s, `${1}"${2}":`) }},
	{"single_quoted_values", func(s string) string { return singleValueRe.ReplaceAllString(s, `: "${1}"`) }},
	{"single_quoted_keys", func(s string) string { return singleKeyRe.ReplaceAllString(s, `"${1}":`) }},
	{"line_comments", stripLineComments},
	{"object_separators", func(s string) string { return objectGapRe.ReplaceAllString(s, "}, {") }},
	{"array_object_separators", func(s string) string { return arrayObjectGapRe.ReplaceAllString(s, "], {") }},
	{"leading_junk", func(s string) string { return leadingJunkRe.ReplaceAllString(s, "") }},
	{"trailing_junk", func(s string) string { return trailingJunkRe.ReplaceAllString(s, "") }},
}

// Recoverer salvages a JSON object from raw model output
type Recoverer struct {
	logger *log.Logger
}

// NewRecoverer creates a recoverer; a nil logger discards output
func NewRecoverer(logger *log.Logger) *Recoverer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recoverer{logger: logger}
}

// Recover uses a recoverer that logs nothing
func Recover(raw string) map[string]any {
	return NewRecoverer(nil).Recover(raw)
}

// Recover returns the first object it can parse out of raw, or the canonical
// empty result. It never fails.
func (r *Recoverer) Recover(raw string) (result map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("recovery aborted", "panic", p)
			result = EmptyResult()
		}
	}()

	candidate := CaptureObject(raw)
	if candidate == "" {
		r.logger.Warn("no JSON object found in response", "chars", len(raw))
		return EmptyResult()
	}

	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		obj, err := parseObject(candidate)
		if err == nil {
			r.logger.Debug("parsed response", "attempt", attempt)
			return obj
		}
		r.logger.Debug("parse attempt failed", "attempt", attempt, "err", err)

		switch attempt {
		case 1:
			candidate = applyRepairs(candidate)
		case 2:
			candidate = r.deepRepair(applyRepairs(candidate))
		}
	}

	r.logger.Warn("all parse attempts failed", "attempts", maxParseAttempts)
	return EmptyResult()
}

// deepRepair hands the heuristically repaired text to a general JSON repairer
func (r *Recoverer) deepRepair(s string) string {
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		r.logger.Debug("json repair failed", "err", err)
		return s
	}
	return repaired
}

// CaptureObject strips code fences and returns the best candidate object span
func CaptureObject(raw string) string {
	cleaned := fenceJSONRe.ReplaceAllString(raw, "")
	cleaned = fenceRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if span := balancedSpan(cleaned); span != "" {
		return span
	}
	if m := nestedObjectRe.FindString(cleaned); m != "" {
		return m
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		return cleaned[start : end+1]
	}
	return ""
}

// balancedSpan returns the first top-level {...} span, skipping braces
// inside double-quoted strings
func balancedSpan(s string) string {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func applyRepairs(s string) string {
	for _, step := range repairChain {
		s = step.apply(s)
	}
	return s
}

// stripLineComments removes // comments that sit outside string literals
func stripLineComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

func parseObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}
