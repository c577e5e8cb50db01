package graph

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const sectionPrefix = "Policy_Section_"

var canonicalSectionRe = regexp.MustCompile(`^Policy_Section_\d+$`)

// SectionID maps an extracted section id to Policy_Section_<n>. Ids that are
// already canonical are kept; otherwise the digits of the id are used, and
// ids without digits fall back to a 4-digit hash that may collide.
func SectionID(id string) string {
	if canonicalSectionRe.MatchString(id) {
		return id
	}

	var digits strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() > 0 {
		return sectionPrefix + digits.String()
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return fmt.Sprintf("%s%d", sectionPrefix, h.Sum32()%10000)
}

// RequirementID replaces spaces and periods with underscores, except for ids
// already in the section namespace
func RequirementID(id string) string {
	if strings.HasPrefix(id, sectionPrefix) {
		return id
	}
	return strings.NewReplacer(" ", "_", ".", "_").Replace(id)
}

// DocumentName is the base file name cut at its first period, used to name
// the persisted graph
func DocumentName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// containsFold is a case-insensitive substring test
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}
