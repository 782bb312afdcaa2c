package findings

import (
	"sort"
	"strings"

	"github.com/CosmoTheDev/scanboard/models"
)

// SeveritySet is the set of severity buckets currently shown.
type SeveritySet map[models.SeverityLevel]struct{}

// AllSeverities returns a set with every bucket, unknown included.
func AllSeverities() SeveritySet {
	s := make(SeveritySet, len(models.Severities))
	for _, sev := range models.Severities {
		s[sev] = struct{}{}
	}
	return s
}

// NewSeveritySet builds a set from the given levels.
func NewSeveritySet(levels ...models.SeverityLevel) SeveritySet {
	s := make(SeveritySet, len(levels))
	for _, l := range levels {
		s[l] = struct{}{}
	}
	return s
}

// ParseSeveritySet parses a comma-separated list such as "critical,HIGH".
// Unrecognised names land in the unknown bucket. An empty string means all.
func ParseSeveritySet(raw string) SeveritySet {
	if strings.TrimSpace(raw) == "" {
		return AllSeverities()
	}
	s := SeveritySet{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			s[models.MapSeverity(part)] = struct{}{}
		}
	}
	return s
}

func (s SeveritySet) Has(level models.SeverityLevel) bool {
	_, ok := s[level]
	return ok
}

// Toggle returns a copy of s with level flipped.
func (s SeveritySet) Toggle(level models.SeverityLevel) SeveritySet {
	out := s.Clone()
	if out.Has(level) {
		delete(out, level)
	} else {
		out[level] = struct{}{}
	}
	return out
}

func (s SeveritySet) Clone() SeveritySet {
	out := make(SeveritySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Sorted lists the members most severe first.
func (s SeveritySet) Sorted() []models.SeverityLevel {
	out := make([]models.SeverityLevel, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight() > out[j].Weight() })
	return out
}

// Filter returns, in their original order, the findings whose name,
// template id or host contains query (case-insensitive) and whose severity
// bucket is in active. An empty query matches everything; an empty set
// matches nothing.
func Filter(list []models.Finding, query string, active SeveritySet) []models.Finding {
	out := make([]models.Finding, 0, len(list))
	if len(active) == 0 {
		return out
	}
	q := strings.ToLower(query)
	for _, f := range list {
		if !active.Has(f.SeverityLevel()) {
			continue
		}
		if q != "" && !matchesQuery(f, q) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesQuery(f models.Finding, q string) bool {
	return strings.Contains(strings.ToLower(f.Name), q) ||
		strings.Contains(strings.ToLower(f.TemplateID), q) ||
		strings.Contains(strings.ToLower(f.Host), q)
}
