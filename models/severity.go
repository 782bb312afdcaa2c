package models

import "strings"

// SeverityLevel is the normalized (lower case) severity of a finding.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "critical"
	SeverityHigh     SeverityLevel = "high"
	SeverityMedium   SeverityLevel = "medium"
	SeverityLow      SeverityLevel = "low"
	SeverityInfo     SeverityLevel = "info"
	SeverityUnknown  SeverityLevel = "unknown"
)

// Severities lists every bucket in display order, most severe first.
var Severities = []SeverityLevel{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
	SeverityUnknown,
}

// Weight returns a numeric weight for sorting (higher = more severe).
func (s SeverityLevel) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s SeverityLevel) String() string {
	return string(s)
}

// MapSeverity normalises a raw severity string. Matching is case-insensitive
// and anything outside the known buckets (including "") maps to unknown.
func MapSeverity(raw string) SeverityLevel {
	switch SeverityLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInfo:
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}
