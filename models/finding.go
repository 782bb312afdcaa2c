package models

import (
	"encoding/json"
	"strings"
	"time"
)

// FindingState is the remediation lifecycle state of a finding.
type FindingState string

const (
	StateNew           FindingState = "NEW"
	StateOpen          FindingState = "OPEN"
	StateFixed         FindingState = "FIXED"
	StateRegressed     FindingState = "REGRESSED"
	StateFalsePositive FindingState = "FALSE_POSITIVE"
	StateAcceptedRisk  FindingState = "ACCEPTED_RISK"
)

// Label is the human form used on badges, e.g. "FALSE POSITIVE".
func (s FindingState) Label() string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ReplaceAll(strings.ToUpper(string(s)), "_", " ")
}

func (s FindingState) String() string {
	return string(s)
}

// Finding is a single detection as reported by the scanning backend.
// The backend deduplicates on Fingerprint; LastSeen moves forward every time
// the same fingerprint is observed again.
type Finding struct {
	ID          int64        `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ScanID      int64        `json:"scan_id"`
	TemplateID  string       `json:"template_id"`
	Info        string       `json:"info"` // JSON string of the template 'info' block
	Name        string       `json:"name"`
	Severity    string       `json:"severity"`
	Description string       `json:"description"`
	Host        string       `json:"host"`
	MatchedAt   string       `json:"matched_at"`
	Fingerprint string       `json:"fingerprint"`
	State       FindingState `json:"state"`
	FirstSeen   time.Time    `json:"first_seen"`
	LastSeen    time.Time    `json:"last_seen"`
	FixedAt     *time.Time   `json:"fixed_at,omitempty"`
}

// SeverityLevel returns the normalized severity bucket.
func (f Finding) SeverityLevel() SeverityLevel {
	return MapSeverity(f.Severity)
}

// DecodeInfo parses the opaque info payload. Anything that is not a JSON
// object decodes to an empty map.
func (f Finding) DecodeInfo() map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(f.Info) == "" {
		return out
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(f.Info), &decoded); err != nil || decoded == nil {
		return out
	}
	return decoded
}

// PrettyInfo renders the info payload as indented JSON ("{}" when undecodable).
func (f Finding) PrettyInfo() string {
	b, err := json.MarshalIndent(f.DecodeInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
