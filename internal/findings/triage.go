package findings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/scanboard/models"
)

// ErrNotTriageTarget is returned for states an operator may not set by hand.
// NEW, OPEN and REGRESSED are derived by the backend from re-detection.
var ErrNotTriageTarget = errors.New("state is not an operator triage target")

// TriageTargets are the states an operator can move a finding to.
var TriageTargets = []models.FindingState{
	models.StateFalsePositive,
	models.StateAcceptedRisk,
	models.StateFixed,
}

// IsTriageTarget reports whether s is one of TriageTargets.
func IsTriageTarget(s models.FindingState) bool {
	for _, t := range TriageTargets {
		if t == s {
			return true
		}
	}
	return false
}

// ParseTriageTarget accepts "false_positive", "FALSE POSITIVE",
// "accepted-risk", "fixed" and similar spellings.
func ParseTriageTarget(raw string) (models.FindingState, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := models.FindingState(norm)
	if !IsTriageTarget(s) {
		return "", fmt.Errorf("%w: %q (valid: false_positive, accepted_risk, fixed)", ErrNotTriageTarget, raw)
	}
	return s, nil
}
