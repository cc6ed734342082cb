package match

import (
	"github.com/tomoyayamashita/iocgate/internal/indicator"
	"github.com/tomoyayamashita/iocgate/internal/lockfile"
)

// Status classifies an Outcome
type Status string

const (
	// StatusMatch means the package is installed at the flagged version, or
	// at any version when the indicator does not pin one.
	StatusMatch Status = "match"
	// StatusVersionMismatch means the package is installed at a different
	// version than the one flagged.
	StatusVersionMismatch Status = "version_mismatch"
	// StatusNotFound means the package is not in the lockfile. This is never
	// reported as a finding.
	StatusNotFound Status = "not_found"
)

// Outcome pairs one indicator with what the lockfile says about it
type Outcome struct {
	Name     string `json:"package"`
	Resolved string `json:"resolved_version,omitempty"` // empty when not in the lockfile
	Expected string `json:"expected_version,omitempty"` // empty when the indicator pins no version
}

// Status classifies the outcome
func (o Outcome) Status() Status {
	switch {
	case o.Resolved == "":
		return StatusNotFound
	case o.Expected != "" && o.Expected != o.Resolved:
		return StatusVersionMismatch
	default:
		return StatusMatch
	}
}

// IsFinding reports whether the outcome should be reported
func (o Outcome) IsFinding() bool {
	return o.Status() != StatusNotFound
}

// Match checks each indicator against lock. It returns exactly one outcome
// per indicator, in the same order, including indicators that are absent
// from the lockfile.
func Match(indicators []indicator.Record, lock lockfile.Map) []Outcome {
	outcomes := make([]Outcome, 0, len(indicators))
	for _, ind := range indicators {
		resolved, _ := lock.Lookup(ind.Name)
		outcomes = append(outcomes, Outcome{
			Name:     ind.Name,
			Resolved: resolved,
			Expected: ind.Version,
		})
	}
	return outcomes
}

// Findings returns the outcomes that are matches or version mismatches
func Findings(outcomes []Outcome) []Outcome {
	var findings []Outcome
	for _, o := range outcomes {
		if o.IsFinding() {
			findings = append(findings, o)
		}
	}
	return findings
}

// Count returns the number of matches and version mismatches in outcomes
func Count(outcomes []Outcome) (matches, mismatches int) {
	for _, o := range outcomes {
		switch o.Status() {
		case StatusMatch:
			matches++
		case StatusVersionMismatch:
			mismatches++
		}
	}
	return matches, mismatches
}
