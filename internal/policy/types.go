package policy

import "fmt"

// Mode represents the policy enforcement mode
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModeWarn       Mode = "warn"
	ModePermissive Mode = "permissive"
)

// ParseMode converts a --mode value into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeWarn, ModePermissive:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown policy mode %q (want strict, warn or permissive)", s)
	}
}

// Decision represents the policy decision result
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
	DecisionWarn  Decision = "warn"
)

// ScanSummary is what the engine needs to know about a finished scan
type ScanSummary struct {
	Matches    int `json:"matches"`    // installed at the flagged version
	Mismatches int `json:"mismatches"` // installed at another version
}
