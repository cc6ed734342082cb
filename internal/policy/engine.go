package policy

import "fmt"

// Engine makes policy decisions
type Engine struct {
	mode Mode
	isCI bool
}

// NewEngine creates a new policy engine
func NewEngine(mode Mode, isCI bool) *Engine {
	return &Engine{
		mode: mode,
		isCI: isCI,
	}
}

// PolicyInput represents input to the policy engine
type PolicyInput struct {
	Summary  ScanSummary
	Lockfile string
}

// PolicyResult represents the result of a policy decision
type PolicyResult struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// Evaluate evaluates a policy and returns a decision
func (e *Engine) Evaluate(input PolicyInput) PolicyResult {
	matches, mismatches := input.Summary.Matches, input.Summary.Mismatches

	if matches == 0 && mismatches == 0 {
		return PolicyResult{
			Decision: DecisionAllow,
			Reason:   "No indicators of compromise found",
		}
	}

	reason := fmt.Sprintf("%s contains %d compromised package(s) and %d version mismatch(es)",
		input.Lockfile, matches, mismatches)

	// CI mode overrides: any finding fails the build
	if e.isCI {
		return PolicyResult{
			Decision: DecisionBlock,
			Reason:   reason + " (CI mode)",
		}
	}

	switch e.mode {
	case ModeStrict:
		// Strict mode: mismatches are blocked too
		return PolicyResult{Decision: DecisionBlock, Reason: reason}

	case ModeWarn:
		// Warn mode: only confirmed matches block
		if matches > 0 {
			return PolicyResult{Decision: DecisionBlock, Reason: reason}
		}
		return PolicyResult{Decision: DecisionWarn, Reason: reason}
	}

	// Permissive mode: only warn, never block
	return PolicyResult{Decision: DecisionWarn, Reason: reason}
}

// ShouldBlock returns true if the decision is to block
func (pr PolicyResult) ShouldBlock() bool {
	return pr.Decision == DecisionBlock
}

// ShouldWarn returns true if the decision is to warn
func (pr PolicyResult) ShouldWarn() bool {
	return pr.Decision == DecisionWarn
}

// GetMode returns the current mode
func (e *Engine) GetMode() Mode {
	return e.mode
}

// IsCI returns the CI flag
func (e *Engine) IsCI() bool {
	return e.isCI
}
