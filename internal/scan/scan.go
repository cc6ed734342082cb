package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tomoyayamashita/iocgate/internal/ecosystem"
	"github.com/tomoyayamashita/iocgate/internal/indicator"
	"github.com/tomoyayamashita/iocgate/internal/lockfile"
	"github.com/tomoyayamashita/iocgate/internal/logger"
	"github.com/tomoyayamashita/iocgate/internal/match"
	"github.com/tomoyayamashita/iocgate/internal/policy"
)

// ErrUnsupportedLockfile is returned for file names no lockfile kind claims
var ErrUnsupportedLockfile = errors.New("unsupported lockfile")

// FeedSource supplies the raw IOC feed text
type FeedSource interface {
	Fetch(ctx context.Context) (string, error)
}

// Config represents scanner configuration
type Config struct {
	Detector *ecosystem.Detector
	Feed     FeedSource
	Logger   *logger.Logger
}

// Scanner runs the lockfile-against-feed pipeline
type Scanner struct {
	detector *ecosystem.Detector
	feed     FeedSource
	logger   *logger.Logger
}

// NewScanner creates a new Scanner
func NewScanner(config Config) *Scanner {
	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Scanner{
		detector: config.Detector,
		feed:     config.Feed,
		logger:   log,
	}
}

// Report is the result of one scan
type Report struct {
	RunID      string                     `json:"run_id"`
	Lockfile   ecosystem.LockfileIdentity `json:"lockfile"`
	Indicators int                        `json:"indicators"`
	Packages   int                        `json:"packages"`
	Outcomes   []match.Outcome            `json:"-"`
	Findings   []match.Outcome            `json:"findings"`
}

// Clean reports whether the scan produced no findings
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// Summary counts the findings for the policy engine
func (r *Report) Summary() policy.ScanSummary {
	matches, mismatches := match.Count(r.Findings)
	return policy.ScanSummary{Matches: matches, Mismatches: mismatches}
}

// Detect resolves the lockfile kind of path from its file name
func (s *Scanner) Detect(path string) (*ecosystem.LockfileIdentity, error) {
	id := s.detector.DetectFromPath(path)
	if id == nil {
		return nil, fmt.Errorf("%w: %s (expected one of %v)",
			ErrUnsupportedLockfile, filepath.Base(path), s.detector.SupportedNames())
	}
	return id, nil
}

// Run scans the lockfile at path against the feed. Unsupported or unreadable
// lockfiles and feed failures abort the run; everything past that point is
// tolerant of malformed input.
func (s *Scanner) Run(ctx context.Context, path string) (*Report, error) {
	id, err := s.Detect(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	text, err := s.feed.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	return s.Analyze(*id, data, text)
}

// Analyze runs the parse, match and classify steps on already loaded inputs
func (s *Scanner) Analyze(id ecosystem.LockfileIdentity, lockData []byte, feedText string) (*Report, error) {
	runID := uuid.New().String()

	parser, err := lockfile.ParserFor(id.Format)
	if err != nil {
		return nil, err
	}

	lock, err := parser.Parse(lockData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(id.Path), err)
	}

	indicators := indicator.Parse(feedText)

	s.logger.Info("scan_parsed", "Parsed lockfile and IOC feed", map[string]interface{}{
		"lockfile":   id.Path,
		"format":     string(id.Format),
		"packages":   len(lock),
		"indicators": len(indicators),
		"request_id": runID,
	})

	outcomes := match.Match(indicators, lock)
	findings := match.Findings(outcomes)

	for _, f := range findings {
		s.logger.LogFinding(id.Package(f.Name, f.Resolved), f.Expected, string(f.Status()), id.Path, runID)
	}

	return &Report{
		RunID:      runID,
		Lockfile:   id,
		Indicators: len(indicators),
		Packages:   len(lock),
		Outcomes:   outcomes,
		Findings:   findings,
	}, nil
}
