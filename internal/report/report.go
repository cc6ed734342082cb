// Package report renders scan results for people (text) and tools (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tomoyayamashita/iocgate/internal/match"
	"github.com/tomoyayamashita/iocgate/internal/policy"
	"github.com/tomoyayamashita/iocgate/internal/scan"
)

// Format selects the output encoding
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a --format value into a Format
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// NoMatchesMessage is printed when a scan has no findings
const NoMatchesMessage = "No matches found in the lock file."

// Options controls rendering
type Options struct {
	Format  Format
	NoColor bool
	// Decision is included in JSON output when set.
	Decision *policy.PolicyResult
}

// Write renders report to w
func Write(w io.Writer, report *scan.Report, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return writeJSON(w, report, opts.Decision)
	case FormatText, "":
		return writeText(w, report, opts.NoColor)
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

type styles struct {
	match    lipgloss.Style
	mismatch lipgloss.Style
	detail   lipgloss.Style
	clean    lipgloss.Style
}

func newStyles(w io.Writer, noColor bool) styles {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	return styles{
		match:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#D93025")),
		mismatch: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B")),
		detail:   r.NewStyle().Foreground(lipgloss.Color("#667085")),
		clean:    r.NewStyle().Foreground(lipgloss.Color("#22A06B")),
	}
}

func writeText(w io.Writer, report *scan.Report, noColor bool) error {
	st := newStyles(w, noColor)

	if report.Clean() {
		_, err := fmt.Fprintln(w, st.clean.Render(NoMatchesMessage))
		return err
	}

	for _, f := range report.Findings {
		var line string
		switch f.Status() {
		case match.StatusVersionMismatch:
			line = st.mismatch.Render(f.Name) + ": " +
				st.mismatch.Render("match found, version mismatch") + " " +
				st.detail.Render(fmt.Sprintf("(CSV: %s, Lockfile: %s)", f.Expected, f.Resolved))
		default:
			line = st.match.Render(f.Name) + ": " +
				st.match.Render("match found") + " " +
				st.detail.Render(fmt.Sprintf("(version: %s)", f.Resolved))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

type jsonFinding struct {
	Name            string       `json:"package"`
	Status          match.Status `json:"status"`
	Version         string       `json:"version"`
	ExpectedVersion string       `json:"expected_version,omitempty"`
}

type jsonReport struct {
	RunID      string               `json:"run_id"`
	Lockfile   string               `json:"lockfile"`
	Format     string               `json:"format"`
	Indicators int                  `json:"indicators"`
	Packages   int                  `json:"packages"`
	Clean      bool                 `json:"clean"`
	Summary    policy.ScanSummary   `json:"summary"`
	Findings   []jsonFinding        `json:"findings"`
	Decision   *policy.PolicyResult `json:"decision,omitempty"`
}

func writeJSON(w io.Writer, report *scan.Report, decision *policy.PolicyResult) error {
	out := jsonReport{
		RunID:      report.RunID,
		Lockfile:   report.Lockfile.Path,
		Format:     string(report.Lockfile.Format),
		Indicators: report.Indicators,
		Packages:   report.Packages,
		Clean:      report.Clean(),
		Summary:    report.Summary(),
		Findings:   make([]jsonFinding, 0, len(report.Findings)),
		Decision:   decision,
	}

	for _, f := range report.Findings {
		out.Findings = append(out.Findings, jsonFinding{
			Name:            f.Name,
			Status:          f.Status(),
			Version:         f.Resolved,
			ExpectedVersion: f.Expected,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
