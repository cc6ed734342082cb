package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoyayamashita/iocgate/internal/ecosystem"
	"github.com/tomoyayamashita/iocgate/internal/lockfile"
	"github.com/tomoyayamashita/iocgate/internal/match"
	"github.com/tomoyayamashita/iocgate/internal/policy"
	"github.com/tomoyayamashita/iocgate/internal/scan"
)

func newReport(findings ...match.Outcome) *scan.Report {
	return &scan.Report{
		RunID: "run-1",
		Lockfile: ecosystem.LockfileIdentity{
			ID:        "yarn-lock",
			Ecosystem: ecosystem.EcosystemNPM,
			Format:    lockfile.FormatBlock,
			Path:      "yarn.lock",
		},
		Indicators: 3,
		Packages:   10,
		Outcomes:   findings,
		Findings:   findings,
	}
}

func TestWrite_Text(t *testing.T) {
	tests := []struct {
		name     string
		findings []match.Outcome
		want     string
	}{
		{
			name: "match",
			findings: []match.Outcome{
				{Name: "react", Resolved: "18.2.0", Expected: "18.2.0"},
			},
			want: "react: match found (version: 18.2.0)\n",
		},
		{
			name: "name-only indicator",
			findings: []match.Outcome{
				{Name: "left-pad", Resolved: "1.3.0"},
			},
			want: "left-pad: match found (version: 1.3.0)\n",
		},
		{
			name: "version mismatch",
			findings: []match.Outcome{
				{Name: "lodash", Resolved: "4.17.21", Expected: "4.17.20"},
			},
			want: "lodash: match found, version mismatch (CSV: 4.17.20, Lockfile: 4.17.21)\n",
		},
		{
			name: "findings keep their order",
			findings: []match.Outcome{
				{Name: "b", Resolved: "2.0.0", Expected: "1.0.0"},
				{Name: "a", Resolved: "1.0.0", Expected: "1.0.0"},
			},
			want: "b: match found, version mismatch (CSV: 1.0.0, Lockfile: 2.0.0)\n" +
				"a: match found (version: 1.0.0)\n",
		},
		{
			name: "no findings",
			want: "No matches found in the lock file.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, newReport(tt.findings...), Options{Format: FormatText, NoColor: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWrite_JSON(t *testing.T) {
	report := newReport(
		match.Outcome{Name: "react", Resolved: "18.2.0", Expected: "18.2.0"},
		match.Outcome{Name: "lodash", Resolved: "4.17.21", Expected: "4.17.20"},
	)
	decision := &policy.PolicyResult{Decision: policy.DecisionBlock, Reason: "blocked"}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report, Options{Format: FormatJSON, Decision: decision}))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "yarn.lock", got["lockfile"])
	assert.Equal(t, "block", got["format"])
	assert.Equal(t, false, got["clean"])
	assert.Equal(t, map[string]interface{}{"matches": float64(1), "mismatches": float64(1)}, got["summary"])
	assert.Equal(t, map[string]interface{}{"decision": "block", "reason": "blocked"}, got["decision"])

	findings, ok := got["findings"].([]interface{})
	require.True(t, ok)
	require.Len(t, findings, 2)
	assert.Equal(t, map[string]interface{}{
		"package":          "lodash",
		"status":           "version_mismatch",
		"version":          "4.17.21",
		"expected_version": "4.17.20",
	}, findings[1])
}

func TestWrite_JSONClean(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, newReport(), Options{Format: FormatJSON}))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, true, got["clean"])
	assert.Equal(t, []interface{}{}, got["findings"])
	assert.NotContains(t, got, "decision")
}

func TestParseFormat(t *testing.T) {
	got, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
