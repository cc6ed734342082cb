package scan

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoyayamashita/iocgate/internal/ecosystem"
	"github.com/tomoyayamashita/iocgate/internal/lockfile"
	"github.com/tomoyayamashita/iocgate/internal/logger"
	"github.com/tomoyayamashita/iocgate/internal/match"
	"github.com/tomoyayamashita/iocgate/internal/policy"
)

const feedCSV = `package,version
react,18.2.0
lodash,4.17.20
left-pad,
@scope/pkg,1.0.0
not-installed,1.0.0
`

const packageLock = `{
  "name": "app",
  "lockfileVersion": 1,
  "dependencies": {
    "react": {"version": "18.2.0"},
    "express": {
      "version": "4.18.2",
      "dependencies": {"lodash": {"version": "4.17.21"}}
    },
    "left-pad": {"version": "1.3.0"}
  }
}`

const yarnLock = `# yarn lockfile v1


"@scope/pkg@^1.0.0", "@scope/pkg@^1.0.1":
  version "1.0.0"

react@^18.0.0:
  version "18.2.0"
`

type stubFeed struct {
	text  string
	err   error
	calls int
}

func (f *stubFeed) Fetch(_ context.Context) (string, error) {
	f.calls++
	return f.text, f.err
}

func newDetector(t *testing.T) *ecosystem.Detector {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	config, err := ecosystem.LoadConfig("", []byte(`
lockfiles:
  - id: npm-package-lock
    format: tree
    names: [package-lock.json, npm-shrinkwrap.json]
  - id: yarn-lock
    format: block
    names: [yarn.lock]
`))
	require.NoError(t, err)
	return ecosystem.NewDetector(config)
}

func writeLockfile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanner_Run(t *testing.T) {
	tests := []struct {
		name         string
		file         string
		content      string
		wantFindings []match.Outcome
		wantPackages int
	}{
		{
			name:    "package-lock",
			file:    "package-lock.json",
			content: packageLock,
			wantFindings: []match.Outcome{
				{Name: "react", Resolved: "18.2.0", Expected: "18.2.0"},
				{Name: "lodash", Resolved: "4.17.21", Expected: "4.17.20"},
				{Name: "left-pad", Resolved: "1.3.0"},
			},
			wantPackages: 4,
		},
		{
			name:    "yarn.lock",
			file:    "yarn.lock",
			content: yarnLock,
			wantFindings: []match.Outcome{
				{Name: "react", Resolved: "18.2.0", Expected: "18.2.0"},
				{Name: "@scope/pkg", Resolved: "1.0.0", Expected: "1.0.0"},
			},
			wantPackages: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &stubFeed{text: feedCSV}
			scanner := NewScanner(Config{Detector: newDetector(t), Feed: feed})

			report, err := scanner.Run(context.Background(), writeLockfile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, tt.wantFindings, report.Findings)
			assert.Len(t, report.Outcomes, 5, "one outcome per indicator")
			assert.Equal(t, 5, report.Indicators)
			assert.Equal(t, tt.wantPackages, report.Packages)
			assert.False(t, report.Clean())
			assert.NotEmpty(t, report.RunID)
			assert.Equal(t, 1, feed.calls)
		})
	}
}

func TestScanner_Run_Clean(t *testing.T) {
	feed := &stubFeed{text: "package,version\nnot-installed,1.0.0\n"}
	scanner := NewScanner(Config{Detector: newDetector(t), Feed: feed})

	report, err := scanner.Run(context.Background(), writeLockfile(t, "package-lock.json", packageLock))
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Empty(t, report.Findings)
	assert.Equal(t, []match.Outcome{{Name: "not-installed", Expected: "1.0.0"}}, report.Outcomes)
	assert.Equal(t, policy.ScanSummary{}, report.Summary())
}

func TestScanner_Run_Errors(t *testing.T) {
	t.Run("unsupported file name", func(t *testing.T) {
		feed := &stubFeed{text: feedCSV}
		scanner := NewScanner(Config{Detector: newDetector(t), Feed: feed})

		_, err := scanner.Run(context.Background(), writeLockfile(t, "pnpm-lock.yaml", "lockfileVersion: 6.0\n"))
		assert.ErrorIs(t, err, ErrUnsupportedLockfile)
		assert.Equal(t, 0, feed.calls, "feed is not fetched for unsupported lockfiles")
	})

	t.Run("missing lockfile", func(t *testing.T) {
		feed := &stubFeed{text: feedCSV}
		scanner := NewScanner(Config{Detector: newDetector(t), Feed: feed})

		_, err := scanner.Run(context.Background(), filepath.Join(t.TempDir(), "yarn.lock"))
		assert.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("feed failure is returned unmodified", func(t *testing.T) {
		feedErr := errors.New("connection refused")
		scanner := NewScanner(Config{Detector: newDetector(t), Feed: &stubFeed{err: feedErr}})

		_, err := scanner.Run(context.Background(), writeLockfile(t, "yarn.lock", yarnLock))
		assert.Equal(t, feedErr, err)
	})

	t.Run("lockfile that is not JSON", func(t *testing.T) {
		scanner := NewScanner(Config{Detector: newDetector(t), Feed: &stubFeed{text: feedCSV}})

		_, err := scanner.Run(context.Background(), writeLockfile(t, "package-lock.json", "<<<<<<< HEAD\n"))
		assert.Error(t, err)
	})
}

func TestScanner_Run_MalformedInputIsNotFatal(t *testing.T) {
	scanner := NewScanner(Config{Detector: newDetector(t), Feed: &stubFeed{text: "\n\n"}})

	report, err := scanner.Run(context.Background(), writeLockfile(t, "package-lock.json", `{"dependencies": 42}`))
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 0, report.Packages)
	assert.Equal(t, 0, report.Indicators)
}

func TestScanner_Analyze_Idempotent(t *testing.T) {
	scanner := NewScanner(Config{Detector: newDetector(t), Feed: &stubFeed{}})
	id := ecosystem.LockfileIdentity{ID: "yarn-lock", Ecosystem: ecosystem.EcosystemNPM, Format: lockfile.FormatBlock, Path: "yarn.lock"}

	first, err := scanner.Analyze(id, []byte(yarnLock), feedCSV)
	require.NoError(t, err)
	second, err := scanner.Analyze(id, []byte(yarnLock), feedCSV)
	require.NoError(t, err)

	assert.Equal(t, first.Outcomes, second.Outcomes)
	assert.Equal(t, first.Findings, second.Findings)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestScanner_LogsFindings(t *testing.T) {
	var buf bytes.Buffer
	scanner := NewScanner(Config{
		Detector: newDetector(t),
		Feed:     &stubFeed{text: feedCSV},
		Logger:   logger.NewLogger(&buf, logger.LevelWarn),
	})

	report, err := scanner.Run(context.Background(), writeLockfile(t, "package-lock.json", packageLock))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(report.Findings))
	assert.Contains(t, lines[0], `"event":"finding"`)
	assert.Contains(t, lines[0], `"name":"react"`)
	assert.Contains(t, lines[1], `"status":"version_mismatch"`)
	assert.Contains(t, lines[1], `"request_id":"`+report.RunID+`"`)
}
