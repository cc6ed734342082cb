package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = "Package,Version\n@ctrl/tinycolor,4.1.1\nkoa2-swagger-ui,\n"

const testPackageLock = `{
  "name": "app",
  "lockfileVersion": 1,
  "dependencies": {
    "@ctrl/tinycolor": {"version": "4.1.2"},
    "koa2-swagger-ui": {"version": "5.11.1"},
    "react": {"version": "18.2.0"}
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRunScan_Text(t *testing.T) {
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "iocs.csv", testFeed)
	lockPath := writeFile(t, dir, "package-lock.json", testPackageLock)

	out, err := execute(t, "--feed-file", feedPath, "--no-color", lockPath)
	require.NoError(t, err)

	assert.Equal(t,
		"@ctrl/tinycolor: match found, version mismatch (CSV: 4.1.1, Lockfile: 4.1.2)\n"+
			"koa2-swagger-ui: match found (version: 5.11.1)\n",
		out)
}

func TestRunScan_NoMatches(t *testing.T) {
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "iocs.csv", "package,version\nnot-installed,1.0.0\n")
	lockPath := writeFile(t, dir, "yarn.lock", "react@^18.0.0:\n  version \"18.2.0\"\n")

	out, err := execute(t, "--feed-file", feedPath, "--no-color", "--ci", lockPath)
	require.NoError(t, err)
	assert.Equal(t, "No matches found in the lock file.\n", out)
}

func TestRunScan_PolicyBlock(t *testing.T) {
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "iocs.csv", testFeed)
	lockPath := writeFile(t, dir, "package-lock.json", testPackageLock)

	tests := []struct {
		name      string
		flags     []string
		wantBlock bool
	}{
		{name: "permissive", flags: nil, wantBlock: false},
		{name: "warn", flags: []string{"--mode", "warn"}, wantBlock: true},
		{name: "strict", flags: []string{"--mode", "strict"}, wantBlock: true},
		{name: "ci", flags: []string{"--ci"}, wantBlock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--feed-file", feedPath, "--no-color"}, tt.flags...)
			_, err := execute(t, append(args, lockPath)...)
			if tt.wantBlock {
				assert.ErrorIs(t, err, errBlocked)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunScan_JSON(t *testing.T) {
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "iocs.csv", testFeed)
	lockPath := writeFile(t, dir, "package-lock.json", testPackageLock)

	out, err := execute(t, "--feed-file", feedPath, "--format", "json", lockPath)
	require.NoError(t, err)

	var got struct {
		Findings []map[string]string `json:"findings"`
		Decision map[string]string   `json:"decision"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Findings, 2)
	assert.Equal(t, "warn", got.Decision["decision"])
}

func TestRunScan_Errors(t *testing.T) {
	dir := t.TempDir()
	feedPath := writeFile(t, dir, "iocs.csv", testFeed)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no lockfile", args: []string{"--feed-file", feedPath}},
		{name: "two lockfiles", args: []string{"--feed-file", feedPath, "a/yarn.lock", "b/yarn.lock"}},
		{name: "unsupported file name", args: []string{"--feed-file", feedPath, writeFile(t, dir, "pnpm-lock.yaml", "")}},
		{name: "missing lockfile", args: []string{"--feed-file", feedPath, filepath.Join(dir, "missing", "yarn.lock")}},
		{name: "missing feed file", args: []string{"--feed-file", filepath.Join(dir, "missing.csv"), writeFile(t, dir, "yarn.lock", "")}},
		{name: "bad mode", args: []string{"--feed-file", feedPath, "--mode", "paranoid", writeFile(t, dir, "package-lock.json", "{}")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.NotErrorIs(t, err, errBlocked)
		})
	}
}

func TestPrintConfig(t *testing.T) {
	out, err := execute(t, "print-config", "--mode", "strict")
	require.NoError(t, err)

	assert.Contains(t, out, "# config file: [none]")
	assert.Contains(t, out, "mode: strict")
	assert.Contains(t, out, "timeout: 20s")
}
