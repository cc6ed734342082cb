package lockfile

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// Header: everything on the first line of a block up to its first colon.
	blockHeaderRegex = regexp.MustCompile(`^([^\n:]+):`)
	// Version: first body line of the form `version "1.2.3"`.
	blockVersionRegex = regexp.MustCompile(`\n\s*version\s+"([^"]+)"`)
)

// ParseBlock reads a yarn.lock style document into a Map.
//
// A block starts at every line that does not begin with whitespace. Its
// header lists one or more comma-separated specifiers that all resolve to
// the version given on the block's `version "..."` line. Blocks without a
// recognizable header or version are skipped; later blocks overwrite
// earlier ones.
func ParseBlock(data []byte) Map {
	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "\uFFFD")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")

	out := make(Map)
	for _, block := range splitBlocks(content) {
		names, version, ok := parseBlock(block)
		if !ok {
			continue
		}
		for _, name := range names {
			out[name] = version
		}
	}
	return out
}

// splitBlocks cuts content in front of every line that starts a new entry.
// Blank and indented lines stay with the block they follow.
func splitBlocks(content string) []string {
	lines := strings.Split(content, "\n")

	var blocks []string
	start := 0
	for i := 1; i < len(lines); i++ {
		if startsBlock(lines[i]) {
			blocks = append(blocks, strings.Join(lines[start:i], "\n"))
			start = i
		}
	}
	return append(blocks, strings.Join(lines[start:], "\n"))
}

func startsBlock(line string) bool {
	r, size := utf8.DecodeRuneInString(line)
	return size > 0 && !unicode.IsSpace(r)
}

func parseBlock(block string) ([]string, string, bool) {
	header := blockHeaderRegex.FindStringSubmatch(block)
	if header == nil {
		return nil, "", false
	}

	version := blockVersionRegex.FindStringSubmatch(block)
	if version == nil {
		return nil, "", false
	}

	var names []string
	for _, token := range strings.Split(header[1], ",") {
		if name := specifierName(token); name != "" {
			names = append(names, name)
		}
	}

	return names, version[1], true
}

// specifierName strips the range from a header token:
//
//	"lodash@^4.17.21"        -> lodash
//	"@babel/core@^7.0.0"     -> @babel/core
//	"@babel/core"            -> @babel/core
func specifierName(token string) string {
	token = strings.TrimSpace(token)
	token = strings.Trim(token, `"`)
	token = strings.Trim(token, `'`)

	if strings.HasPrefix(token, "@") {
		if at := strings.LastIndex(token, "@"); at > 0 {
			return token[:at]
		}
		return token
	}

	name, _, _ := strings.Cut(token, "@")
	return name
}
