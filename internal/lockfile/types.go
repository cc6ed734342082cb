package lockfile

import (
	"fmt"
	"sort"
)

// Format identifies the on-disk layout of a lockfile
type Format string

const (
	// FormatTree is the nested JSON layout of package-lock.json / npm-shrinkwrap.json
	FormatTree Format = "tree"
	// FormatBlock is the indented text layout of yarn.lock
	FormatBlock Format = "block"
)

// Map is the canonical view of a lockfile: bare package name to the resolved
// version that was seen last.
type Map map[string]string

// Lookup returns the resolved version of name
func (m Map) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Names returns the package names in sorted order
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parser turns raw lockfile bytes into a Map
type Parser interface {
	Parse(data []byte) (Map, error)
}

// TreeParser parses the nested JSON format
type TreeParser struct{}

// Parse implements Parser
func (TreeParser) Parse(data []byte) (Map, error) {
	return ParseTree(data)
}

// BlockParser parses the indented block format
type BlockParser struct{}

// Parse implements Parser. It never fails.
func (BlockParser) Parse(data []byte) (Map, error) {
	return ParseBlock(data), nil
}

// ParserFor returns the parser for format
func ParserFor(format Format) (Parser, error) {
	switch format {
	case FormatTree:
		return TreeParser{}, nil
	case FormatBlock:
		return BlockParser{}, nil
	default:
		return nil, fmt.Errorf("unknown lockfile format %q", format)
	}
}
