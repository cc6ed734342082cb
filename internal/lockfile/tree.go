package lockfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const nodeModulesPrefix = "node_modules/"

// ParseTree flattens a package-lock.json style document into a Map.
//
// Every level of the "dependencies" tree is visited in document order, an
// entry before its own nested dependencies, and a name seen later overwrites
// one seen earlier. Entries without a version are skipped. Lockfile v3
// documents, which only carry a flat "packages" object, are read from that
// object instead.
//
// A document whose shape is not recognized yields an empty Map. Only bytes
// that are not valid JSON produce an error.
func ParseTree(data []byte) (Map, error) {
	root, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	out := make(Map)
	if root.kind != kindObject {
		return out, nil
	}

	if deps, ok := root.lookup("dependencies"); ok {
		collectTree(deps, out)
		return out, nil
	}

	if pkgs, ok := root.lookup("packages"); ok {
		collectPackages(pkgs, out)
	}

	return out, nil
}

type treeEntry struct {
	name string
	info *node
}

// collectTree walks the dependency tree with an explicit stack so deeply
// nested input cannot exhaust the goroutine stack.
func collectTree(deps *node, out Map) {
	stack := pushEntries(nil, deps)

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if entry.info.kind != kindObject {
			continue
		}

		if version, ok := entry.info.stringField("version"); ok {
			out[entry.name] = version
		}

		if nested, ok := entry.info.lookup("dependencies"); ok {
			stack = pushEntries(stack, nested)
		}
	}
}

// pushEntries pushes the entries of deps in reverse so they pop in document order
func pushEntries(stack []treeEntry, deps *node) []treeEntry {
	if deps.kind != kindObject {
		return stack
	}
	for i := len(deps.keys) - 1; i >= 0; i-- {
		stack = append(stack, treeEntry{name: deps.keys[i], info: deps.values[i]})
	}
	return stack
}

func collectPackages(pkgs *node, out Map) {
	if pkgs.kind != kindObject {
		return
	}

	for i, key := range pkgs.keys {
		info := pkgs.values[i]
		if key == "" || info.kind != kindObject {
			continue
		}

		name := packageName(key, info)
		if name == "" {
			continue
		}

		if version, ok := info.stringField("version"); ok {
			out[name] = version
		}
	}
}

// packageName reduces a "packages" key such as
// "node_modules/a/node_modules/@scope/b" to "@scope/b". Workspace entries
// keyed by their directory fall back to their "name" field.
func packageName(key string, info *node) string {
	if idx := strings.LastIndex(key, nodeModulesPrefix); idx >= 0 {
		return key[idx+len(nodeModulesPrefix):]
	}
	name, _ := info.stringField("name")
	return name
}

type nodeKind int

const (
	kindOther nodeKind = iota
	kindString
	kindObject
	kindArray
)

// node is a decoded JSON value. Unlike map[string]interface{} it keeps object
// keys in document order, which decides which duplicate name wins.
type node struct {
	kind   nodeKind
	str    string
	keys   []string
	values []*node
}

func (n *node) lookup(key string) (*node, bool) {
	if n.kind != kindObject {
		return nil, false
	}
	for i, k := range n.keys {
		if k == key {
			return n.values[i], true
		}
	}
	return nil, false
}

// stringField returns the value of key when it is a non-empty string
func (n *node) stringField(key string) (string, bool) {
	v, ok := n.lookup(key)
	if !ok || v.kind != kindString || v.str == "" {
		return "", false
	}
	return v.str, true
}

// set keeps the position of the first occurrence of a duplicate key but the
// value of the last one.
func (n *node) set(key string, v *node) {
	for i, k := range n.keys {
		if k == key {
			n.values[i] = v
			return
		}
	}
	n.keys = append(n.keys, key)
	n.values = append(n.values, v)
}

// decodeOrdered decodes a single JSON document token by token
func decodeOrdered(data []byte) (*node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	type frame struct {
		n      *node
		key    string
		hasKey bool
	}

	var (
		root  *node
		stack []*frame
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var top *frame
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}

		var n *node
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				n = &node{kind: kindObject}
			case '[':
				n = &node{kind: kindArray}
			default:
				stack = stack[:len(stack)-1]
				continue
			}
		case string:
			if top != nil && top.n.kind == kindObject && !top.hasKey {
				top.key, top.hasKey = v, true
				continue
			}
			n = &node{kind: kindString, str: v}
		default:
			n = &node{kind: kindOther}
		}

		switch {
		case top == nil:
			if root != nil {
				return nil, errors.New("unexpected data after top-level value")
			}
			root = n
		case top.n.kind == kindObject:
			top.n.set(top.key, n)
			top.hasKey = false
		default:
			top.n.values = append(top.n.values, n)
		}

		if n.kind == kindObject || n.kind == kindArray {
			stack = append(stack, &frame{n: n})
		}
	}

	if len(stack) > 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if root == nil {
		return nil, errors.New("empty document")
	}

	return root, nil
}
