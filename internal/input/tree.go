// Package input reads the object tree a run is triggered with and selects the
// building geometry that goes into the simulation domain.
//
// The tree is the JSON (or YAML) form of a versioned model: every object carries
// an "id" and a "speckle_type"; children hang off "elements" or any member whose
// name starts with "@". Display meshes live under "displayValue".
package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for input files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Base is one object of the tree.
type Base struct {
	ID          string
	SpeckleType string
	Members     map[string]any
}

// Format is the serialization of an input tree.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// LoadFile decodes the tree stored at path.
func LoadFile(path string) (*Base, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return Decode(f, format)
}

// Decode reads one tree from r.
func Decode(r io.Reader, format Format) (*Base, error) {
	var raw any
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json input: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode yaml input: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	root, ok := asBase(raw)
	if !ok {
		return nil, fmt.Errorf("input root is not an object")
	}
	return root, nil
}

// asBase recognizes an object node. Anything that is a map counts; the type
// may still be empty.
func asBase(v any) (*Base, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	b := &Base{Members: m}
	b.ID, _ = m["id"].(string)
	b.SpeckleType, _ = m["speckle_type"].(string)
	return b, true
}

// Get returns a member by name, trying the detached "@name" spelling too.
func (b *Base) Get(name string) (any, bool) {
	if v, ok := b.Members[name]; ok {
		return v, true
	}
	v, ok := b.Members["@"+name]
	return v, ok
}

// children lists the nested objects of b in a stable order: elements first,
// then detached members by name. Display meshes are not children.
func (b *Base) children() []*Base {
	var out []*Base
	collect := func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if c, ok := asBase(item); ok {
					out = append(out, c)
				}
			}
		default:
			if c, ok := asBase(t); ok {
				out = append(out, c)
			}
		}
	}

	if v, ok := b.Get("elements"); ok {
		collect(v)
	}
	keys := make([]string, 0, len(b.Members))
	for k := range b.Members {
		if strings.HasPrefix(k, "@") && k != "@elements" && k != "@displayValue" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		collect(b.Members[k])
	}
	return out
}

// Flatten walks root depth-first, parents before children. An object id seen
// twice is visited once.
func Flatten(root *Base) iter.Seq[*Base] {
	return func(yield func(*Base) bool) {
		seen := make(map[string]bool)
		var walk func(b *Base) bool
		walk = func(b *Base) bool {
			if b.ID != "" {
				if seen[b.ID] {
					return true
				}
				seen[b.ID] = true
			}
			if !yield(b) {
				return false
			}
			for _, c := range b.children() {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		if root != nil {
			walk(root)
		}
	}
}
