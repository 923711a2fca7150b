// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package format implements the file-format-agnostic loader dispatcher
// consumed by the Parameter Loader: a registry from file
// extension to a Loader that turns file bytes into a generic nested Go
// value (map[string]any / []any / primitives).
package format

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Loader parses the bytes read from r into a generic nested structure.
type Loader interface {
	Load(r io.Reader) (any, error)
}

// Registry dispatches to a Loader by file extension.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a Registry pre-populated with the mandatory
// extensions: .yaml/.yml, .json, .toml, .py, plus .ini as
// an enrichment pulled from the broader ecosystem (see DESIGN.md).
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	r.Register(".yaml", YAMLLoader{})
	r.Register(".yml", YAMLLoader{})
	r.Register(".json", JSONLoader{})
	r.Register(".toml", TOMLLoader{})
	r.Register(".ini", INILoader{})
	r.Register(".py", PyLoader{})
	return r
}

// Register installs (or replaces) the loader for ext. ext must include the
// leading dot, e.g. ".yaml".
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[ext] = l
}

// Load dispatches path to the loader registered for its extension and
// parses the content read from r.
func (r *Registry) Load(path string, r2 io.Reader) (any, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("no loader registered for extension %q", ext)
	}
	return loader.Load(r2)
}

// Extensions returns the set of extensions this registry can dispatch,
// sorted for deterministic error messages.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// DuplicateKeyError is returned by a Loader when a mapping in the source
// document repeats a key; that must be a load-time error, not a silent overwrite.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q", e.Key)
}

// normalizeTree walks a decoded value and converts map[any]any /
// map[interface{}]interface{} shapes (as produced by some YAML decoders)
// into map[string]any, and numeric types into either int64 or float64, so
// every Loader returns a structurally uniform tree regardless of origin.
func normalizeTree(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			nv, err := normalizeTree(vv)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			nv, err := normalizeTree(vv)
			if err != nil {
				return nil, err
			}
			out[ks] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			nv, err := normalizeTree(vv)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case int:
		return int64(val), nil
	default:
		return v, nil
	}
}
