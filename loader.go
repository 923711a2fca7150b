// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
	"golang.org/x/time/rate"

	"github.com/noi-techpark/dvcgo/format"
)

// gojqHasKey probes for a top-level key's existence via a compiled gojq
// `has(...)` query rather than a plain map lookup, so the same existence
// check could be extended to arbitrary jq filters (e.g. a future
// `path:.a.b` selector) without changing call sites.
func gojqHasKey(m map[string]any, k string) (bool, error) {
	query, err := gojq.Parse(fmt.Sprintf("has(%q)", k))
	if err != nil {
		return false, err
	}
	iter := query.Run(m)
	v, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, isErr := v.(error); isErr {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// VarsEntry is one element of a document's (or stage's) `vars` list: either
// a path reference (optionally "path:key1,key2") or an inline mapping.
type VarsEntry struct {
	Path   string         // non-empty for path references
	Inline map[string]any // non-nil for inline mappings
}

// ParameterLoader is the Parameter Loader: given a file reference, it loads
// the file via the format dispatcher, optionally projects to a subset of
// top-level keys, and merges the result into a Context, annotated with its
// source.
//
// Repeated loads of the same resolved path (common across many foreach /
// matrix iterations whose local `vars` reference the same file) are served
// from an in-memory cache; the first read of any given path is gated by a
// token-bucket rate limiter so that a document with thousands of generated
// stages each referencing a distinct templated vars path doesn't fan out
// into an unbounded burst of concurrent disk opens.
type ParameterLoader struct {
	FS       FS
	Registry *format.Registry
	Limiter  *rate.Limiter

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	data any
	err  error
}

// NewParameterLoader returns a ParameterLoader reading through fsys via
// reg, rate-limited to 50 new file reads/second with a burst of 10.
func NewParameterLoader(fsys FS, reg *format.Registry) *ParameterLoader {
	return &ParameterLoader{
		FS:       fsys,
		Registry: reg,
		Limiter:  rate.NewLimiter(rate.Limit(50), 10),
		cache:    make(map[string]cacheEntry),
	}
}

// splitPathKeys splits a "path:key1,key2" reference into its path and the
// requested key subset (nil when no `:` suffix is present).
func splitPathKeys(ref string) (string, []string) {
	idx := strings.LastIndexByte(ref, ':')
	if idx < 0 {
		return ref, nil
	}
	// Guard against Windows-style drive letters ("C:\...") which aren't a
	// key-subset suffix: only treat `:` as the separator when what follows
	// looks like a comma-separated key list, i.e. contains no path
	// separators.
	suffix := ref[idx+1:]
	if strings.ContainsAny(suffix, `/\`) {
		return ref, nil
	}
	keys := strings.Split(suffix, ",")
	for i, k := range keys {
		keys[i] = strings.TrimSpace(k)
	}
	return ref[:idx], keys
}

func sameKeySubset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]string(nil), a...)
	bc := append([]string(nil), b...)
	sort.Strings(ac)
	sort.Strings(bc)
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

// read returns the parsed tree for path, populating the cache on first
// read and rate-limiting the underlying disk open.
func (pl *ParameterLoader) read(path string) (any, error) {
	pl.mu.Lock()
	if e, ok := pl.cache[path]; ok {
		pl.mu.Unlock()
		return e.data, e.err
	}
	pl.mu.Unlock()

	_ = pl.Limiter.Wait(context.Background())

	data, err := pl.readUncached(path)

	pl.mu.Lock()
	pl.cache[path] = cacheEntry{data: data, err: err}
	pl.mu.Unlock()

	return data, err
}

func (pl *ParameterLoader) readUncached(path string) (any, error) {
	if strings.ToLower(filepath.Ext(path)) == ".py" {
		return format.PyLoader{}.LoadFile(path)
	}

	r, err := pl.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return pl.Registry.Load(path, r)
}

// LoadFromVars populates ctx (merging
// with overwrite=false) from vars, or from defaultPath relative to wdir
// when vars is empty and that file exists.
func (pl *ParameterLoader) LoadFromVars(ctx *Context, vars []VarsEntry, wdir, defaultPath string) error {
	if len(vars) == 0 {
		full := pl.FS.Normpath(pl.FS.Join(wdir, defaultPath))
		if pl.FS.Exists(full) {
			return pl.loadPath(ctx, full, nil)
		}
		return nil
	}

	for _, v := range vars {
		if v.Inline != nil {
			if err := pl.mergeInline(ctx, v.Inline); err != nil {
				return err
			}
			continue
		}

		ref, keys := splitPathKeys(v.Path)
		full := pl.FS.Normpath(pl.FS.Join(wdir, ref))
		if err := pl.loadPath(ctx, full, keys); err != nil {
			return err
		}
	}
	return nil
}

func (pl *ParameterLoader) mergeInline(ctx *Context, inline map[string]any) error {
	node, err := BuildNode(inline, Meta{})
	if err != nil {
		return err
	}
	return ctx.Mapping.MergeUpdate(node.(*Mapping), false)
}

func (pl *ParameterLoader) loadPath(ctx *Context, path string, keys []string) error {
	if prev, ok := ctx.imports[path]; ok {
		var prevKeys []string
		if prev != nil {
			prevKeys = *prev
		}
		if sameKeySubset(prevKeys, keys) {
			return nil
		}
		return &VarsAlreadyLoadedError{Path: path}
	}

	if !pl.FS.Exists(path) || pl.FS.IsDir(path) {
		return &ParamsLoadError{Path: path}
	}

	raw, err := pl.read(path)
	if err != nil {
		return &FileCorruptedError{Path: path, Err: err}
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return &FileCorruptedError{Path: path, Err: fmt.Errorf("expected a mapping at the top level, got %T", raw)}
	}

	if len(keys) > 0 {
		projected := make(map[string]any, len(keys))
		for _, k := range keys {
			has, herr := gojqHasKey(m, k)
			if herr != nil {
				return &FileCorruptedError{Path: path, Err: herr}
			}
			if !has {
				return &VarsKeyNotFoundError{Key: k, Path: path}
			}
			projected[k] = m[k]
		}
		m = projected
	}

	srcPath := path
	node, err := BuildNode(m, Meta{Source: &srcPath})
	if err != nil {
		return err
	}
	if err := ctx.Mapping.MergeUpdate(node.(*Mapping), false); err != nil {
		return err
	}

	var keysCopy *[]string
	if keys != nil {
		kc := append([]string(nil), keys...)
		keysCopy = &kc
	}
	ctx.imports[path] = keysCopy
	return nil
}
