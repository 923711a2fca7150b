// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Meta is attached to every Node in a Context tree. Source is nil for
// values declared inline (global `vars` entries written as mappings, `set`
// blocks); DPath is the path of keys/indices from the root of the file (or
// inline block) that produced this node; Local marks values introduced
// locally (e.g. `item`/`key` injection) so they are never tracked as inputs.
type Meta struct {
	Source *string
	DPath  []string
	Local  bool
}

// Path renders the dotted path of this node within its source.
func (m Meta) Path() string {
	return strings.Join(m.DPath, ".")
}

func (m Meta) String() string {
	src := "<local>"
	if m.Source != nil {
		src = *m.Source
	}
	if p := m.Path(); p != "" {
		return src + ":" + p
	}
	return src
}

func (m Meta) child(key string) Meta {
	dpath := make([]string, len(m.DPath)+1)
	copy(dpath, m.DPath)
	dpath[len(m.DPath)] = key
	return Meta{Source: m.Source, DPath: dpath, Local: m.Local}
}

// Node is the tagged-variant symbol holding either a Scalar, a Sequence or
// a Mapping. All three satisfy Node.
type Node interface {
	NodeMeta() Meta
	// sources collects the (source -> dotted path -> resolved value)
	// triples reachable from this node, used by tracking.
	sources(into map[string]map[string]any)
	clone() Node
	// value returns the underlying Go value (unwrapped), recursively.
	value() any
}

// Scalar wraps a primitive: nil, bool, int64, float64, string or []byte.
type Scalar struct {
	Value any
	Meta  Meta
}

func (s *Scalar) NodeMeta() Meta { return s.Meta }
func (s *Scalar) value() any     { return s.Value }
func (s *Scalar) clone() Node    { return &Scalar{Value: s.Value, Meta: s.Meta} }
func (s *Scalar) sources(into map[string]map[string]any) {
	if s.Meta.Source == nil || s.Meta.Local {
		return
	}
	key := *s.Meta.Source
	paths, ok := into[key]
	if !ok {
		paths = make(map[string]any)
		into[key] = paths
	}
	paths[s.Meta.Path()] = s.Value
}

// Sequence is an ordered list of nodes.
type Sequence struct {
	Items []Node
	Meta  Meta
}

func (q *Sequence) NodeMeta() Meta { return q.Meta }
func (q *Sequence) value() any {
	out := make([]any, len(q.Items))
	for i, it := range q.Items {
		out[i] = it.value()
	}
	return out
}
func (q *Sequence) clone() Node {
	items := make([]Node, len(q.Items))
	for i, it := range q.Items {
		items[i] = it.clone()
	}
	return &Sequence{Items: items, Meta: q.Meta}
}
func (q *Sequence) sources(into map[string]map[string]any) {
	for _, it := range q.Items {
		it.sources(into)
	}
}

// Mapping is an insertion-ordered map from string keys to nodes. Go's
// native map type does not preserve insertion order, so the key order is
// tracked alongside the backing map.
type Mapping struct {
	keys  []string
	items map[string]Node
	Meta  Meta
}

// NewMapping returns an empty Mapping carrying meta.
func NewMapping(meta Meta) *Mapping {
	return &Mapping{items: make(map[string]Node), Meta: meta}
}

func (m *Mapping) NodeMeta() Meta { return m.Meta }

func (m *Mapping) value() any {
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = m.items[k].value()
	}
	return out
}

func (m *Mapping) clone() Node {
	cp := NewMapping(m.Meta)
	for _, k := range m.keys {
		cp.Set(k, m.items[k].clone())
	}
	return cp
}

func (m *Mapping) sources(into map[string]map[string]any) {
	for _, k := range m.keys {
		m.items[k].sources(into)
	}
}

// Keys returns the mapping's keys in insertion order.
func (m *Mapping) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len reports the number of entries.
func (m *Mapping) Len() int { return len(m.keys) }

// Get returns the node at key and whether it was present.
func (m *Mapping) Get(key string) (Node, bool) {
	n, ok := m.items[key]
	return n, ok
}

// Set inserts or replaces the node at key, preserving existing insertion
// order on replace and appending on insert.
func (m *Mapping) Set(key string, n Node) {
	if _, exists := m.items[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.items[key] = n
}

// Delete removes key, if present.
func (m *Mapping) Delete(key string) {
	if _, exists := m.items[key]; !exists {
		return
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Has reports whether key is present.
func (m *Mapping) Has(key string) bool {
	_, ok := m.items[key]
	return ok
}

// SetValue converts v with BuildNode under a child meta and stores it,
// mirroring the Python Container.__setitem__ convert-on-assign behavior.
func (m *Mapping) SetValue(key string, v any) error {
	n, err := BuildNode(v, m.Meta.child(key))
	if err != nil {
		return err
	}
	m.Set(key, n)
	return nil
}

// BuildNode converts an arbitrary nested Go value (as produced by a format
// loader: maps, slices, and primitives) into a Node tree. Non-string mapping
// keys are silently dropped rather than rejected.
func BuildNode(v any, meta Meta) (Node, error) {
	switch val := v.(type) {
	case nil, bool, int, int64, float64, string, []byte:
		return &Scalar{Value: normalizeScalar(val), Meta: meta}, nil
	case Node:
		return val, nil
	case []any:
		seq := &Sequence{Meta: meta}
		for i, item := range val {
			child, err := BuildNode(item, meta.child(strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			seq.Items = append(seq.Items, child)
		}
		return seq, nil
	case map[string]any:
		out := NewMapping(meta)
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child, err := BuildNode(val[k], meta.child(k))
			if err != nil {
				return nil, err
			}
			out.Set(k, child)
		}
		return out, nil
	case map[any]any:
		strMap := make(map[string]any, len(val))
		for k, vv := range val {
			if ks, ok := k.(string); ok {
				strMap[ks] = vv
			}
		}
		return BuildNode(strMap, meta)
	default:
		return nil, &UnsupportedTypeError{Type: fmt.Sprintf("%T", v), Path: meta.String()}
	}
}

// normalizeScalar narrows integer types down to int64 so Scalar.Value has a
// predictable set of dynamic types for the Interpolator's string coercion.
func normalizeScalar(v any) any {
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return v
}

// Context is the root Mapping with additional tracking/imports state: which
// dotted paths were consulted while resolving a value, and which vars files
// have already been imported.
type Context struct {
	*Mapping

	tracking bool
	tracked  map[string]map[string]any

	// imports remembers which parameter files have been loaded globally,
	// and with which key subset (nil = full file).
	imports map[string]*[]string
}

// NewContext returns an empty root Context.
func NewContext() *Context {
	return &Context{
		Mapping: NewMapping(Meta{}),
		tracked: make(map[string]map[string]any),
		imports: make(map[string]*[]string),
	}
}

// TrackScope runs fn with tracking enabled; every successful Select inside
// fn records the traversed node's (source, dotted-path, resolved value).
// It returns the accumulated tracked data, keyed by source and then by
// dotted path, mapping each path to the primitive value found there.
func (c *Context) TrackScope(fn func() error) (map[string]map[string]any, error) {
	c.tracking = true
	prev := c.tracked
	c.tracked = make(map[string]map[string]any)
	defer func() {
		c.tracking = false
		c.tracked = prev
	}()

	err := fn()
	return c.tracked, err
}

func (c *Context) trackNode(n Node) {
	if !c.tracking || n == nil {
		return
	}
	sources := make(map[string]map[string]any)
	n.sources(sources)
	for src, paths := range sources {
		dst, ok := c.tracked[src]
		if !ok {
			dst = make(map[string]any)
			c.tracked[src] = dst
		}
		for p, v := range paths {
			dst[p] = v
		}
	}
}

// Select walks dotted-path expr (e.g. "models.foo.bar[0].baz") and returns
// the node it resolves to, recording it for tracking if a TrackScope is
// active.
func (c *Context) Select(expr string) (Node, error) {
	segs, err := ParseExpr(expr)
	if err != nil {
		return nil, err
	}
	n, err := selectPath(c.Mapping, segs, expr)
	if err != nil {
		return nil, err
	}
	c.trackNode(n)
	return n, nil
}

func selectPath(root Node, segs []string, original string) (Node, error) {
	cur := root
	for _, seg := range segs {
		switch t := cur.(type) {
		case *Mapping:
			n, ok := t.Get(seg)
			if !ok {
				return nil, &KeyNotInContextError{Key: seg, Source: original}
			}
			cur = n
		case *Sequence:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t.Items) {
				return nil, &KeyNotInContextError{Key: seg, Source: original}
			}
			cur = t.Items[idx]
		default:
			return nil, &KeyNotInContextError{Key: seg, Source: original}
		}
	}
	return cur, nil
}

// Clone returns a deep-copied Context. imports is deep-copied so the clone
// can diverge independently, and tracked is reset rather than carried over,
// since a clone starts a fresh tracking scope.
func (c *Context) Clone() *Context {
	cp := &Context{
		Mapping: c.Mapping.clone().(*Mapping),
		tracked: make(map[string]map[string]any),
		imports: make(map[string]*[]string, len(c.imports)),
	}
	for k, v := range c.imports {
		if v == nil {
			cp.imports[k] = nil
			continue
		}
		keys := make([]string, len(*v))
		copy(keys, *v)
		cp.imports[k] = &keys
	}
	return cp
}

// MergeUpdate merges other into m at the root: mappings merge recursively
// by key; any other type collision raises
// MergeError unless overwrite is true, in which case the conflicting value
// is replaced wholesale. Lists are never merged element-wise.
func (m *Mapping) MergeUpdate(other *Mapping, overwrite bool) error {
	return mergeInto(m, other, overwrite)
}

func mergeInto(into, update *Mapping, overwrite bool) error {
	for _, k := range update.keys {
		val := update.items[k]
		existing, exists := into.Get(k)
		if !exists {
			into.Set(k, val)
			continue
		}

		existingMap, existingIsMap := existing.(*Mapping)
		valMap, valIsMap := val.(*Mapping)
		if existingIsMap && valIsMap {
			if err := mergeInto(existingMap, valMap, overwrite); err != nil {
				return err
			}
			continue
		}

		if !overwrite {
			return &MergeError{
				Key:  k,
				Dest: existing.NodeMeta().String(),
				Src:  val.NodeMeta().String(),
			}
		}
		into.Set(k, val)
	}
	return nil
}

// SetTemporarily inserts pairs as local (untracked) values at the root and
// returns a cleanup func that restores or removes them; the caller runs it
// when done with the pairs. When reserve is
// true, any key in pairs that already exists is rejected up front with
// ReservedKeyModifiedError (used for foreach/matrix item/key injection).
func (c *Context) SetTemporarily(pairs map[string]any, reserve bool) (func() error, error) {
	if reserve {
		for k := range pairs {
			if c.Has(k) {
				return nil, &ReservedKeyModifiedError{Key: k}
			}
		}
	}

	type saved struct {
		had bool
		val Node
	}
	prior := make(map[string]saved, len(pairs))
	for k := range pairs {
		n, had := c.Get(k)
		prior[k] = saved{had: had, val: n}
	}

	for k, v := range pairs {
		n, err := BuildNode(v, Meta{Local: true, DPath: []string{k}})
		if err != nil {
			return nil, err
		}
		c.Set(k, n)
	}

	cleanup := func() error {
		for k, s := range prior {
			if s.had {
				c.Set(k, s.val)
			} else {
				c.Delete(k)
			}
		}
		return nil
	}
	return cleanup, nil
}
