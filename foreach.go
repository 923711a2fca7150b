// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"fmt"
	"strconv"
	"sync"
)

// IterationPair is one expanded member of a Foreach or Matrix block: a
// stage-name suffix plus the value injected as `item` (and, for
// Mapping-sourced foreach blocks, `key`) while resolving that member.
type IterationPair struct {
	Suffix string
	Item   any
	HasKey bool
	KeyVal string
}

// ForeachDefinition resolves a `{foreach: ..., do: ...}` stage block into
// one concrete stage per element of the foreach collection.
//
// Template's syntax validation and deep-clone run at most once per
// definition; mu guards both that cache and the reserved-key warning flag,
// matching the mutex-guarded lazy style used elsewhere in this codebase
// rather than sync.Once, since the cached outcome includes an error that
// sync.Once alone cannot memoize without an extra closure.
type ForeachDefinition struct {
	PL      *ParameterLoader
	DocPath string
	Parent  string
	Raw     any
	Do      map[string]any
	Logger  Logger

	mu           sync.Mutex
	templateDone bool
	template     map[string]any
	templateErr  error
	warned       bool
}

// Template returns the validated, deep-cloned `do` block, computing it on
// first access.
func (f *ForeachDefinition) Template() (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.templateDone {
		f.templateDone = true
		if err := CheckRecursiveParseErrors(f.Do); err != nil {
			f.templateErr = err
		} else {
			f.template = deepCloneValue(f.Do).(map[string]any)
		}
	}
	return f.template, f.templateErr
}

// resolveCollectionRef resolves a foreach/matrix source value that may be a
// single exact-placeholder string referencing a context Mapping/Sequence, or
// a literal mapping/sequence already embedded in the document.
func resolveCollectionRef(raw any, ctx *Context) (any, error) {
	if s, ok := raw.(string); ok {
		matches := GetMatches(s)
		if IsExactSingle(s, matches) {
			node, err := ctx.Select(matches[0].Inner)
			if err != nil {
				return nil, err
			}
			return node.value(), nil
		}
		return ResolveString(s, ctx, true)
	}
	return Resolve(raw, ctx, DefaultParsingConfig(), true)
}

// Pairs normalizes the foreach collection per the Data resolution rules: a
// Mapping yields one pair per key (stringified key, sorted for determinism
// since the document decoder does not preserve original file key order); a
// Sequence of only primitives yields pairs keyed by the stringified value
// itself; a Sequence containing any composite element yields pairs keyed by
// zero-based index. Anything else fails.
func (f *ForeachDefinition) Pairs(ctx *Context) ([]IterationPair, error) {
	resolved, err := resolveCollectionRef(f.Raw, ctx)
	if err != nil {
		return nil, err
	}

	switch v := resolved.(type) {
	case map[string]any:
		keys := sortedKeys(v)
		pairs := make([]IterationPair, len(keys))
		for i, k := range keys {
			pairs[i] = IterationPair{Suffix: k, Item: v[k], HasKey: true, KeyVal: k}
		}
		return pairs, nil
	case []any:
		hasComposite := false
		for _, item := range v {
			switch item.(type) {
			case map[string]any, []any:
				hasComposite = true
			}
		}
		pairs := make([]IterationPair, len(v))
		for i, item := range v {
			suffix := strconv.Itoa(i)
			if !hasComposite {
				suffix = ToStr(item)
			}
			pairs[i] = IterationPair{Suffix: suffix, Item: item}
		}
		return pairs, nil
	default:
		return nil, &ForeachExpectsCollectionError{Where: f.Parent + ".foreach", Type: fmt.Sprintf("%T", resolved)}
	}
}

// GetGeneratedNames lists the stage names this block expands to, in the
// collection's order, without resolving any of them.
func (f *ForeachDefinition) GetGeneratedNames(ctx *Context) ([]string, error) {
	pairs, err := f.Pairs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = f.Parent + "@" + p.Suffix
	}
	return names, nil
}

func (f *ForeachDefinition) warnReservedShadow(ctx *Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.warned {
		return
	}
	if ctx.Has("item") || ctx.Has("key") {
		f.warned = true
		if f.Logger != nil {
			f.Logger.Warning("foreach block '%s' shadows an existing 'item'/'key' in context", f.Parent)
		}
	}
}

// ResolveAll expands and resolves every member of this block, returning the
// resolved stages keyed by full name and the ordered list of those names.
func (f *ForeachDefinition) ResolveAll(ctx *Context) (map[string]map[string]any, []string, error) {
	template, err := f.Template()
	if err != nil {
		return nil, nil, err
	}
	pairs, err := f.Pairs(ctx)
	if err != nil {
		return nil, nil, err
	}
	f.warnReservedShadow(ctx)

	names := make([]string, 0, len(pairs))
	out := make(map[string]map[string]any, len(pairs))
	for _, p := range pairs {
		name := f.Parent + "@" + p.Suffix
		names = append(names, name)

		inject := map[string]any{"item": p.Item}
		if p.HasKey {
			inject["key"] = p.KeyVal
		}
		cleanup, err := ctx.SetTemporarily(inject, false)
		if err != nil {
			return nil, nil, err
		}
		resolved, _, rerr := ResolveStage(f.PL, ctx, f.DocPath, name, template, true, true)
		_ = cleanup()
		if rerr != nil {
			return nil, nil, rerr
		}
		out[name] = resolved
	}
	return out, names, nil
}

// ResolveOne resolves a single member identified by its stage-name suffix.
func (f *ForeachDefinition) ResolveOne(ctx *Context, suffix string) (map[string]any, error) {
	template, err := f.Template()
	if err != nil {
		return nil, err
	}
	pairs, err := f.Pairs(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.Suffix != suffix {
			continue
		}
		f.warnReservedShadow(ctx)
		inject := map[string]any{"item": p.Item}
		if p.HasKey {
			inject["key"] = p.KeyVal
		}
		cleanup, err := ctx.SetTemporarily(inject, false)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		resolved, _, rerr := ResolveStage(f.PL, ctx, f.DocPath, f.Parent+"@"+suffix, template, true, true)
		return resolved, rerr
	}
	return nil, &EntryNotFoundError{Name: f.Parent + "@" + suffix}
}
