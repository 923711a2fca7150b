// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"fmt"
	"strings"
	"sync"
)

// axisChoice is one axis's chosen value within a single combination, plus
// its index within that axis's sequence (needed for composite-valued
// default-key rendering).
type axisChoice struct {
	Value any
	Index int
}

// MatrixDefinition resolves a `{matrix: {...axes...}, name?: <template>,
// ...fields}` stage block into one stage per Cartesian-product combination
// of its axes.
type MatrixDefinition struct {
	PL           *ParameterLoader
	DocPath      string
	Parent       string
	AxesRaw      any
	NameTemplate string
	Body         map[string]any // remaining fields, excluding `matrix` and `name`
	Logger       Logger

	mu           sync.Mutex
	templateDone bool
	template     map[string]any
	templateErr  error
	warned       bool
}

func (m *MatrixDefinition) Template() (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.templateDone {
		m.templateDone = true
		if err := CheckRecursiveParseErrors(m.Body); err != nil {
			m.templateErr = err
		} else {
			m.template = deepCloneValue(m.Body).(map[string]any)
		}
	}
	return m.template, m.templateErr
}

// ResolvedAxes interpolates AxesRaw and verifies the result is a Mapping of
// Sequences, returning the axis values plus a deterministic axis-name order.
func (m *MatrixDefinition) ResolvedAxes(ctx *Context) (map[string][]any, []string, error) {
	resolved, err := resolveCollectionRef(m.AxesRaw, ctx)
	if err != nil {
		return nil, nil, err
	}
	mm, ok := resolved.(map[string]any)
	if !ok {
		return nil, nil, &ForeachExpectsCollectionError{Where: m.Parent + ".matrix", Type: fmt.Sprintf("%T", resolved)}
	}

	names := sortedKeys(mm)
	axes := make(map[string][]any, len(mm))
	for _, name := range names {
		seq, ok := mm[name].([]any)
		if !ok {
			return nil, nil, fmt.Errorf("matrix axis '%s' must be a list, got %T", name, mm[name])
		}
		axes[name] = seq
	}
	return axes, names, nil
}

func cartesianProduct(axisNames []string, axes map[string][]any) []map[string]axisChoice {
	combos := []map[string]axisChoice{{}}
	for _, name := range axisNames {
		vals := axes[name]
		next := make([]map[string]axisChoice, 0, len(combos)*len(vals))
		for _, combo := range combos {
			for i, v := range vals {
				nc := make(map[string]axisChoice, len(combo)+1)
				for k, vv := range combo {
					nc[k] = vv
				}
				nc[name] = axisChoice{Value: v, Index: i}
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

func defaultComboKey(axisNames []string, combo map[string]axisChoice) string {
	parts := make([]string, len(axisNames))
	for i, name := range axisNames {
		c := combo[name]
		switch c.Value.(type) {
		case map[string]any, []any:
			parts[i] = fmt.Sprintf("%s%d", name, c.Index)
		default:
			parts[i] = ToStr(c.Value)
		}
	}
	return strings.Join(parts, "-")
}

func comboItem(combo map[string]axisChoice) map[string]any {
	out := make(map[string]any, len(combo))
	for k, c := range combo {
		out[k] = c.Value
	}
	return out
}

func (m *MatrixDefinition) warnReservedShadow(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warned {
		return
	}
	if ctx.Has("item") || ctx.Has("key") {
		m.warned = true
		if m.Logger != nil {
			m.Logger.Warning("matrix block '%s' shadows an existing 'item'/'key' in context", m.Parent)
		}
	}
}

// resolveName computes the stage name for one combination: the default
// `<parent>@<key>` form, or the user's `name` template resolved against a
// context carrying this combination's `item`/`key`.
func (m *MatrixDefinition) resolveName(ctx *Context, key string, item map[string]any) (string, error) {
	if m.NameTemplate == "" {
		return m.Parent + "@" + key, nil
	}

	cleanup, err := ctx.SetTemporarily(map[string]any{"item": item, "key": key}, false)
	if err != nil {
		return "", err
	}
	defer cleanup()

	resolved, err := ResolveString(m.NameTemplate, ctx, true)
	if err != nil {
		return "", err
	}
	s, ok := resolved.(string)
	if !ok {
		return "", &InterpolateNonStringError{Type: fmt.Sprintf("%T", resolved)}
	}
	if strings.Contains(s, "@") {
		return "", fmt.Errorf("resolved matrix stage name '%s' must not contain '@'", s)
	}
	return s, nil
}

// ResolveAll expands and resolves every combination, returning the resolved
// stages keyed by full name and the ordered list of those names.
func (m *MatrixDefinition) ResolveAll(ctx *Context) (map[string]map[string]any, []string, error) {
	axes, axisNames, err := m.ResolvedAxes(ctx)
	if err != nil {
		return nil, nil, err
	}
	template, err := m.Template()
	if err != nil {
		return nil, nil, err
	}
	m.warnReservedShadow(ctx)

	combos := cartesianProduct(axisNames, axes)
	seen := make(map[string]bool, len(combos))
	names := make([]string, 0, len(combos))
	out := make(map[string]map[string]any, len(combos))

	for _, combo := range combos {
		key := defaultComboKey(axisNames, combo)
		item := comboItem(combo)

		name, err := m.resolveName(ctx, key, item)
		if err != nil {
			return nil, nil, err
		}
		if seen[name] {
			return nil, nil, &ResolveError{Msg: fmt.Sprintf("'%s' is already defined", name)}
		}
		seen[name] = true
		names = append(names, name)

		cleanup, err := ctx.SetTemporarily(map[string]any{"item": item, "key": key}, false)
		if err != nil {
			return nil, nil, err
		}
		resolved, _, rerr := ResolveStage(m.PL, ctx, m.DocPath, name, template, true, true)
		_ = cleanup()
		if rerr != nil {
			return nil, nil, rerr
		}
		out[name] = resolved
	}
	return out, names, nil
}

// ResolveOne resolves the single combination whose computed name equals
// fullName.
func (m *MatrixDefinition) ResolveOne(ctx *Context, fullName string) (map[string]any, error) {
	axes, axisNames, err := m.ResolvedAxes(ctx)
	if err != nil {
		return nil, err
	}
	template, err := m.Template()
	if err != nil {
		return nil, err
	}

	for _, combo := range cartesianProduct(axisNames, axes) {
		key := defaultComboKey(axisNames, combo)
		item := comboItem(combo)

		name, err := m.resolveName(ctx, key, item)
		if err != nil {
			return nil, err
		}
		if name != fullName {
			continue
		}
		m.warnReservedShadow(ctx)
		cleanup, err := ctx.SetTemporarily(map[string]any{"item": item, "key": key}, false)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		resolved, _, rerr := ResolveStage(m.PL, ctx, m.DocPath, name, template, true, true)
		return resolved, rerr
	}
	return nil, &EntryNotFoundError{Name: fullName}
}

// GetGeneratedNames lists the stage names this block expands to, without
// resolving any of them.
func (m *MatrixDefinition) GetGeneratedNames(ctx *Context) ([]string, error) {
	axes, axisNames, err := m.ResolvedAxes(ctx)
	if err != nil {
		return nil, err
	}
	combos := cartesianProduct(axisNames, axes)
	names := make([]string, 0, len(combos))
	for _, combo := range combos {
		key := defaultComboKey(axisNames, combo)
		name, err := m.resolveName(ctx, key, comboItem(combo))
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
