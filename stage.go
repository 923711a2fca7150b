// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
)

// DefaultParamsFile is the implicit source attributed to a bare-string
// `params` entry (one naming only a dotted key, no file).
const DefaultParamsFile = "params.yaml"

// ResolveStage resolves one stage body against ctx. docPath is the owning
// document's path, used only for error-message location. generated marks a
// stage produced by a Foreach/Matrix iteration, where a local `vars` entry
// or `set` block trying to assign the reserved `item`/`key` names is an
// error rather than an ordinary merge conflict.
//
// Returns the resolved field mapping and the (source, dotted-path, value)
// triples consulted while resolving it, for the caller's `tracked_vars` API.
func ResolveStage(pl *ParameterLoader, ctx *Context, docPath, name string, raw map[string]any, skipChecks, generated bool) (resolved map[string]any, tracked map[string]map[string]any, err error) {
	defer func() {
		if err != nil {
			err = FormatAndRaise(err, fmt.Sprintf("stages.%s", name), docPath)
		}
	}()

	if !skipChecks {
		if cerr := CheckRecursiveParseErrors(raw); cerr != nil {
			return nil, nil, cerr
		}
	}

	body := deepCloneValue(raw).(map[string]any)
	cfg := DefaultParsingConfig()

	var wdir string
	if wdirRaw, ok := body["wdir"]; ok {
		rv, rerr := Resolve(wdirRaw, ctx, cfg, true)
		if rerr != nil {
			return nil, nil, rerr
		}
		if s, ok := rv.(string); ok {
			wdir = s
		}
		body["wdir"] = rv
	}

	varsRaw, hasVars := body["vars"]
	delete(body, "vars")

	stageCtx := ctx
	if hasVars {
		if cerr := checkNoInterpolation(varsRaw, "vars"); cerr != nil {
			return nil, nil, cerr
		}
		entries, perr := parseVarsEntries(varsRaw)
		if perr != nil {
			return nil, nil, perr
		}

		skip, werr := applyWhenGuards(entries, ctx)
		if werr != nil {
			return nil, nil, werr
		}
		if skip {
			return map[string]any{"_skip": true}, nil, nil
		}

		if len(entries) > 0 {
			stageCtx = ctx.Clone()
			if lerr := pl.LoadFromVars(stageCtx, entries, wdir, ""); lerr != nil {
				if me, ok := lerr.(*MergeError); ok && generated && (me.Key == "item" || me.Key == "key") {
					return nil, nil, &ReservedKeyModifiedError{Key: me.Key}
				}
				return nil, nil, lerr
			}
		}
	}

	fields := make(map[string]any, len(body))
	tracked, terr := stageCtx.TrackScope(func() error {
		for k, v := range body {
			if k == "wdir" {
				fields[k] = v
				continue
			}
			rv, rerr := Resolve(v, stageCtx, cfg, true)
			if rerr != nil {
				return rerr
			}
			fields[k] = rv
		}
		return nil
	})
	if terr != nil {
		return nil, nil, terr
	}

	if cmdVal, ok := fields["cmd"]; ok {
		if cmdMap, ok := cmdVal.(map[string]any); ok {
			rendered, cerr := expandCommandDict(cmdMap, cfg)
			if cerr != nil {
				return nil, nil, cerr
			}
			fields["cmd"] = rendered
		}
	}

	paramsList := mergeParamsLists(tracked, fields["params"], DefaultParamsFile)
	if len(paramsList) > 0 {
		fields["params"] = paramsList
	} else {
		delete(fields, "params")
	}

	return fields, tracked, nil
}

// checkNoInterpolation implements the `vars` entries must be free of
// placeholders restriction: `vars` selects which files feed the context, so
// it cannot itself depend on the context.
func checkNoInterpolation(v any, where string) error {
	switch val := v.(type) {
	case string:
		if len(GetMatches(val)) > 0 {
			return &InterpolationForbiddenError{Where: where}
		}
	case []any:
		for _, item := range val {
			if err := checkNoInterpolation(item, where); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, item := range val {
			if err := checkNoInterpolation(item, where); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyWhenGuards evaluates the reserved `when` key of any inline `vars`
// entry as an expr-lang boolean expression against the context as it stands
// before this stage's local vars are loaded. A false guard short-circuits
// the whole stage to the `{"_skip": true}` sentinel. A `when` key is never
// itself merged into the context as a variable.
func applyWhenGuards(entries []VarsEntry, ctx *Context) (skip bool, err error) {
	for i := range entries {
		if entries[i].Inline == nil {
			continue
		}
		whenRaw, ok := entries[i].Inline["when"]
		if !ok {
			continue
		}
		whenExpr, ok := whenRaw.(string)
		if !ok {
			return false, fmt.Errorf("'when' must be a string expression, got %T", whenRaw)
		}

		cleaned := make(map[string]any, len(entries[i].Inline)-1)
		for k, v := range entries[i].Inline {
			if k != "when" {
				cleaned[k] = v
			}
		}
		entries[i].Inline = cleaned

		ok2, everr := evalWhenGuard(whenExpr, ctx)
		if everr != nil {
			return false, everr
		}
		if !ok2 {
			return true, nil
		}
	}
	return false, nil
}

func evalWhenGuard(exprStr string, ctx *Context) (bool, error) {
	env := ctx.Mapping.value().(map[string]any)
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

func parseVarsEntries(raw any) ([]VarsEntry, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("'vars' must be a list, got %T", raw)
	}
	entries := make([]VarsEntry, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			entries = append(entries, VarsEntry{Path: v})
		case map[string]any:
			entries = append(entries, VarsEntry{Inline: v})
		default:
			return nil, fmt.Errorf("'vars' entries must be strings or mappings, got %T", item)
		}
	}
	return entries, nil
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = deepCloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = deepCloneValue(vv)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// expandCommandDict renders a resolved `cmd` mapping as a command-line
// string, per ParsingConfig's bool/list style.
func expandCommandDict(m map[string]any, cfg ParsingConfig) (string, error) {
	var parts []string
	for _, k := range sortedKeys(m) {
		toks, err := renderFlag(k, m[k], cfg)
		if err != nil {
			return "", err
		}
		parts = append(parts, toks...)
	}
	return strings.Join(parts, " "), nil
}

func renderFlag(key string, v any, cfg ParsingConfig) ([]string, error) {
	flag := "--" + key
	switch val := v.(type) {
	case nil:
		return []string{flag}, nil
	case bool:
		if cfg.BoolStyle == BoolStyleBooleanOptional {
			if val {
				return []string{flag}, nil
			}
			return []string{"--no-" + key}, nil
		}
		if val {
			return []string{flag}, nil
		}
		return nil, nil
	case []any:
		var out []string
		if cfg.ListStyle == ListStyleAppend {
			for _, item := range val {
				tok, err := renderScalarToken(item)
				if err != nil {
					return nil, err
				}
				out = append(out, flag, tok)
			}
			return out, nil
		}
		out = append(out, flag)
		for _, item := range val {
			tok, err := renderScalarToken(item)
			if err != nil {
				return nil, err
			}
			out = append(out, tok)
		}
		return out, nil
	case map[string]any:
		var out []string
		for _, ck := range sortedKeys(val) {
			toks, err := renderFlag(key+"."+ck, val[ck], cfg)
			if err != nil {
				return nil, err
			}
			out = append(out, toks...)
		}
		return out, nil
	default:
		tok, err := renderScalarToken(val)
		if err != nil {
			return nil, err
		}
		return []string{flag, tok}, nil
	}
}

// renderScalarToken stringifies a single command-dict leaf value, rejecting
// nested composites (lists-of-mappings have no documented flag rendering).
func renderScalarToken(v any) (string, error) {
	switch v.(type) {
	case []any, map[string]any:
		return "", &InterpolateNonStringError{Type: fmt.Sprintf("%T", v)}
	default:
		return quotePosix(ToStr(v)), nil
	}
}

func quotePosix(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\n\"'\\") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// mergeParamsLists combines auto-tracked (source -> dotted keys) with any
// user-supplied `params` entries already present on the stage, deduplicating
// by (source, key) and preserving first-seen order (tracked sources first,
// sorted for determinism; user entries appended).
func mergeParamsLists(tracked map[string]map[string]any, existing any, defaultFile string) []any {
	order := make([]string, 0, len(tracked))
	data := make(map[string][]string, len(tracked))
	seen := make(map[string]map[string]bool, len(tracked))

	add := func(src, key string) {
		if _, ok := data[src]; !ok {
			order = append(order, src)
			data[src] = nil
			seen[src] = make(map[string]bool)
		}
		if key != "" && !seen[src][key] {
			seen[src][key] = true
			data[src] = append(data[src], key)
		}
	}

	srcs := make([]string, 0, len(tracked))
	for src := range tracked {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	for _, src := range srcs {
		keys := make([]string, 0, len(tracked[src]))
		for k := range tracked[src] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(src, k)
		}
	}

	if list, ok := existing.([]any); ok {
		for _, item := range list {
			switch v := item.(type) {
			case string:
				add(defaultFile, v)
			case map[string]any:
				for k, kv := range v {
					if keys, ok := kv.([]any); ok {
						for _, kk := range keys {
							if ks, ok := kk.(string); ok {
								add(k, ks)
							}
						}
					}
				}
			}
		}
	}

	out := make([]any, 0, len(order))
	for _, src := range order {
		keys := make([]any, len(data[src]))
		for i, k := range data[src] {
			keys[i] = k
		}
		out = append(out, map[string]any{src: keys})
	}
	return out
}
