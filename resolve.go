// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import "fmt"

// Bool-style and list-style constants for ParsingConfig, controlling how a
// resolved `cmd` mapping renders booleans and lists as command-line flags.
const (
	BoolStyleStoreTrue       = "store_true"
	BoolStyleBooleanOptional = "boolean_optional"

	ListStyleNArgs  = "nargs"
	ListStyleAppend = "append"
)

// ParsingConfig tunes the Generic Value Resolver's handling of bool/list
// values when they are interpolated into a stage `cmd` string: BoolStyle
// picks between a bare flag ("--flag") and an explicit "--flag/--no-flag"
// pair; ListStyle picks between space-joined values and one repeated flag
// per element. Consumed by the Stage Definition's command-dict expansion.
type ParsingConfig struct {
	BoolStyle string
	ListStyle string
}

// DefaultParsingConfig matches argparse's defaults: a present flag with no
// value, and space-separated list elements.
func DefaultParsingConfig() ParsingConfig {
	return ParsingConfig{BoolStyle: BoolStyleStoreTrue, ListStyle: ListStyleNArgs}
}

// Resolve is the Generic Value Resolver: it walks an
// arbitrary nested value (the shape produced by a format Loader or a
// document's raw stage/vars/artifacts subtree) and returns the fully
// interpolated equivalent.
//
//   - Mapping (map[string]any): each key is itself resolved if it looks
//     interpolated, then each value is resolved recursively; two keys
//     resolving to the same string is an error.
//   - Sequence ([]any): each element is resolved, the slice shape is kept.
//   - String: delegated to the Interpolator (unwrap=true, so an
//     exact-single placeholder yields its native Go type, not a Node).
//   - Any other primitive: returned unchanged.
//
// Unless skipChecks is set, Resolve first runs CheckRecursiveParseErrors so
// that syntactically invalid placeholders anywhere in the tree are reported
// before any partial resolution happens.
func Resolve(value any, c *Context, cfg ParsingConfig, skipChecks bool) (any, error) {
	if !skipChecks {
		if err := CheckRecursiveParseErrors(value); err != nil {
			return nil, err
		}
	}
	return resolveValue(value, c, cfg)
}

func resolveValue(value any, c *Context, cfg ParsingConfig) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return resolveMapping(v, c, cfg)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rv, err := resolveValue(item, c, cfg)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case string:
		return ResolveString(v, c, true)
	default:
		return v, nil
	}
}

func resolveMapping(m map[string]any, c *Context, cfg ParsingConfig) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		rk, err := resolveMappingKey(k, c)
		if err != nil {
			return nil, err
		}
		if _, exists := out[rk]; exists {
			return nil, fmt.Errorf("two keys resolved to the same key %q", rk)
		}
		rv, err := resolveValue(v, c, cfg)
		if err != nil {
			return nil, err
		}
		out[rk] = rv
	}
	return out, nil
}

func resolveMappingKey(k string, c *Context) (string, error) {
	if !IsInterpolated(k) {
		return k, nil
	}
	resolved, err := ResolveString(k, c, true)
	if err != nil {
		return "", err
	}
	s, ok := resolved.(string)
	if !ok {
		return "", &InterpolateNonStringError{Type: fmt.Sprintf("%T", resolved)}
	}
	return s, nil
}

// CheckRecursiveParseErrors validates every placeholder's expression syntax
// throughout value without resolving any of it, surfacing a malformed
// `${...}` anywhere in the tree instead of failing partway through a
// resolution that may have already had side effects (vars loading, tracking).
func CheckRecursiveParseErrors(value any) error {
	switch v := value.(type) {
	case map[string]any:
		for k, vv := range v {
			if err := checkStringExpr(k); err != nil {
				return err
			}
			if err := CheckRecursiveParseErrors(vv); err != nil {
				return err
			}
		}
	case []any:
		for _, vv := range v {
			if err := CheckRecursiveParseErrors(vv); err != nil {
				return err
			}
		}
	case string:
		return checkStringExpr(v)
	}
	return nil
}

func checkStringExpr(s string) error {
	for _, m := range GetMatches(s) {
		if _, err := ParseExpr(m.Inner); err != nil {
			return err
		}
	}
	return nil
}
