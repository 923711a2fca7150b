// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"fmt"
	"strconv"
	"strings"
)

// ToStr renders a resolved primitive using the canonical string-coercion
// coercion rules: bool -> "true"/"false"; integers/floats -> their
// canonical decimal form (floats via strconv's shortest round-trip 'g'
// form, so 3.0 renders as "3" and 1234567.0 as "1.234567e+06"); nil -> "";
// strings verbatim.
func ToStr(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// isPrimitive reports whether v is one of the scalar primitive types
// embeddable in an interpolated string.
func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, bool, int64, int, float64, string:
		return true
	default:
		return false
	}
}

// unescapeDollar undoes the `\${` -> `${` escaping performed by the
// Template Scanner's backslash check.
func unescapeDollar(s string) string {
	return strings.ReplaceAll(s, `\${`, `${`)
}

// ResolveString is the Interpolator entry point: an exact-single template returns
// the original typed value referenced by its one placeholder (the node
// itself when unwrap is false, its unwrapped primitive/value otherwise); an
// interpolated template (zero or more placeholders inside literal text)
// returns a concatenation in which each placeholder's value is rendered
// via ToStr, followed by unescaping any remaining `\${`.
func ResolveString(s string, ctx *Context, unwrap bool) (any, error) {
	matches := GetMatches(s)

	if IsExactSingle(s, matches) {
		node, err := ctx.Select(matches[0].Inner)
		if err != nil {
			return nil, err
		}
		if !unwrap {
			return node, nil
		}
		return node.value(), nil
	}

	var buf strings.Builder
	idx := 0
	for _, m := range matches {
		buf.WriteString(s[idx:m.Start])
		node, err := ctx.Select(m.Inner)
		if err != nil {
			return nil, err
		}
		val := node.value()
		if val != nil && !isPrimitive(val) {
			return nil, &InterpolateNonStringError{Type: fmt.Sprintf("%T", val)}
		}
		buf.WriteString(ToStr(val))
		idx = m.End
	}
	buf.WriteString(s[idx:])
	return unescapeDollar(buf.String()), nil
}
