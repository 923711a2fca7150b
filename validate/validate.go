// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validate performs a static, pre-resolution shape check over a
// decoded pipeline document: it catches malformed sections (wrong types,
// unknown top-level keys, stage blocks mixing foreach/matrix markers) before
// a resolver ever attempts to interpolate anything.
package validate

import (
	"fmt"
	"sort"
)

// ValidationError names one shape defect, together with a dotted location
// pointing at the offending section or stage.
type ValidationError struct {
	Message  string
	Location string
}

func (e ValidationError) Error() string {
	if e.Location == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

var topLevelKeys = map[string]bool{
	"vars": true, "stages": true, "artifacts": true, "datasets": true,
	"metrics": true, "params": true, "plots": true, "parsing": true,
}

var boolStyles = map[string]bool{"store_true": true, "boolean_optional": true}
var listStyles = map[string]bool{"nargs": true, "append": true}

// ValidateDocument checks doc's top-level shape and returns every defect
// found; a nil/empty result means doc is structurally sound. It never
// reports more than one error per stage for the same root cause.
func ValidateDocument(doc map[string]any) []ValidationError {
	var errs []ValidationError

	for k := range doc {
		if !topLevelKeys[k] {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("unknown top-level key '%s'", k),
				Location: k,
			})
		}
	}

	if v, ok := doc["vars"]; ok {
		errs = append(errs, validateVarsList(v, "vars")...)
	}

	for _, section := range []string{"datasets", "metrics", "params", "plots"} {
		if v, ok := doc[section]; ok {
			if _, ok := v.([]any); !ok {
				errs = append(errs, ValidationError{
					Message:  fmt.Sprintf("'%s' must be a list, got %T", section, v), Location: section,
				})
			}
		}
	}

	if v, ok := doc["artifacts"]; ok {
		if _, ok := v.(map[string]any); !ok {
			errs = append(errs, ValidationError{
				Message: fmt.Sprintf("'artifacts' must be a mapping, got %T", v), Location: "artifacts",
			})
		}
	}

	if v, ok := doc["parsing"]; ok {
		errs = append(errs, validateParsing(v)...)
	}

	if v, ok := doc["stages"]; ok {
		stages, ok := v.(map[string]any)
		if !ok {
			errs = append(errs, ValidationError{
				Message: fmt.Sprintf("'stages' must be a mapping, got %T", v), Location: "stages",
			})
		} else {
			for _, name := range sortedKeys(stages) {
				errs = append(errs, validateStage(name, stages[name])...)
			}
		}
	}

	return errs
}

func validateVarsList(raw any, where string) []ValidationError {
	list, ok := raw.([]any)
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("'%s' must be a list, got %T", where, raw), Location: where}}
	}
	var errs []ValidationError
	for i, item := range list {
		switch item.(type) {
		case string, map[string]any:
		default:
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("entry %d must be a string or mapping, got %T", i, item),
				Location: where,
			})
		}
	}
	return errs
}

func validateParsing(raw any) []ValidationError {
	m, ok := raw.(map[string]any)
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("'parsing' must be a mapping, got %T", raw), Location: "parsing"}}
	}
	var errs []ValidationError
	if v, ok := m["bool"]; ok {
		s, ok := v.(string)
		if !ok || !boolStyles[s] {
			errs = append(errs, ValidationError{
				Message: fmt.Sprintf("'parsing.bool' must be one of store_true/boolean_optional, got %v", v), Location: "parsing.bool",
			})
		}
	}
	if v, ok := m["list"]; ok {
		s, ok := v.(string)
		if !ok || !listStyles[s] {
			errs = append(errs, ValidationError{
				Message: fmt.Sprintf("'parsing.list' must be one of nargs/append, got %v", v), Location: "parsing.list",
			})
		}
	}
	return errs
}

func validateStage(name string, raw any) []ValidationError {
	loc := "stages." + name
	body, ok := raw.(map[string]any)
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("stage body must be a mapping, got %T", raw), Location: loc}}
	}

	var errs []ValidationError
	_, hasForeach := body["foreach"]
	_, hasDo := body["do"]
	_, hasMatrix := body["matrix"]

	switch {
	case hasForeach && hasMatrix:
		errs = append(errs, ValidationError{Message: "'foreach' and 'matrix' are mutually exclusive", Location: loc})
	case hasForeach && !hasDo:
		errs = append(errs, ValidationError{Message: "'foreach' requires a 'do' block", Location: loc})
	case hasDo && !hasForeach:
		errs = append(errs, ValidationError{Message: "'do' requires a 'foreach' collection", Location: loc})
	case hasForeach && hasDo:
		if _, ok := body["do"].(map[string]any); !ok {
			errs = append(errs, ValidationError{Message: fmt.Sprintf("'do' must be a mapping, got %T", body["do"]), Location: loc + ".do"})
		}
	case hasMatrix:
		if _, ok := body["matrix"].(map[string]any); !ok {
			if _, isInterp := body["matrix"].(string); !isInterp {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("'matrix' must be a mapping, got %T", body["matrix"]), Location: loc + ".matrix"})
			}
		}
		if name, ok := body["name"]; ok {
			if _, ok := name.(string); !ok {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("'name' must be a string, got %T", name), Location: loc + ".name"})
			}
		}
	}

	if v, ok := body["vars"]; ok {
		errs = append(errs, validateVarsList(v, loc+".vars")...)
	}
	if v, ok := body["wdir"]; ok {
		if _, ok := v.(string); !ok {
			errs = append(errs, ValidationError{Message: fmt.Sprintf("'wdir' must be a string, got %T", v), Location: loc + ".wdir"})
		}
	}
	if v, ok := body["params"]; ok {
		if _, ok := v.([]any); !ok {
			errs = append(errs, ValidationError{Message: fmt.Sprintf("'params' must be a list, got %T", v), Location: loc + ".params"})
		}
	}

	return errs
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
