// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocumentValidShapeHasNoErrors(t *testing.T) {
	doc := map[string]any{
		"vars": []any{"params.yaml", map[string]any{"inline": "val"}},
		"stages": map[string]any{
			"train": map[string]any{"cmd": "run"},
			"sweep": map[string]any{
				"foreach": []any{"a", "b"},
				"do":      map[string]any{"cmd": "run ${item}"},
			},
			"grid": map[string]any{
				"matrix": map[string]any{"lr": []any{"0.1"}},
				"name":   "grid-${item.lr}",
				"cmd":    "run",
			},
		},
		"artifacts": map[string]any{"model": map[string]any{"path": "out"}},
		"datasets":  []any{"data/raw"},
		"metrics":   []any{"metrics.json"},
		"params":    []any{"params.yaml"},
		"plots":     []any{"plots.json"},
		"parsing":   map[string]any{"bool": "store_true", "list": "nargs"},
	}
	assert.Empty(t, ValidateDocument(doc))
}

func TestValidateDocumentUnknownTopLevelKey(t *testing.T) {
	errs := ValidateDocument(map[string]any{"bogus": 1})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "unknown top-level key")
}

func TestValidateDocumentListSectionsMustBeLists(t *testing.T) {
	errs := ValidateDocument(map[string]any{"metrics": "not-a-list"})
	assert.Len(t, errs, 1)
	assert.Equal(t, "metrics", errs[0].Location)
}

func TestValidateDocumentArtifactsMustBeMapping(t *testing.T) {
	errs := ValidateDocument(map[string]any{"artifacts": []any{"wrong"}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "artifacts", errs[0].Location)
}

func TestValidateDocumentParsingEnumChecks(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"parsing": map[string]any{"bool": "invalid", "list": "invalid"},
	})
	assert.Len(t, errs, 2)
}

func TestValidateStageForeachAndMatrixMutuallyExclusive(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{
				"foreach": []any{"a"},
				"matrix":  map[string]any{"lr": []any{"0.1"}},
				"do":      map[string]any{"cmd": "run"},
			},
		},
	})
	require := assert.New(t)
	require.Len(errs, 1)
	require.Contains(errs[0].Message, "mutually exclusive")
}

func TestValidateStageForeachRequiresDo(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{"foreach": []any{"a"}},
		},
	})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "requires a 'do' block")
}

func TestValidateStageDoRequiresForeach(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{"do": map[string]any{"cmd": "run"}},
		},
	})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "requires a 'foreach' collection")
}

func TestValidateStageDoMustBeMapping(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{"foreach": []any{"a"}, "do": "not-a-mapping"},
		},
	})
	assert.Len(t, errs, 1)
	assert.Equal(t, "stages.bad.do", errs[0].Location)
}

func TestValidateStageMatrixNameMustBeString(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{
				"matrix": map[string]any{"lr": []any{"0.1"}},
				"name":   42,
			},
		},
	})
	assert.Len(t, errs, 1)
	assert.Equal(t, "stages.bad.name", errs[0].Location)
}

func TestValidateStageWdirMustBeString(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{"cmd": "run", "wdir": 5},
		},
	})
	assert.Len(t, errs, 1)
	assert.Equal(t, "stages.bad.wdir", errs[0].Location)
}

func TestValidateStageVarsEntriesMustBeStringOrMapping(t *testing.T) {
	errs := ValidateDocument(map[string]any{
		"stages": map[string]any{
			"bad": map[string]any{"cmd": "run", "vars": []any{5}},
		},
	})
	assert.Len(t, errs, 1)
	assert.Equal(t, "stages.bad.vars", errs[0].Location)
}
