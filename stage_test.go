// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noi-techpark/dvcgo/format"
)

func TestResolveStageSimpleInterpolation(t *testing.T) {
	pl := NewParameterLoader(LocalFS{}, format.NewRegistry())
	ctx := NewContext()
	require.NoError(t, ctx.SetValue("model", "resnet"))

	raw := map[string]any{
		"cmd": "train --model=${model}",
	}
	fields, _, err := ResolveStage(pl, ctx, "dvc.yaml", "train", raw, false, false)
	require.NoError(t, err)
	assert.Equal(t, "train --model=resnet", fields["cmd"])
}

func TestResolveStageTracksParamsUsed(t *testing.T) {
	pl := NewParameterLoader(LocalFS{}, format.NewRegistry())
	ctx := NewContext()
	src := "params.yaml"
	node, err := BuildNode("resnet", Meta{Source: &src, DPath: []string{"model"}})
	require.NoError(t, err)
	root := NewMapping(Meta{})
	root.Set("model", node)
	ctx.Mapping = root

	raw := map[string]any{
		"outs": []any{"out-${model}.txt"},
	}
	fields, tracked, err := ResolveStage(pl, ctx, "dvc.yaml", "build", raw, false, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"out-resnet.txt"}, fields["outs"])
	assert.Equal(t, map[string]any{"model": "resnet"}, tracked["params.yaml"])

	params, ok := fields["params"].([]any)
	require.True(t, ok)
	assert.Contains(t, params, map[string]any{"params.yaml": []any{"model"}})
}

func TestResolveStageWhenGuardSkipsStage(t *testing.T) {
	pl := NewParameterLoader(LocalFS{}, format.NewRegistry())
	ctx := NewContext()
	require.NoError(t, ctx.SetValue("enabled", false))

	raw := map[string]any{
		"vars": []any{
			map[string]any{"when": "enabled"},
		},
		"cmd": "run",
	}
	fields, _, err := ResolveStage(pl, ctx, "dvc.yaml", "conditional", raw, false, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_skip": true}, fields)
}

func TestResolveStageWhenGuardPassesRunsStage(t *testing.T) {
	pl := NewParameterLoader(LocalFS{}, format.NewRegistry())
	ctx := NewContext()
	require.NoError(t, ctx.SetValue("enabled", true))

	raw := map[string]any{
		"vars": []any{
			map[string]any{"when": "enabled", "extra": "value"},
		},
		"cmd": "run ${extra}",
	}
	fields, _, err := ResolveStage(pl, ctx, "dvc.yaml", "conditional", raw, false, false)
	require.NoError(t, err)
	assert.Equal(t, "run value", fields["cmd"])
}

func TestResolveStageVarsMustNotBeInterpolated(t *testing.T) {
	pl := NewParameterLoader(LocalFS{}, format.NewRegistry())
	ctx := NewContext()
	require.NoError(t, ctx.SetValue("file", "params.yaml"))

	raw := map[string]any{
		"vars": []any{"${file}"},
	}
	_, _, err := ResolveStage(pl, ctx, "dvc.yaml", "bad", raw, false, false)
	require.Error(t, err)
}

func TestResolveStageReservedKeyConflictInGenerated(t *testing.T) {
	pl := NewParameterLoader(LocalFS{}, format.NewRegistry())
	ctx := NewContext()
	require.NoError(t, ctx.SetValue("item", "outer"))

	raw := map[string]any{
		"vars": []any{
			map[string]any{"item": "override"},
		},
	}
	_, _, err := ResolveStage(pl, ctx, "dvc.yaml", "gen@0", raw, false, true)
	require.Error(t, err)
	var reserved *ReservedKeyModifiedError
	assert.ErrorAs(t, err, &reserved)
}

func TestExpandCommandDict(t *testing.T) {
	cfg := DefaultParsingConfig()
	out, err := expandCommandDict(map[string]any{
		"epochs": int64(10),
		"verbose": true,
		"tags":    []any{"a", "b"},
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "--epochs 10 --tags a b --verbose", out)
}

func TestExpandCommandDictBooleanOptionalStyle(t *testing.T) {
	cfg := ParsingConfig{BoolStyle: BoolStyleBooleanOptional, ListStyle: ListStyleAppend}
	out, err := expandCommandDict(map[string]any{
		"verbose": false,
		"tags":    []any{"a", "b"},
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "--tags a --tags b --no-verbose", out)
}

func TestQuotePosix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", `""`},
		{"plain", "value", "value"},
		{"with space", "a b", `"a b"`},
		{"with quote", `a"b`, `"a\"b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, quotePosix(tt.input))
		})
	}
}
