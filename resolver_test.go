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

func newTestResolver(t *testing.T, doc Document) *DataResolver {
	t.Helper()
	dr, err := NewDataResolver(LocalFS{}, format.NewRegistry(), "dvc.yaml", t.TempDir(), doc, nil)
	require.NoError(t, err)
	return dr
}

func TestSplitGroupName(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		expectedParent string
		expectedSuffix string
		expectedHas    bool
	}{
		{"no suffix", "train", "train", "", false},
		{"with suffix", "train@0", "train", "0", true},
		{"suffix with at sign in value", "train@a@b", "train@a", "b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, suffix, has := SplitGroupName(tt.input)
			assert.Equal(t, tt.expectedParent, parent)
			assert.Equal(t, tt.expectedSuffix, suffix)
			assert.Equal(t, tt.expectedHas, has)
		})
	}
}

func TestDataResolverGetKeysExpandsGenerators(t *testing.T) {
	dr := newTestResolver(t, Document{
		Stages: map[string]any{
			"prepare": map[string]any{"cmd": "prep"},
			"train": map[string]any{
				"foreach": []any{"a", "b"},
				"do":      map[string]any{"cmd": "train ${item}"},
			},
		},
	})

	keys, err := dr.GetKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prepare", "train@a", "train@b"}, keys)
}

func TestDataResolverResolveOneOrdinaryStage(t *testing.T) {
	dr := newTestResolver(t, Document{
		Vars: []any{map[string]any{"model": "resnet"}},
		Stages: map[string]any{
			"train": map[string]any{"cmd": "train --model=${model}"},
		},
	})

	out, err := dr.ResolveOne("train")
	require.NoError(t, err)
	assert.Equal(t, "train --model=resnet", out["train"].(map[string]any)["cmd"])
}

func TestDataResolverResolveOneForeachMember(t *testing.T) {
	dr := newTestResolver(t, Document{
		Stages: map[string]any{
			"train": map[string]any{
				"foreach": []any{"a", "b"},
				"do":      map[string]any{"cmd": "train ${item}"},
			},
		},
	})

	out, err := dr.ResolveOne("train@a")
	require.NoError(t, err)
	assert.Equal(t, "train a", out["train@a"].(map[string]any)["cmd"])
}

func TestDataResolverResolveOneMissingStage(t *testing.T) {
	dr := newTestResolver(t, Document{
		Stages: map[string]any{"train": map[string]any{"cmd": "run"}},
	})

	_, err := dr.ResolveOne("missing")
	require.Error(t, err)
	var notFound *EntryNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDataResolverResolveAll(t *testing.T) {
	dr := newTestResolver(t, Document{
		Stages: map[string]any{
			"a": map[string]any{"cmd": "run-a"},
			"b": map[string]any{"cmd": "run-b"},
		},
	})

	out, err := dr.ResolveAll()
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDataResolverResolveArtifacts(t *testing.T) {
	dr := newTestResolver(t, Document{
		Vars:      []any{map[string]any{"path": "models/out"}},
		Artifacts: map[string]any{"model": map[string]any{"path": "${path}"}},
	})

	out, err := dr.ResolveArtifacts()
	require.NoError(t, err)
	assert.Equal(t, "models/out", out["model"].(map[string]any)["path"])
}

func TestDataResolverResolveListSections(t *testing.T) {
	dr := newTestResolver(t, Document{
		Vars:     []any{map[string]any{"metric_file": "metrics.json"}},
		Metrics:  []any{"${metric_file}"},
		Datasets: []any{"data/raw"},
	})

	metrics, err := dr.ResolveMetrics()
	require.NoError(t, err)
	assert.Equal(t, []any{"metrics.json"}, metrics)

	datasets, err := dr.ResolveDatasets()
	require.NoError(t, err)
	assert.Equal(t, []any{"data/raw"}, datasets)
}

func TestDataResolverHasKey(t *testing.T) {
	dr := newTestResolver(t, Document{
		Stages: map[string]any{"train": map[string]any{"cmd": "run"}},
	})
	assert.True(t, dr.HasKey("train"))
	assert.False(t, dr.HasKey("missing"))
}

func TestDataResolverRawBody(t *testing.T) {
	dr := newTestResolver(t, Document{
		Stages: map[string]any{
			"train": map[string]any{
				"foreach": []any{"a", "b"},
				"do":      map[string]any{"cmd": "train ${item}"},
			},
		},
	})

	body, ok := dr.RawBody("train@a")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"cmd": "train ${item}"}, body)
}

func TestDataResolverTrackedVars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "params.yaml", "model: resnet\n")

	dr, err := NewDataResolver(LocalFS{}, format.NewRegistry(), "dvc.yaml", dir, Document{
		Vars: []any{"params.yaml"},
		Stages: map[string]any{
			"train": map[string]any{"cmd": "train ${model}"},
		},
	}, nil)
	require.NoError(t, err)

	tracked, err := dr.TrackedVars("train")
	require.NoError(t, err)
	require.Contains(t, tracked, dir+"/params.yaml")
	assert.Equal(t, map[string]any{"model": "resnet"}, tracked[dir+"/params.yaml"])
}

func TestBuildParsingConfigOverridesDefaults(t *testing.T) {
	cfg, err := buildParsingConfig(map[string]any{"bool": BoolStyleBooleanOptional})
	require.NoError(t, err)
	assert.Equal(t, BoolStyleBooleanOptional, cfg.BoolStyle)
	assert.Equal(t, ListStyleNArgs, cfg.ListStyle, "unset fields keep their default")
}
