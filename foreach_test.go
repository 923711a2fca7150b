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

func newForeachDef(t *testing.T, raw any, do map[string]any) *ForeachDefinition {
	t.Helper()
	return &ForeachDefinition{
		PL:      NewParameterLoader(LocalFS{}, format.NewRegistry()),
		DocPath: "dvc.yaml",
		Parent:  "train",
		Raw:     raw,
		Do:      do,
	}
}

func TestForeachPairsOverSequenceOfPrimitives(t *testing.T) {
	f := newForeachDef(t, []any{"a", "b", "c"}, map[string]any{"cmd": "run ${item}"})
	ctx := NewContext()

	pairs, err := f.Pairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, "a", pairs[0].Suffix)
	assert.False(t, pairs[0].HasKey)
}

func TestForeachPairsOverSequenceOfComposites(t *testing.T) {
	f := newForeachDef(t, []any{
		map[string]any{"lr": "0.1"},
		map[string]any{"lr": "0.2"},
	}, map[string]any{"cmd": "run"})
	ctx := NewContext()

	pairs, err := f.Pairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, []string{pairs[0].Suffix, pairs[1].Suffix})
}

func TestForeachPairsOverMapping(t *testing.T) {
	f := newForeachDef(t, map[string]any{
		"dev":  "devbox",
		"prod": "prodbox",
	}, map[string]any{"cmd": "deploy ${item}"})
	ctx := NewContext()

	pairs, err := f.Pairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "dev", pairs[0].Suffix, "keys sorted for determinism")
	assert.True(t, pairs[0].HasKey)
	assert.Equal(t, "dev", pairs[0].KeyVal)
}

func TestForeachResolveAllExpandsEachMember(t *testing.T) {
	f := newForeachDef(t, []any{"x", "y"}, map[string]any{"cmd": "run ${item}"})
	ctx := NewContext()

	resolved, names, err := f.ResolveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"train@x", "train@y"}, names)
	assert.Equal(t, "run x", resolved["train@x"]["cmd"])
	assert.Equal(t, "run y", resolved["train@y"]["cmd"])
}

func TestForeachResolveOneSingleMember(t *testing.T) {
	f := newForeachDef(t, []any{"x", "y"}, map[string]any{"cmd": "run ${item}"})
	ctx := NewContext()

	resolved, err := f.ResolveOne(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, "run y", resolved["cmd"])
}

func TestForeachResolveOneNotFound(t *testing.T) {
	f := newForeachDef(t, []any{"x"}, map[string]any{"cmd": "run"})
	ctx := NewContext()

	_, err := f.ResolveOne(ctx, "missing")
	require.Error(t, err)
	var notFound *EntryNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestForeachExpectsCollectionRejectsScalar(t *testing.T) {
	f := newForeachDef(t, "not-a-collection", map[string]any{"cmd": "run"})
	ctx := NewContext()

	_, err := f.Pairs(ctx)
	require.Error(t, err)
	var collErr *ForeachExpectsCollectionError
	assert.ErrorAs(t, err, &collErr)
}

func TestForeachResolveAllContextPlaceholderIsRestoredAfterward(t *testing.T) {
	f := newForeachDef(t, []any{"x"}, map[string]any{"cmd": "run ${item}"})
	ctx := NewContext()
	require.NoError(t, ctx.SetValue("item", "outer-value"))

	_, _, err := f.ResolveAll(ctx)
	require.NoError(t, err)

	n, ok := ctx.Get("item")
	require.True(t, ok)
	assert.Equal(t, "outer-value", n.value())
}
