// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgotesting

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFixtureThenLoadFixtureRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	original := payload{Name: "train", Count: 3}
	require.NoError(t, WriteFixture(original, path))

	var loaded payload
	require.NoError(t, LoadFixture(&loaded, path))
	assert.Equal(t, original, loaded)
}

func TestLoadFixtureMissingFileErrors(t *testing.T) {
	var out map[string]any
	err := LoadFixture(&out, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestCompareGoldenMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "golden.json")
	require.NoError(t, WriteFixture(map[string]any{"cmd": "run", "count": 3}, path))

	ok, err := CompareGolden(map[string]any{"cmd": "run", "count": 3}, path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "golden.json")
	require.NoError(t, WriteFixture(map[string]any{"cmd": "run"}, path))

	ok, err := CompareGolden(map[string]any{"cmd": "different"}, path)
	require.Error(t, err)
	assert.False(t, ok)
}
