// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryDispatchesByExtension(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		name string
		path string
		body string
	}{
		{"yaml", "vars.yaml", "foo: bar\n"},
		{"yml", "vars.yml", "foo: bar\n"},
		{"json", "vars.json", `{"foo": "bar"}`},
		{"toml", "vars.toml", "foo = \"bar\"\n"},
		{"ini", "vars.ini", "foo=bar\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := reg.Load(tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, "bar", v.(map[string]any)["foo"])
		})
	}
}

func TestRegistryLoadUnknownExtension(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Load("vars.xyz", strings.NewReader(""))
	require.Error(t, err)
}

func TestRegistryRegisterOverridesLoader(t *testing.T) {
	reg := NewRegistry()
	reg.Register(".yaml", JSONLoader{})
	v, err := reg.Load("vars.yaml", strings.NewReader(`{"foo": "bar"}`))
	require.NoError(t, err)
	assert.Equal(t, "bar", v.(map[string]any)["foo"])
}

func TestNormalizeTreeConvertsIntAndAnyMap(t *testing.T) {
	v, err := normalizeTree(map[any]any{
		"count": 5,
		"nested": []any{
			map[any]any{"x": 1},
		},
	})
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(5), m["count"])

	nested := m["nested"].([]any)
	nestedMap := nested[0].(map[string]any)
	assert.Equal(t, int64(1), nestedMap["x"])
}
