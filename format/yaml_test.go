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

func TestYAMLLoaderParsesNestedStructures(t *testing.T) {
	v, err := YAMLLoader{}.Load(strings.NewReader(`
model: resnet
epochs: 10
tags:
  - a
  - b
nested:
  lr: 0.1
`))
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "resnet", m["model"])
	assert.Equal(t, int64(10), m["epochs"])
	assert.Equal(t, []any{"a", "b"}, m["tags"])
	assert.Equal(t, map[string]any{"lr": 0.1}, m["nested"])
}

func TestYAMLLoaderEmptyDocument(t *testing.T) {
	v, err := YAMLLoader{}.Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, v)
}

func TestYAMLLoaderRejectsDuplicateKeys(t *testing.T) {
	_, err := YAMLLoader{}.Load(strings.NewReader("foo: bar\nfoo: baz\n"))
	require.Error(t, err)
	var dup *DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestYAMLLoaderRejectsMalformedYAML(t *testing.T) {
	_, err := YAMLLoader{}.Load(strings.NewReader("foo: [unterminated"))
	require.Error(t, err)
}
