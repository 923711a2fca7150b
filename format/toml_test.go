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

func TestTOMLLoaderParsesNestedStructures(t *testing.T) {
	v, err := TOMLLoader{}.Load(strings.NewReader(`
model = "resnet"
epochs = 10

[nested]
lr = 0.1
`))
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "resnet", m["model"])
	assert.Equal(t, int64(10), m["epochs"])
	assert.Equal(t, map[string]any{"lr": 0.1}, m["nested"])
}

func TestTOMLLoaderRejectsDuplicateKeys(t *testing.T) {
	_, err := TOMLLoader{}.Load(strings.NewReader("foo = 1\nfoo = 2\n"))
	require.Error(t, err)
}

func TestTOMLLoaderRejectsMalformedTOML(t *testing.T) {
	_, err := TOMLLoader{}.Load(strings.NewReader("foo = ["))
	require.Error(t, err)
}
