// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveScalarsAndContainers(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.SetValue("name", "alice"))
	require.NoError(t, c.SetValue("count", int64(2)))

	value := map[string]any{
		"greeting": "hi ${name}",
		"items":    []any{"${count}", "literal"},
		"flag":     true,
	}

	out, err := Resolve(value, c, DefaultParsingConfig(), false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"greeting": "hi alice",
		"items":    []any{int64(2), "literal"},
		"flag":     true,
	}, out)
}

func TestResolveMappingKeyInterpolation(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.SetValue("keyname", "dynamic"))

	value := map[string]any{
		"${keyname}": "value",
	}
	out, err := Resolve(value, c, DefaultParsingConfig(), false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"dynamic": "value"}, out)
}

func TestResolveDuplicateResolvedKeysError(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.SetValue("a", "same"))
	require.NoError(t, c.SetValue("b", "same"))

	value := map[string]any{
		"${a}": "1",
		"${b}": "2",
	}
	_, err := Resolve(value, c, DefaultParsingConfig(), false)
	require.Error(t, err)
}

func TestCheckRecursiveParseErrorsCatchesMalformedPlaceholder(t *testing.T) {
	value := map[string]any{
		"ok":  "${foo}",
		"bad": "${foo[}",
	}
	err := CheckRecursiveParseErrors(value)
	require.Error(t, err)
}

func TestResolveRunsChecksBeforeSideEffects(t *testing.T) {
	c := NewContext()
	value := []any{"${valid.path}", "${bad[}"}
	_, err := Resolve(value, c, DefaultParsingConfig(), false)
	require.Error(t, err)
	var syntaxErr *ExpressionSyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}
