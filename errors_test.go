// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndRaiseSingleLineCause(t *testing.T) {
	err := FormatAndRaise(errors.New("boom"), "stages.train", "dvc.yaml")
	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "failed to parse 'stages.train' in 'dvc.yaml': boom", err.Error())
}

func TestFormatAndRaiseMultiLineCause(t *testing.T) {
	cause := &ExpressionSyntaxError{Expr: "foo[", Offset: 4, Found: 0}
	err := FormatAndRaise(cause, "stages.train", "dvc.yaml")
	assert.Contains(t, err.Error(), "failed to parse 'stages.train' in 'dvc.yaml':\n")
}

func TestFormatAndRaiseUnwraps(t *testing.T) {
	cause := errors.New("root cause")
	err := FormatAndRaise(cause, "vars", "dvc.yaml")
	assert.True(t, errors.Is(err, cause))
}
