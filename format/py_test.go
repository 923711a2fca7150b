// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPyLoaderInterpreterResolution(t *testing.T) {
	t.Run("defaults to python3", func(t *testing.T) {
		t.Setenv("DVCGO_PYTHON", "")
		assert.Equal(t, "python3", PyLoader{}.interpreter())
	})
	t.Run("env var override", func(t *testing.T) {
		t.Setenv("DVCGO_PYTHON", "/usr/bin/python3.11")
		assert.Equal(t, "/usr/bin/python3.11", PyLoader{}.interpreter())
	})
	t.Run("explicit field wins over env var", func(t *testing.T) {
		t.Setenv("DVCGO_PYTHON", "/usr/bin/python3.11")
		assert.Equal(t, "custom-python", PyLoader{Interpreter: "custom-python"}.interpreter())
	})
}

func TestPyLoaderLoadAlwaysErrors(t *testing.T) {
	_, err := PyLoader{}.Load(nil)
	require.Error(t, err)
}

func TestPyLoaderLoadFileIntrospectsModule(t *testing.T) {
	interpreter := os.Getenv("DVCGO_PYTHON")
	if interpreter == "" {
		interpreter = "python3"
	}
	if _, err := exec.LookPath(interpreter); err != nil {
		t.Skipf("%s not available on PATH", interpreter)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "params.py")
	require.NoError(t, os.WriteFile(path, []byte("model = \"resnet\"\nepochs = 10\n_private = \"hidden\"\n"), 0o644))

	v, err := PyLoader{}.LoadFile(path)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "resnet", m["model"])
	assert.Equal(t, int64(10), m["epochs"])
	assert.NotContains(t, m, "_private")
}
