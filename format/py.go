// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// PyLoader handles the mandatory `.py` vars-file extension. There is no
// Go-native evaluator for Python module-level assignments, and embedding
// one is out of scope, so this shells out to a user-supplied interpreter
// that prints the module's
// top-level `dict`/list/scalar globals as JSON. Interpreter is looked up
// from the DVCGO_PYTHON environment variable, defaulting to "python3".
type PyLoader struct {
	Interpreter string
}

// pyIntrospectProgram prints every top-level name in the given module file
// that doesn't start with "_" and is JSON-serializable, as a single JSON
// object on stdout.
const pyIntrospectProgram = `
import importlib.util, json, sys

path = sys.argv[1]
spec = importlib.util.spec_from_file_location("_dvcgo_vars", path)
module = importlib.util.module_from_spec(spec)
spec.loader.exec_module(module)

out = {}
for name in dir(module):
    if name.startswith("_"):
        continue
    value = getattr(module, name)
    try:
        json.dumps(value)
    except TypeError:
        continue
    out[name] = value

json.dump(out, sys.stdout)
`

func (p PyLoader) interpreter() string {
	if p.Interpreter != "" {
		return p.Interpreter
	}
	if env := os.Getenv("DVCGO_PYTHON"); env != "" {
		return env
	}
	return "python3"
}

// Load is not used directly by the Registry's io.Reader-based dispatch for
// .py files (Python source must be read from a real file path for
// importlib to introspect it); LoadFile is the real entry point and Load
// exists only to satisfy the Loader interface for registry uniformity.
func (p PyLoader) Load(r io.Reader) (any, error) {
	return nil, fmt.Errorf("python vars files must be loaded via LoadFile, not a stream")
}

// LoadFile introspects the Python module at path by shelling out to the
// configured interpreter.
func (p PyLoader) LoadFile(path string) (any, error) {
	cmd := exec.Command(p.interpreter(), "-c", pyIntrospectProgram, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to introspect python vars file %q: %w: %s", path, err, stderr.String())
	}

	var v map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
		return nil, fmt.Errorf("invalid python vars output for %q: %w", path, err)
	}
	return normalizeTree(v)
}
