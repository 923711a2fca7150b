// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"fmt"
	"io"

	"gopkg.in/ini.v1"
)

// INILoader parses .ini content into a two-level tree: top-level keys are
// section names (the unnamed/default section is projected to the root),
// each holding a flat map of key/value strings. Not one of the mandatory
// vars-file extensions, but a useful extra format for legacy config inputs.
type INILoader struct{}

func (INILoader) Load(r io.Reader) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("invalid ini: %w", err)
	}

	cfg, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("invalid ini: %w", err)
	}

	out := make(map[string]any)
	for _, section := range cfg.Sections() {
		seen := make(map[string]bool)
		kv := make(map[string]any)
		for _, key := range section.Keys() {
			if seen[key.Name()] {
				return nil, &DuplicateKeyError{Key: key.Name()}
			}
			seen[key.Name()] = true
			kv[key.Name()] = key.Value()
		}
		if section.Name() == ini.DefaultSection {
			for k, v := range kv {
				out[k] = v
			}
			continue
		}
		out[section.Name()] = kv
	}
	return normalizeTree(out)
}
