// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// TOMLLoader parses .toml content into a generic tree using the
// ecosystem-canonical BurntSushi/toml decoder (the retrieved pack carries
// no TOML library of its own, see DESIGN.md).
type TOMLLoader struct{}

func (TOMLLoader) Load(r io.Reader) (any, error) {
	var v map[string]any
	// BurntSushi/toml's parser itself rejects a key defined more than once
	// ("duplicate keys"), which we surface as FileCorrupted
	// without any extra bookkeeping here.
	if _, err := toml.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid toml: %w", err)
	}
	return normalizeTree(v)
}
