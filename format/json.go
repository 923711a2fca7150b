// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONLoader parses .json content into a generic tree, rejecting objects
// with duplicate keys via a streaming token scan (encoding/json's map
// decoding silently keeps the last duplicate, same caveat as YAML).
type JSONLoader struct{}

func (JSONLoader) Load(r io.Reader) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	if err := checkDuplicateKeys(json.NewDecoder(bytes.NewReader(data))); err != nil {
		return nil, err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return normalizeTree(v)
}

// checkDuplicateKeys walks the raw token stream looking for objects that
// repeat a key at the same nesting level.
func checkDuplicateKeys(dec *json.Decoder) error {
	dec.UseNumber()
	_, err := walkTokens(dec)
	return err
}

func walkTokens(dec *json.Decoder) (bool, error) {
	tok, err := dec.Token()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("invalid json: %w", err)
	}

	switch d := tok.(type) {
	case json.Delim:
		switch d {
		case '{':
			seen := make(map[string]bool)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return false, fmt.Errorf("invalid json: %w", err)
				}
				key, _ := keyTok.(string)
				if seen[key] {
					return false, &DuplicateKeyError{Key: key}
				}
				seen[key] = true
				if _, err := walkTokens(dec); err != nil {
					return false, err
				}
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return false, fmt.Errorf("invalid json: %w", err)
			}
		case '[':
			for dec.More() {
				if _, err := walkTokens(dec); err != nil {
					return false, err
				}
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return false, fmt.Errorf("invalid json: %w", err)
			}
		}
	}
	return true, nil
}
