// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLLoader parses .yaml/.yml content into a generic tree, rejecting
// mappings with duplicate keys (surfaced as FileCorrupted).
type YAMLLoader struct{}

func (YAMLLoader) Load(r io.Reader) (any, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	v, err := nodeToValue(&root)
	if err != nil {
		return nil, err
	}
	return normalizeTree(v)
}

// nodeToValue converts a yaml.Node tree into plain Go values, checking for
// duplicate mapping keys along the way (yaml.v3's default map decoding
// silently lets the last duplicate key win, which hides load-time errors
// we need to surface rather than silently dropping).
func nodeToValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeToValue(n.Content[0])
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return nil, fmt.Errorf("invalid yaml: non-string mapping key: %w", err)
			}
			if seen[key] {
				return nil, &DuplicateKeyError{Key: key}
			}
			seen[key] = true
			val, err := nodeToValue(valNode)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, item := range n.Content {
			v, err := nodeToValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("invalid yaml scalar: %w", err)
		}
		return v, nil
	case yaml.AliasNode:
		return nodeToValue(n.Alias)
	default:
		return nil, fmt.Errorf("unsupported yaml node kind %v", n.Kind)
	}
}
