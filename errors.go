// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import "fmt"

// ExpressionSyntaxError is raised by the path parser when a placeholder's
// inner expression cannot be parsed.
type ExpressionSyntaxError struct {
	Expr   string // the raw expression text, e.g. "models.foo.bar[0"
	Offset int    // rune offset within Expr where parsing stopped
	Found  rune   // the unexpected rune, or 0 at end-of-input
}

func (e *ExpressionSyntaxError) Error() string {
	pointer := make([]byte, e.Offset)
	for i := range pointer {
		pointer[i] = ' '
	}
	found := "end of expression"
	if e.Found != 0 {
		found = fmt.Sprintf("character %q", e.Found)
	}
	return fmt.Sprintf("${%s}\n  %s^\nunexpected %s at offset %d", e.Expr, pointer, found, e.Offset)
}

// KeyNotInContextError is raised when a resolved dotted path does not exist.
type KeyNotInContextError struct {
	Key    string
	Source string // the container that was searched, for diagnostics
}

func (e *KeyNotInContextError) Error() string {
	return fmt.Sprintf("could not find '%s' in %s", e.Key, e.Source)
}

// InterpolateNonStringError is raised when a multi-placeholder string
// references a non-primitive value.
type InterpolateNonStringError struct {
	Type string // Go type name of the offending value
}

func (e *InterpolateNonStringError) Error() string {
	return fmt.Sprintf("cannot interpolate data of type '%s'", e.Type)
}

// MergeError is raised when a structural merge conflicts without overwrite.
type MergeError struct {
	Key        string
	Dest       string // destination source path (existing value)
	Src        string // source being merged in
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("cannot redefine '%s' from '%s' as it already exists in '%s'", e.Key, e.Src, e.Dest)
}

// VarsAlreadyLoadedError is raised when a file is re-imported with a
// different key subset than it was first loaded with.
type VarsAlreadyLoadedError struct {
	Path string
}

func (e *VarsAlreadyLoadedError) Error() string {
	return fmt.Sprintf("cannot load '%s' again, it already exists with different keys", e.Path)
}

// VarsKeyNotFoundError is raised when a `file:key` subset selection targets
// a missing top-level key.
type VarsKeyNotFoundError struct {
	Key  string
	Path string
}

func (e *VarsKeyNotFoundError) Error() string {
	return fmt.Sprintf("could not find '%s' in '%s'", e.Key, e.Path)
}

// ParamsLoadError is raised when a referenced parameter file does not exist
// or is a directory.
type ParamsLoadError struct {
	Path string
	Err  error
}

func (e *ParamsLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("'%s' does not exist: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("'%s' does not exist", e.Path)
}

func (e *ParamsLoadError) Unwrap() error { return e.Err }

// FileCorruptedError is raised when the format dispatcher cannot parse a
// file, including duplicate-key detection.
type FileCorruptedError struct {
	Path string
	Err  error
}

func (e *FileCorruptedError) Error() string {
	return fmt.Sprintf("unable to read: %s: %v", e.Path, e.Err)
}

func (e *FileCorruptedError) Unwrap() error { return e.Err }

// UnsupportedTypeError is raised when the context builder encounters a
// value it cannot represent as a Node.
type UnsupportedTypeError struct {
	Type string
	Path string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported value of type '%s' in '%s'", e.Type, e.Path)
}

// ForeachExpectsCollectionError is raised when `foreach` data resolves to a
// non-collection.
type ForeachExpectsCollectionError struct {
	Where string
	Type  string
}

func (e *ForeachExpectsCollectionError) Error() string {
	return fmt.Sprintf("failed to resolve '%s': expected list/dictionary, got %s", e.Where, e.Type)
}

// EntryNotFoundError is raised when a requested stage name does not match
// any definition or generated member.
type EntryNotFoundError struct {
	Name string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("could not find '%s'", e.Name)
}

// ReservedKeyModifiedError is raised when local vars or a `set` block try to
// assign `item`/`key` inside a generated stage.
type ReservedKeyModifiedError struct {
	Key string
}

func (e *ReservedKeyModifiedError) Error() string {
	return fmt.Sprintf("attempted to modify reserved key '%s'", e.Key)
}

// InterpolationForbiddenError is raised when interpolation appears where it
// is disallowed (currently: `vars` entries themselves).
type InterpolationForbiddenError struct {
	Where string
}

func (e *InterpolationForbiddenError) Error() string {
	return fmt.Sprintf("'%s' interpolating is not allowed", e.Where)
}

// ResolveError is the outer wrapper every low-level error is re-raised as
// once it crosses a Definition boundary. It carries the human-readable
// location built up by formatPreamble as errors propagate outward.
type ResolveError struct {
	Msg string
	Err error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return e.Msg + e.Err.Error()
	}
	return e.Msg
}

func (e *ResolveError) Unwrap() error { return e.Err }

// multiLineCause reports whether err's rendering already carries embedded
// newlines, in which case the preamble is followed by a newline rather than
// a single space.
func multiLineCause(err error) bool {
	switch err.(type) {
	case *ExpressionSyntaxError, *MergeError, *VarsAlreadyLoadedError:
		return true
	default:
		return false
	}
}

// formatPreamble builds the `failed to parse '<section>' in '<path>':`
// prefix shared by every re-raised ResolveError.
func formatPreamble(section, path string) string {
	return fmt.Sprintf("failed to parse '%s' in '%s':", section, path)
}

// FormatAndRaise re-raises err as a *ResolveError with the section/path
// preamble prepended, using a newline separator for errors whose own
// message already spans multiple lines and a single space otherwise.
func FormatAndRaise(err error, section, path string) error {
	spacing := " "
	if multiLineCause(err) {
		spacing = "\n"
	}
	return &ResolveError{Msg: formatPreamble(section, path) + spacing, Err: err}
}
