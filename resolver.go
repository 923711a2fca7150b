// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dvcgo

import (
	"fmt"
	"strings"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/noi-techpark/dvcgo/format"
)

// Document is a pipeline document's top-level sections, already split out
// of its raw decoded mapping.
type Document struct {
	Vars      any
	Stages    map[string]any
	Artifacts any
	Datasets  any
	Metrics   any
	Params    any
	Plots     any
	Parsing   any
}

// DocumentFromMap splits a raw decoded document (as produced by a format
// Loader) into its recognized top-level sections. Unknown keys are ignored.
func DocumentFromMap(raw map[string]any) Document {
	var doc Document
	doc.Vars = raw["vars"]
	if s, ok := raw["stages"].(map[string]any); ok {
		doc.Stages = s
	}
	doc.Artifacts = raw["artifacts"]
	doc.Datasets = raw["datasets"]
	doc.Metrics = raw["metrics"]
	doc.Params = raw["params"]
	doc.Plots = raw["plots"]
	doc.Parsing = raw["parsing"]
	return doc
}

// stageKind distinguishes the three stage-block shapes a stage entry can
// take: an ordinary stage, a foreach generator, or a matrix generator.
type stageKind int

const (
	stageOrdinary stageKind = iota
	stageForeach
	stageMatrix
)

type stageEntry struct {
	kind     stageKind
	ordinary map[string]any
	foreach  *ForeachDefinition
	matrix   *MatrixDefinition
}

// DataResolver is the Top-Level Resolver: it owns the root Context built
// from a document's global `vars`, and a Definition (ordinary/foreach/
// matrix) per declared stage.
type DataResolver struct {
	FS       FS
	Registry *format.Registry
	PL       *ParameterLoader
	Logger   Logger

	DocPath string
	WDir    string
	RunID   uuid.UUID

	root   *Context
	cfg    ParsingConfig
	stages map[string]*stageEntry
	order  []string

	doc Document
}

// NewDataResolver constructs a resolver for doc, loading its global `vars`
// into the root context (or the implicit params.yaml default, if `vars` is
// absent and that file exists relative to wdir).
func NewDataResolver(fsys FS, reg *format.Registry, docPath, wdir string, doc Document, logger Logger) (*DataResolver, error) {
	if logger == nil {
		logger = NewNoopLogger()
	}

	dr := &DataResolver{
		FS:       fsys,
		Registry: reg,
		PL:       NewParameterLoader(fsys, reg),
		Logger:   logger,
		DocPath:  docPath,
		WDir:     wdir,
		RunID:    uuid.New(),
		root:     NewContext(),
		stages:   make(map[string]*stageEntry),
		doc:      doc,
	}

	cfg, err := buildParsingConfig(doc.Parsing)
	if err != nil {
		return nil, err
	}
	dr.cfg = cfg

	var entries []VarsEntry
	if doc.Vars != nil {
		if err := checkNoInterpolation(doc.Vars, "vars"); err != nil {
			return nil, FormatAndRaise(err, "vars", docPath)
		}
		entries, err = parseVarsEntries(doc.Vars)
		if err != nil {
			return nil, FormatAndRaise(err, "vars", docPath)
		}
	}
	if err := dr.PL.LoadFromVars(dr.root, entries, wdir, DefaultParamsFile); err != nil {
		return nil, FormatAndRaise(err, "vars", docPath)
	}

	for _, name := range sortedKeys(doc.Stages) {
		raw, ok := doc.Stages[name].(map[string]any)
		if !ok {
			return nil, FormatAndRaise(fmt.Errorf("stage body must be a mapping, got %T", doc.Stages[name]), fmt.Sprintf("stages.%s", name), docPath)
		}
		dr.stages[name] = classifyStage(dr.PL, docPath, name, raw, logger)
		dr.order = append(dr.order, name)
	}

	return dr, nil
}

func classifyStage(pl *ParameterLoader, docPath, name string, raw map[string]any, logger Logger) *stageEntry {
	_, hasForeach := raw["foreach"]
	_, hasDo := raw["do"]
	if hasForeach && hasDo {
		return &stageEntry{
			kind: stageForeach,
			foreach: &ForeachDefinition{
				PL:      pl,
				DocPath: docPath,
				Parent:  name,
				Raw:     raw["foreach"],
				Do:      toMap(raw["do"]),
				Logger:  logger,
			},
		}
	}
	if _, hasMatrix := raw["matrix"]; hasMatrix {
		body := make(map[string]any, len(raw))
		for k, v := range raw {
			if k == "matrix" || k == "name" {
				continue
			}
			body[k] = v
		}
		nameTemplate, _ := raw["name"].(string)
		return &stageEntry{
			kind: stageMatrix,
			matrix: &MatrixDefinition{
				PL:           pl,
				DocPath:      docPath,
				Parent:       name,
				AxesRaw:      raw["matrix"],
				NameTemplate: nameTemplate,
				Body:         body,
				Logger:       logger,
			},
		}
	}
	return &stageEntry{kind: stageOrdinary, ordinary: raw}
}

func toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func buildParsingConfig(raw any) (ParsingConfig, error) {
	cfg := DefaultParsingConfig()
	m, ok := raw.(map[string]any)
	if !ok {
		return cfg, nil
	}
	override := ParsingConfig{}
	if v, ok := m["bool"].(string); ok {
		override.BoolStyle = v
	}
	if v, ok := m["list"].(string); ok {
		override.ListStyle = v
	}
	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return ParsingConfig{}, err
	}
	return cfg, nil
}

// SplitGroupName splits "parent@suffix" into its two halves on the last '@',
// mirroring the source's rsplit-on-last-@ rule. hasSuffix is false when name
// contains no '@'.
func SplitGroupName(name string) (parent, suffix string, hasSuffix bool) {
	idx := strings.LastIndexByte(name, '@')
	if idx < 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}

// ResolveOne resolves a single stage or generated member, returning
// {name: resolved}.
func (dr *DataResolver) ResolveOne(name string) (map[string]any, error) {
	resolved, _, err := dr.resolveOneTracked(name)
	if err != nil {
		return nil, err
	}
	return map[string]any{name: resolved}, nil
}

func (dr *DataResolver) resolveOneTracked(name string) (map[string]any, map[string]map[string]any, error) {
	parent, suffix, hasSuffix := SplitGroupName(name)

	if !hasSuffix {
		entry, ok := dr.stages[name]
		if !ok || entry.kind != stageOrdinary {
			return nil, nil, &EntryNotFoundError{Name: name}
		}
		return ResolveStage(dr.PL, dr.root, dr.DocPath, name, entry.ordinary, false, false)
	}

	entry, ok := dr.stages[parent]
	if !ok {
		return nil, nil, &EntryNotFoundError{Name: name}
	}
	switch entry.kind {
	case stageForeach:
		resolved, err := entry.foreach.ResolveOne(dr.root, suffix)
		return resolved, nil, err
	case stageMatrix:
		resolved, err := entry.matrix.ResolveOne(dr.root, name)
		return resolved, nil, err
	default:
		return nil, nil, &EntryNotFoundError{Name: name}
	}
}

// ResolveAll resolves every stage and generated member, for test/debug
// convenience.
func (dr *DataResolver) ResolveAll() (map[string]any, error) {
	out := make(map[string]any)
	for _, name := range dr.order {
		entry := dr.stages[name]
		switch entry.kind {
		case stageOrdinary:
			resolved, _, err := ResolveStage(dr.PL, dr.root, dr.DocPath, name, entry.ordinary, false, false)
			if err != nil {
				return nil, err
			}
			out[name] = resolved
		case stageForeach:
			resolved, _, err := entry.foreach.ResolveAll(dr.root)
			if err != nil {
				return nil, err
			}
			for k, v := range resolved {
				out[k] = v
			}
		case stageMatrix:
			resolved, _, err := entry.matrix.ResolveAll(dr.root)
			if err != nil {
				return nil, err
			}
			for k, v := range resolved {
				out[k] = v
			}
		}
	}
	return out, nil
}

// ResolveArtifacts eagerly resolves the document's `artifacts` section.
func (dr *DataResolver) ResolveArtifacts() (map[string]any, error) {
	if dr.doc.Artifacts == nil {
		return map[string]any{}, nil
	}
	m, ok := dr.doc.Artifacts.(map[string]any)
	if !ok {
		return nil, FormatAndRaise(fmt.Errorf("'artifacts' must be a mapping, got %T", dr.doc.Artifacts), "artifacts", dr.DocPath)
	}
	resolved, err := Resolve(m, dr.root, dr.cfg, false)
	if err != nil {
		return nil, FormatAndRaise(err, "artifacts", dr.DocPath)
	}
	return resolved.(map[string]any), nil
}

func (dr *DataResolver) resolveListSection(raw any, section string) ([]any, error) {
	if raw == nil {
		return nil, nil
	}
	resolved, err := Resolve(raw, dr.root, dr.cfg, false)
	if err != nil {
		return nil, FormatAndRaise(err, section, dr.DocPath)
	}
	list, ok := resolved.([]any)
	if !ok {
		return nil, FormatAndRaise(fmt.Errorf("'%s' must be a list, got %T", section, resolved), section, dr.DocPath)
	}
	return list, nil
}

func (dr *DataResolver) ResolveDatasets() ([]any, error) { return dr.resolveListSection(dr.doc.Datasets, "datasets") }
func (dr *DataResolver) ResolveMetrics() ([]any, error)  { return dr.resolveListSection(dr.doc.Metrics, "metrics") }
func (dr *DataResolver) ResolveParams() ([]any, error)   { return dr.resolveListSection(dr.doc.Params, "params") }
func (dr *DataResolver) ResolvePlots() ([]any, error)    { return dr.resolveListSection(dr.doc.Plots, "plots") }

// GetKeys lists concrete stage names, expanding generator blocks via their
// GetGeneratedNames.
func (dr *DataResolver) GetKeys() ([]string, error) {
	var out []string
	for _, name := range dr.order {
		entry := dr.stages[name]
		switch entry.kind {
		case stageOrdinary:
			out = append(out, name)
		case stageForeach:
			names, err := entry.foreach.GetGeneratedNames(dr.root)
			if err != nil {
				return nil, err
			}
			out = append(out, names...)
		case stageMatrix:
			names, err := entry.matrix.GetGeneratedNames(dr.root)
			if err != nil {
				return nil, err
			}
			out = append(out, names...)
		}
	}
	return out, nil
}

// HasKey reports whether name names a concrete stage or generated member.
func (dr *DataResolver) HasKey(name string) bool {
	keys, err := dr.GetKeys()
	if err != nil {
		return false
	}
	for _, k := range keys {
		if k == name {
			return true
		}
	}
	return false
}

// RawBody returns the unresolved body backing name: a plain stage's own raw
// mapping, or a generated member's group template (the `do`/matrix body
// shared by every iteration), for side-by-side display against its resolved
// fields.
func (dr *DataResolver) RawBody(name string) (any, bool) {
	parent, _, hasSuffix := SplitGroupName(name)
	lookup := name
	if hasSuffix {
		lookup = parent
	}
	entry, ok := dr.stages[lookup]
	if !ok {
		return nil, false
	}
	switch entry.kind {
	case stageOrdinary:
		return entry.ordinary, true
	case stageForeach:
		return entry.foreach.Do, true
	case stageMatrix:
		return entry.matrix.Body, true
	default:
		return nil, false
	}
}

// TrackedVars returns the (source -> dotted-path -> value) report recorded
// while resolving name, re-running its resolution to produce it. The report
// is collected for ordinary stages only; for a generated foreach/matrix
// member the returned map is nil.
func (dr *DataResolver) TrackedVars(name string) (map[string]map[string]any, error) {
	_, tracked, err := dr.resolveOneTracked(name)
	if err != nil {
		return nil, err
	}
	return tracked, nil
}
