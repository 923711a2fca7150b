// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// getColoredDiff renders a word-level diff of before/after as tview markup.
func getColoredDiff(before, after string) string {
	if before == "" {
		return escapeBrackets(after)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)

	var result strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.WriteString(`[black:green]` + escapeBrackets(d.Text) + `[-:-:-]`)
		case diffmatchpatch.DiffDelete:
			result.WriteString(`[white:red]` + escapeBrackets(d.Text) + `[-:-:-]`)
		case diffmatchpatch.DiffEqual:
			result.WriteString(escapeBrackets(d.Text))
		}
	}
	return result.String()
}

func prettyJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// refreshDetail re-renders the stage-detail pane for the currently selected
// stage, in whichever of raw/resolved/diff mode is active.
func (c *ConsoleApp) refreshDetail() {
	if c.selectedStage == "" || c.stepDetails == nil {
		return
	}

	raw, _ := c.resolver.RawBody(c.selectedStage)
	resolved, err := c.resolver.ResolveOne(c.selectedStage)
	var resolvedFields any
	if err == nil {
		resolvedFields = resolved[c.selectedStage]
	}

	before := prettyJSON(raw)
	after := prettyJSON(resolvedFields)
	if err != nil {
		after = fmt.Sprintf("[red]error resolving '%s': %v[-]", c.selectedStage, err)
	}

	var body string
	switch c.currentDiffView {
	case "before":
		body = escapeBrackets(before)
	case "diff":
		body = getColoredDiff(before, after)
	default:
		if err != nil {
			body = after
		} else {
			body = escapeBrackets(after)
		}
	}

	c.stepDetails.SetTitle(fmt.Sprintf(" Stage Detail: %s ", c.selectedStage))
	c.stepDetails.SetText(body)
	c.stepDetails.ScrollToBeginning()
}

func (c *ConsoleApp) openResolvedViewer() {
	if c.selectedStage == "" {
		return
	}
	resolved, err := c.resolver.ResolveOne(c.selectedStage)
	if err != nil {
		c.appendLog(fmt.Sprintf("[red]%v[-]", err))
		return
	}
	viewer := newJSONViewer(c.app, c.pages, func() { c.app.SetFocus(c.tree) })
	viewer.show(fmt.Sprintf(" Resolved: %s ", c.selectedStage), resolved[c.selectedStage])
}

func (c *ConsoleApp) openTrackedVarsViewer() {
	if c.selectedStage == "" {
		return
	}
	tracked, err := c.resolver.TrackedVars(c.selectedStage)
	if err != nil {
		c.appendLog(fmt.Sprintf("[red]%v[-]", err))
		return
	}
	viewer := newJSONViewer(c.app, c.pages, func() { c.app.SetFocus(c.tree) })
	viewer.show(fmt.Sprintf(" tracked_vars: %s ", c.selectedStage), tracked)
}
