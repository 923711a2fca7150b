// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchLoop reloads the document on every write, debounced to absorb an
// editor's save-then-chmod burst, and logs which stage names appeared or
// disappeared as a result.
func (c *ConsoleApp) watchLoop() {
	defer recoverAndLog(consoleLogger{logFunc: c.appendLog})

	var debounce *time.Timer
	for event := range c.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(150*time.Millisecond, c.onDocumentChanged)
	}
}

func (c *ConsoleApp) onDocumentChanged() {
	before, _ := c.resolver.GetKeys()

	if err := c.loadResolver(); err != nil {
		c.appendLog(fmt.Sprintf("[red]reload failed: %v[-]", err))
		return
	}

	after, _ := c.resolver.GetKeys()
	added, removed := diffNameSets(before, after)
	for _, n := range added {
		c.appendLog(fmt.Sprintf("[green]+ %s[-]", n))
	}
	for _, n := range removed {
		c.appendLog(fmt.Sprintf("[red]- %s[-]", n))
	}
	if len(added) == 0 && len(removed) == 0 {
		c.appendLog("reloaded, no stage name changes")
	}

	c.app.QueueUpdateDraw(func() {
		c.buildTree()
		if c.selectedStage != "" {
			c.refreshDetail()
		}
	})
}

func diffNameSets(before, after []string) (added, removed []string) {
	beforeSet := make(map[string]bool, len(before))
	for _, n := range before {
		beforeSet[n] = true
	}
	afterSet := make(map[string]bool, len(after))
	for _, n := range after {
		afterSet[n] = true
	}
	for _, n := range after {
		if !beforeSet[n] {
			added = append(added, n)
		}
	}
	for _, n := range before {
		if !afterSet[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return
}
