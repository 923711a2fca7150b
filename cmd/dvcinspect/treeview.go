// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	dvcgo "github.com/noi-techpark/dvcgo"
)

// buildTree lists every concrete stage name from the resolver and groups
// generated foreach/matrix members under a parent node keyed by the part of
// the name before '@'.
func (c *ConsoleApp) buildTree() {
	root := tview.NewTreeNode("Stages").SetSelectable(false)
	c.nodeMap = make(map[string]*tview.TreeNode)

	if c.tree == nil {
		c.tree = tview.NewTreeView()
		c.tree.SetBorder(true)
		c.tree.SetTitle(" Stages ")
	}
	c.tree.SetRoot(root)

	names, err := c.resolver.GetKeys()
	if err != nil {
		c.appendLog(fmt.Sprintf("[red]failed to list stages: %v[-]", err))
		return
	}

	groups := make(map[string]*tview.TreeNode)
	var order []string
	seenGroup := make(map[string]bool)

	for _, name := range names {
		parent, _, hasSuffix := dvcgo.SplitGroupName(name)
		if !hasSuffix {
			leaf := tview.NewTreeNode(name).SetReference(name)
			root.AddChild(leaf)
			c.nodeMap[name] = leaf
			continue
		}
		if !seenGroup[parent] {
			seenGroup[parent] = true
			order = append(order, parent)
			g := tview.NewTreeNode(parent + " (generated)").SetSelectable(true).SetExpanded(true)
			root.AddChild(g)
			groups[parent] = g
		}
		leaf := tview.NewTreeNode(name).SetReference(name)
		groups[parent].AddChild(leaf)
		c.nodeMap[name] = leaf
	}

	c.tree.SetCurrentNode(root)
}

func (c *ConsoleApp) setupTreeInputCapture() {
	c.tree.SetSelectedFunc(func(node *tview.TreeNode) {
		if name, ok := node.GetReference().(string); ok {
			c.selectStage(name)
		} else {
			node.SetExpanded(!node.IsExpanded())
		}
	})

	c.tree.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		node := c.tree.GetCurrentNode()
		if node == nil {
			return event
		}
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'k':
				return tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)
			case 'j':
				return tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
			case 'h':
				node.SetExpanded(false)
				return nil
			case 'l':
				node.SetExpanded(true)
				return nil
			case 'g':
				c.tree.SetCurrentNode(c.tree.GetRoot())
				return nil
			case '1':
				c.currentDiffView = "before"
				c.refreshDetail()
				return nil
			case '2':
				c.currentDiffView = "after"
				c.refreshDetail()
				return nil
			case '3':
				c.currentDiffView = "diff"
				c.refreshDetail()
				return nil
			case 'v':
				c.openResolvedViewer()
				return nil
			case 't':
				c.openTrackedVarsViewer()
				return nil
			}
		case tcell.KeyEnter:
			if name, ok := node.GetReference().(string); ok {
				c.selectStage(name)
			} else {
				node.SetExpanded(!node.IsExpanded())
			}
			return nil
		}
		return event
	})
}

func (c *ConsoleApp) selectStage(name string) {
	c.selectedStage = name
	c.updateStatusBar()
	c.refreshDetail()
}
