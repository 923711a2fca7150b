// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command dvcinspect is a terminal UI over a pipeline document: a tree of
// its stages (including generated foreach/matrix members), a before/after/
// diff view of each stage's raw body against its resolved fields, and a
// watch mode that re-resolves and re-renders the tree on every save.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	dvcgo "github.com/noi-techpark/dvcgo"
	"github.com/noi-techpark/dvcgo/format"
)

func escapeBrackets(input string) string {
	return strings.NewReplacer(
		"[", "[​",
		"]", "​]",
	).Replace(input)
}

func getHelpText() string {
	return `[yellow::b]dvcinspect - Keyboard Shortcuts[-:-:-]

[green::b]Navigation (Vim-style)[-:-:-]
  [yellow]j / k[-]   Next / previous stage
  [yellow]h / l[-]   Collapse / expand a group
  [yellow]g[-]       Jump to the tree root
  [yellow]Enter[-]   Toggle expand/collapse

[green::b]Stage Detail[-:-:-]
  [yellow]1[-]       Show raw stage body
  [yellow]2[-]       Show resolved fields
  [yellow]3[-]       Show word-diff of the two
  [yellow]v[-]       Open resolved fields in a searchable viewer
  [yellow]t[-]       Show tracked_vars for this stage

[green::b]Misc[-:-:-]
  [yellow]?[-]       Toggle this help panel
  [yellow]q[-]       Quit
`
}

type consoleLogger struct {
	logFunc func(msg string)
}

func (cl consoleLogger) Info(msg string, args ...any) {
	cl.logFunc("[INFO] " + escapeBrackets(fmt.Sprintf(msg, args...)))
}
func (cl consoleLogger) Debug(msg string, args ...any) {
	cl.logFunc("[#bdc9c4] " + escapeBrackets(fmt.Sprintf(msg, args...)))
}
func (cl consoleLogger) Warning(msg string, args ...any) {
	cl.logFunc("[orange] " + escapeBrackets(fmt.Sprintf(msg, args...)))
}
func (cl consoleLogger) Error(msg string, args ...any) {
	cl.logFunc("[red] " + escapeBrackets(fmt.Sprintf(msg, args...)))
}

// ConsoleApp owns the tview application and the currently loaded resolver.
type ConsoleApp struct {
	app     *tview.Application
	watcher *fsnotify.Watcher
	mutex   sync.Mutex

	execLog     *tview.TextView
	stepDetails *tview.TextView
	tree        *tview.TreeView
	statusBar   *tview.TextView
	helpPanel   *tview.TextView
	pages       *tview.Pages
	mainLayout  *tview.Flex

	docPath string
	wdir    string

	resolver *dvcgo.DataResolver
	nodeMap  map[string]*tview.TreeNode

	selectedStage   string
	currentDiffView string // "before", "after", or "diff"
}

func recoverAndLog(logger consoleLogger) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		logger.Error("recovered from panic: %v\n%s", r, string(stack))
	}
}

func NewConsoleApp() *ConsoleApp {
	return &ConsoleApp{
		app:             tview.NewApplication(),
		nodeMap:         make(map[string]*tview.TreeNode),
		currentDiffView: "after",
	}
}

func (c *ConsoleApp) Run() {
	var pathField, wdirField *tview.InputField

	pathField = tview.NewInputField().
		SetLabel("Pipeline document: ").
		SetText("dvc.yaml").
		SetFieldWidth(48)
	wdirField = tview.NewInputField().
		SetLabel("Working directory: ").
		SetText(".").
		SetFieldWidth(48)

	form := tview.NewForm().
		AddFormItem(pathField).
		AddFormItem(wdirField)
	form.AddButton("Open", func() {
		c.docPath = pathField.GetText()
		c.wdir = wdirField.GetText()
		if _, err := os.Stat(c.docPath); err != nil {
			form.SetTitle(" Open (file not found) ")
			return
		}
		c.gotoInspector()
	})
	form.SetBorder(true).SetTitle(" Open ").SetTitleAlign(tview.AlignLeft)

	c.app.SetRoot(form, true)
	if err := c.app.Run(); err != nil {
		log.Fatal(err)
	}
}

func (c *ConsoleApp) loadResolver() error {
	f, err := os.Open(c.docPath)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := format.NewRegistry().Load(c.docPath, f)
	if err != nil {
		return err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: expected a mapping at the top level, got %T", c.docPath, raw)
	}

	logger := consoleLogger{logFunc: c.appendLog}
	dr, err := dvcgo.NewDataResolver(dvcgo.LocalFS{}, format.NewRegistry(), c.docPath, c.wdir, dvcgo.DocumentFromMap(m), logger)
	if err != nil {
		return err
	}
	c.resolver = dr
	return nil
}

func (c *ConsoleApp) gotoInspector() {
	if err := c.loadResolver(); err != nil {
		log.Fatal(err)
	}

	var err error
	c.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Fatal(err)
	}
	if err := c.watcher.Add(c.docPath); err != nil {
		log.Fatal(err)
	}

	c.execLog = tview.NewTextView()
	c.execLog.SetDynamicColors(true)
	c.execLog.SetScrollable(true)
	c.execLog.SetBorder(true)
	c.execLog.SetTitle(" Log ")

	c.stepDetails = tview.NewTextView()
	c.stepDetails.SetDynamicColors(true)
	c.stepDetails.SetScrollable(true)
	c.stepDetails.SetBorder(true)
	c.stepDetails.SetTitle(" Stage Detail ")
	c.stepDetails.SetWrap(true)

	c.statusBar = tview.NewTextView()
	c.statusBar.SetDynamicColors(true)

	c.helpPanel = tview.NewTextView()
	c.helpPanel.SetDynamicColors(true)
	c.helpPanel.SetBorder(true)
	c.helpPanel.SetTitle(" Help ")
	c.helpPanel.SetText(getHelpText())

	c.pages = tview.NewPages()
	c.app.EnableMouse(true)

	c.buildTree()
	c.setupTreeInputCapture()
	c.updateStatusBar()

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(c.tree, 0, 2, true).
		AddItem(c.execLog, 0, 1, false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(c.stepDetails, 0, 3, false).
		AddItem(c.statusBar, 1, 0, false)

	body := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(right, 0, 2, false)

	c.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).AddItem(body, 0, 1, true)

	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case '?':
				c.toggleHelp()
				return nil
			case 'q':
				c.stopWatch()
				c.app.Stop()
				return nil
			}
		}
		return event
	})

	c.pages.AddPage("main", c.mainLayout, true, true)
	c.app.SetRoot(c.pages, true)
	c.app.SetFocus(c.tree)

	go c.watchLoop()
}

func (c *ConsoleApp) toggleHelp() {
	name, _ := c.pages.GetFrontPage()
	if name == "help" {
		c.pages.RemovePage("help")
		c.app.SetFocus(c.tree)
		return
	}
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 2, 0, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 4, 0, false).
			AddItem(c.helpPanel, 0, 1, true).
			AddItem(nil, 4, 0, false), 0, 1, true).
		AddItem(nil, 2, 0, false)
	c.pages.AddPage("help", modal, true, true)
}

func (c *ConsoleApp) updateStatusBar() {
	mode := c.currentDiffView
	c.statusBar.SetText(fmt.Sprintf(" [yellow]%s[-]  view=%s  [yellow]1/2/3[-] raw/resolved/diff  [yellow]v[-] viewer  [yellow]t[-] tracked_vars  [yellow]?[-] help",
		c.selectedStage, mode))
}

func (c *ConsoleApp) appendLog(msg string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.execLog == nil {
		return
	}
	fmt.Fprintln(c.execLog, msg)
	if c.app != nil {
		c.app.QueueUpdateDraw(func() {})
	}
}

func (c *ConsoleApp) stopWatch() {
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
}

func main() {
	NewConsoleApp().Run()
}
