package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	start   key.Binding
	dryRun  key.Binding
	twoWay  key.Binding
	cancel  key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		start:   key.NewBinding(key.WithKeys("enter", "y"), key.WithHelp("enter", "start sync")),
		dryRun:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "toggle dry run")),
		twoWay:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle two-way")),
		cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run again")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.start, k.dryRun, k.twoWay},
		{k.cancel, k.restart, k.quit},
	}
}
