package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	enter    key.Binding
	upload   key.Binding
	refresh  key.Binding
	download key.Binding
	cleanup  key.Binding
	reset    key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "watch")),
		upload:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		refresh:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		cleanup:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clean up")),
		reset:    key.NewBinding(key.WithKeys("r", "esc"), key.WithHelp("r", "back")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.enter, k.upload, k.refresh},
		{k.download, k.cleanup},
		{k.reset, k.quit},
	}
}
