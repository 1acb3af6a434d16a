package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	cancel  key.Binding
	retry   key.Binding
	skip    key.Binding
	resolve key.Binding
	refresh key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		cancel:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel batch")),
		retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry track")),
		skip:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip track")),
		resolve: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "match manually")),
		refresh: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.cancel, k.retry, k.skip, k.resolve},
		{k.refresh, k.quit},
	}
}
