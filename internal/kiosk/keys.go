package kiosk

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings of the kiosk view.
type KeyMap struct {
	Start key.Binding
	Stop  key.Binding
	Quit  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start: key.NewBinding(
			key.WithKeys("s", "enter"),
			key.WithHelp("s", "start"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x", "esc"),
			key.WithHelp("x", "stop"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) bindings() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Quit}
}
