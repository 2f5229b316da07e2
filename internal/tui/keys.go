package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap lists the bindings of the watch screen.
type keyMap struct {
	Scan    key.Binding
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Close   key.Binding
	Dismiss key.Binding
	Learn   key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Scan:    key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "scan")),
		Up:      key.NewBinding(key.WithKeys("up"), key.WithHelp("arrows", "move panel")),
		Down:    key.NewBinding(key.WithKeys("down")),
		Left:    key.NewBinding(key.WithKeys("left")),
		Right:   key.NewBinding(key.WithKeys("right")),
		Close:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "close")),
		Dismiss: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dismiss")),
		Learn:   key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "learn more")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Scan, k.Up, k.Close, k.Dismiss, k.Learn, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
