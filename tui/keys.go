package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap клавиши пульта
type KeyMap struct {
	ChangeDirection key.Binding
	Slower          key.Binding
	Faster          key.Binding
	Stop            key.Binding
	Help            key.Binding
	Quit            key.Binding
}

// DefaultKeyMap набор клавиш по умолчанию
var DefaultKeyMap = KeyMap{
	ChangeDirection: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "direction"),
	),
	Slower: key.NewBinding(
		key.WithKeys("-", "s", "down"),
		key.WithHelp("-/s", "slower"),
	),
	Faster: key.NewBinding(
		key.WithKeys("+", "f", "up"),
		key.WithHelp("+/f", "faster"),
	),
	Stop: key.NewBinding(
		key.WithKeys(" ", "x"),
		key.WithHelp("space/x", "stop"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp для help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Faster, k.Slower, k.Stop, k.ChangeDirection, k.Help, k.Quit}
}

// FullHelp для help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Faster, k.Slower, k.Stop},
		{k.ChangeDirection},
		{k.Help, k.Quit},
	}
}
