package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	PlayPause key.Binding
	Next      key.Binding
	Previous  key.Binding
	SeekFwd   key.Binding
	SeekBack  key.Binding
	Favorite  key.Binding
	Expand    key.Binding
	Back      key.Binding
	PageLeft  key.Binding
	PageRight key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		PlayPause: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		Next: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next"),
		),
		Previous: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "previous"),
		),
		SeekFwd: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "seek forward"),
		),
		SeekBack: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "seek back"),
		),
		Favorite: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "favorite"),
		),
		Expand: key.NewBinding(
			key.WithKeys("enter", "up", "k"),
			key.WithHelp("enter", "expand/collapse"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "down", "j"),
			key.WithHelp("esc", "collapse"),
		),
		PageLeft: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "previous page"),
		),
		PageRight: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next page"),
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
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.Expand, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.Next, k.Previous},
		{k.SeekFwd, k.SeekBack, k.Favorite},
		{k.Expand, k.Back, k.PageLeft, k.PageRight},
		{k.Help, k.Quit},
	}
}
