package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Left        key.Binding
	Right       key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Home        key.Binding
	End         key.Binding
	More        key.Binding
	Select      key.Binding
	SelectAll   key.Binding
	SelectNone  key.Binding
	Delete      key.Binding
	DeleteSel   key.Binding
	Download    key.Binding
	DownloadOne key.Binding
	Faster      key.Binding
	Slower      key.Binding
	Rescrape    key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:        key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:       key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		PageUp:      key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown:    key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),
		Home:        key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "first")),
		End:         key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "last")),
		More:        key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "more")),
		Select:      key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "select")),
		SelectAll:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
		SelectNone:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "select none")),
		Delete:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete")),
		DeleteSel:   key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "delete selected")),
		Download:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download selected")),
		DownloadOne: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "download image")),
		Faster:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "more loads")),
		Slower:      key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "fewer loads")),
		Rescrape:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescrape")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.More, k.Select, k.Download, k.Delete, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.PageUp, k.PageDown, k.Home, k.End},
		{k.More, k.Select, k.SelectAll, k.SelectNone, k.Delete, k.DeleteSel},
		{k.Download, k.DownloadOne, k.Faster, k.Slower, k.Rescrape, k.Help, k.Quit},
	}
}
