package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	muted  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	danger = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F5F"}
)

type styles struct {
	Title       lipgloss.Style
	Artist      lipgloss.Style
	Muted       lipgloss.Style
	Live        lipgloss.Style
	Favorite    lipgloss.Style
	Current     lipgloss.Style
	MiniBar     lipgloss.Style
	Sheet       lipgloss.Style
	Notice      lipgloss.Style
	Dialog      lipgloss.Style
	DialogTitle lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:    lipgloss.NewStyle().Bold(true),
		Artist:   lipgloss.NewStyle().Foreground(accent),
		Muted:    lipgloss.NewStyle().Foreground(muted),
		Live:     lipgloss.NewStyle().Foreground(danger).Bold(true),
		Favorite: lipgloss.NewStyle().Foreground(danger),
		Current:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		MiniBar: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(muted).
			PaddingLeft(1),
		Sheet: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2),
		Notice: lipgloss.NewStyle().Foreground(accent).Italic(true),
		Dialog: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(danger).
			Padding(1, 3),
		DialogTitle: lipgloss.NewStyle().Foreground(danger).Bold(true),
	}
}
