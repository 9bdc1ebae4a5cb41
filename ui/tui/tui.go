package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/supersonic-app/nowplaying/backend"
)

// Run starts the terminal UI and blocks until the user quits.
func Run(opts Options, store *backend.PlayerStateStore) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(opts.Context))
	unsub := store.Subscribe(func(st backend.UiState) {
		p.Send(stateMsg(st))
	})
	defer unsub()
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context.Err() != nil {
		// quit from outside the UI, eg. via MPRIS or a signal
		return nil
	}
	return err
}
