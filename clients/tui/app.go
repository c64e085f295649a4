package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dohr-michael/lumi/internal/events"
)

// Options configures the TUI host.
type Options struct {
	Session Session
	Bus     *events.Bus
	// Welcome is shown until the first interaction.
	Welcome string
	// Markdown renders assistant replies with glamour.
	Markdown bool
	// Backend is the backend URL shown in the status bar.
	Backend string
	// Extensions restricts the document picker. Empty allows any file.
	Extensions []string
	// StartDir is where the document picker opens. Empty means the
	// working directory.
	StartDir string
	// Reload re-reads configuration and returns the new backend URL.
	Reload func() (string, error)
}

// Run starts the TUI and blocks until the user quits, the session closes or
// ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Session == nil || opts.Bus == nil {
		return errors.New("tui: session and bus are required")
	}

	ch, unsubscribe := opts.Bus.SubscribeChan(256, watchedEvents...)
	defer unsubscribe()

	p := tea.NewProgram(NewMainModel(opts, ch), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
