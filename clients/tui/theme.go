// Package tui provides the terminal host for a Lumi interaction session.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/lumi/clients/tui/organisms"
)

// Adaptive colors, picked by terminal background.
var (
	colorUser   = lipgloss.AdaptiveColor{Light: "#0070F3", Dark: "#79C0FF"}
	colorLumi   = lipgloss.AdaptiveColor{Light: "#6B21A8", Dark: "#D8A6FF"}
	colorNotice = lipgloss.AdaptiveColor{Light: "#065F46", Dark: "#7EE2B8"}
	colorError  = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#FF6B6B"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorBarBg  = lipgloss.AdaptiveColor{Light: "#F3F4F6", Dark: "#1F2937"}
	colorBarFg  = lipgloss.AdaptiveColor{Light: "#374151", Dark: "#D1D5DB"}
	colorFrame  = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#374151"}
	colorOrb    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#67E8F9"}
)

// theme groups the styles handed to the organisms.
type theme struct {
	blocks    organisms.BlockStyles
	spinner   lipgloss.AdaptiveColor
	statusBar lipgloss.Style
	orbIdle   lipgloss.Style
	orbActive lipgloss.Style
	picker    lipgloss.Style
}

func newTheme() theme {
	fg := func(c lipgloss.TerminalColor) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c)
	}
	return theme{
		blocks: organisms.BlockStyles{
			User:      fg(colorUser).Bold(true),
			Assistant: fg(colorLumi).Bold(true),
			System:    fg(colorNotice),
			Error:     fg(colorError).Bold(true),
			Muted:     fg(colorMuted),
		},
		spinner:   colorLumi,
		statusBar: lipgloss.NewStyle().Background(colorBarBg).Foreground(colorBarFg).Padding(0, 1),
		orbIdle:   fg(colorMuted),
		orbActive: fg(colorOrb).Bold(true),
		picker: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorFrame).
			Padding(0, 1),
	}
}
