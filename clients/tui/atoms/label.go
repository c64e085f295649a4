package atoms

import "github.com/charmbracelet/lipgloss"

// StyledLabel renders an author label (e.g. "You", "Lumi") with the given style.
func StyledLabel(role string, style lipgloss.Style) string {
	return style.Render(role)
}

// Orb renders the voice orb glyph. It glows while the session is
// listening or thinking.
func Orb(active bool, idle, glow lipgloss.Style) string {
	if active {
		return glow.Render("◉")
	}
	return idle.Render("○")
}
