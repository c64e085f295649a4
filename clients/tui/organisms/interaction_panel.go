package organisms

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/lumi/clients/tui/molecules"
)

// InteractionPanel manages the input line and the document picker.
type InteractionPanel struct {
	input  molecules.CommandInput
	picker FilePicker
}

// NewInteractionPanel creates a new interaction panel.
func NewInteractionPanel(pickerStyle lipgloss.Style, exts []string, placeholder, busyText string) InteractionPanel {
	return InteractionPanel{
		input:  molecules.NewCommandInput(placeholder, busyText),
		picker: NewFilePicker(pickerStyle, exts),
	}
}

// SetWidth sets the input width.
func (p *InteractionPanel) SetWidth(w int) {
	p.input.SetWidth(w)
}

// SetPickerHeight sets the number of entries the picker lists.
func (p *InteractionPanel) SetPickerHeight(h int) {
	p.picker.SetHeight(h)
}

// SetInputEnabled enables or disables the input line.
func (p *InteractionPanel) SetInputEnabled(enabled bool) {
	p.input.SetEnabled(enabled)
}

// InputEnabled returns whether the input line accepts text.
func (p *InteractionPanel) InputEnabled() bool {
	return p.input.Enabled()
}

// Mode returns what the panel currently shows.
func (p *InteractionPanel) Mode() Mode {
	if p.picker.Active() {
		return ModePicking
	}
	return ModeTyping
}

// OpenPicker shows the document picker on dir.
func (p *InteractionPanel) OpenPicker(dir string) tea.Cmd {
	return p.picker.Activate(dir)
}

// ClosePicker hides the document picker.
func (p *InteractionPanel) ClosePicker() {
	p.picker.Deactivate()
}

// Update routes a message to the active sub-component.
func (p InteractionPanel) Update(msg tea.Msg) (InteractionPanel, tea.Cmd) {
	var cmd tea.Cmd
	if p.picker.Active() {
		p.picker, cmd = p.picker.Update(msg)
		return p, cmd
	}
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// View renders the picker if active, otherwise the input.
func (p InteractionPanel) View() string {
	if p.picker.Active() {
		return p.picker.View()
	}
	return p.input.View()
}
