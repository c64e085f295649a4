package organisms

import (
	"os"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FileChosenMsg is sent when the user picks a file or cancels the picker.
type FileChosenMsg struct {
	Path      string
	Cancelled bool
}

// FilePicker wraps bubbles/filepicker for choosing a document.
type FilePicker struct {
	model  filepicker.Model
	active bool
	style  lipgloss.Style
	height int
	exts   []string
}

// NewFilePicker creates an inactive picker restricted to exts.
func NewFilePicker(style lipgloss.Style, exts []string) FilePicker {
	return FilePicker{style: style, exts: exts, height: 10}
}

// Active returns whether the picker is shown.
func (f *FilePicker) Active() bool { return f.active }

// SetHeight sets the number of listed entries.
func (f *FilePicker) SetHeight(h int) {
	if h < 3 {
		h = 3
	}
	f.height = h
	f.model.Height = h
}

// Activate opens the picker on dir and returns the directory read command.
func (f *FilePicker) Activate(dir string) tea.Cmd {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	fp := filepicker.New()
	fp.CurrentDirectory = dir
	fp.AllowedTypes = f.exts
	fp.AutoHeight = false
	fp.Height = f.height
	f.model = fp
	f.active = true
	return fp.Init()
}

// Deactivate hides the picker.
func (f *FilePicker) Deactivate() {
	f.active = false
}

// Update routes msg to the picker. Esc cancels.
func (f FilePicker) Update(msg tea.Msg) (FilePicker, tea.Cmd) {
	if !f.active {
		return f, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok && k.Type == tea.KeyEsc {
		f.active = false
		return f, func() tea.Msg { return FileChosenMsg{Cancelled: true} }
	}

	var cmd tea.Cmd
	f.model, cmd = f.model.Update(msg)
	if ok, path := f.model.DidSelectFile(msg); ok {
		f.active = false
		return f, tea.Batch(cmd, func() tea.Msg { return FileChosenMsg{Path: path} })
	}
	return f, cmd
}

// View renders the picker.
func (f FilePicker) View() string {
	title := lipgloss.NewStyle().Bold(true).Render("Select a document (esc to cancel)")
	return f.style.Render(title + "\n" + f.model.View())
}
