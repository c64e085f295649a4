package organisms

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// ContentBlock is a renderable transcript entry. Incomplete blocks are
// re-rendered on every spinner frame.
type ContentBlock interface {
	View() string
	IsComplete() bool
}

// OutputViewport is the scrollable transcript area. It follows new output
// unless the user scrolled away from the bottom.
type OutputViewport struct {
	viewport viewport.Model
	header   string
	blocks   []ContentBlock
	follow   bool
}

// NewOutputViewport creates a viewport with its key and mouse bindings
// disabled; scrolling goes through PageUp and PageDown.
func NewOutputViewport(width, height int) OutputViewport {
	vp := viewport.New(width, height)
	vp.KeyMap = viewport.KeyMap{}
	vp.MouseWheelEnabled = false
	return OutputViewport{viewport: vp, follow: true}
}

// SetSize updates the viewport dimensions.
func (o *OutputViewport) SetSize(width, height int) {
	o.viewport.Width = width
	o.viewport.Height = height
	o.render()
}

// SetContent replaces the header and blocks.
func (o *OutputViewport) SetContent(header string, blocks []ContentBlock) {
	o.header = header
	o.blocks = blocks
	o.render()
}

// BlockCount returns the number of blocks.
func (o *OutputViewport) BlockCount() int { return len(o.blocks) }

// PageUp scrolls up one page and stops following output.
func (o *OutputViewport) PageUp() {
	o.viewport.PageUp()
	o.follow = o.viewport.AtBottom()
}

// PageDown scrolls down one page. Reaching the bottom resumes following.
func (o *OutputViewport) PageDown() {
	o.viewport.PageDown()
	o.follow = o.viewport.AtBottom()
}

// Following reports whether new output scrolls into view.
func (o *OutputViewport) Following() bool { return o.follow }

// Refresh re-renders the blocks, e.g. for a new spinner frame.
func (o *OutputViewport) Refresh() { o.render() }

func (o *OutputViewport) render() {
	parts := make([]string, 0, len(o.blocks)+1)
	if o.header != "" {
		parts = append(parts, o.header)
	}
	for _, b := range o.blocks {
		parts = append(parts, b.View())
	}
	o.viewport.SetContent(strings.Join(parts, "\n"))
	if o.follow {
		o.viewport.GotoBottom()
	}
}

// View renders the viewport.
func (o OutputViewport) View() string {
	return o.viewport.View()
}
