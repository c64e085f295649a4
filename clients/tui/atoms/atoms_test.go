package atoms

import (
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

func TestSpinnerStartStop(t *testing.T) {
	s := NewSpinner(lipgloss.AdaptiveColor{Light: "0", Dark: "15"})
	if s.Running() || s.Tick() != nil {
		t.Fatal("new spinner should be stopped")
	}

	if s.Start() == nil {
		t.Fatal("Start should return a tick")
	}
	if s.Start() != nil {
		t.Fatal("second Start should not start another tick chain")
	}

	tick := s.Tick()()
	if s.Update(tick) == nil {
		t.Fatal("running spinner should schedule the next tick")
	}

	s.Stop()
	if s.Update(spinner.TickMsg{Time: time.Now()}) != nil {
		t.Fatal("stopped spinner should let ticks lapse")
	}
}

func TestOrb(t *testing.T) {
	plain := lipgloss.NewStyle()
	if got := Orb(false, plain, plain); got != "○" {
		t.Fatalf("idle orb = %q", got)
	}
	if got := Orb(true, plain, plain); got != "◉" {
		t.Fatalf("active orb = %q", got)
	}
}
