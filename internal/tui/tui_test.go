package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/schollz/midicanvas/internal/notevis"
)

func keyMsg(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

type fakeEngine struct {
	playing bool
	paused  bool
	vis     notevis.State
}

func (f *fakeEngine) Playing() bool            { return f.playing }
func (f *fakeEngine) Paused() bool             { return f.paused }
func (f *fakeEngine) Pause() error             { f.paused = true; return nil }
func (f *fakeEngine) Resume() error            { f.paused = false; return nil }
func (f *fakeEngine) SongLength() float64      { return 120 }
func (f *fakeEngine) PlaybackPos() float64     { return 30 }
func (f *fakeEngine) NoteVis() *notevis.State  { return &f.vis }

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "0:00", formatTime(0))
	assert.Equal(t, "1:05", formatTime(65))
	assert.Equal(t, "0:00", formatTime(-3))
}

func TestVelocityGradient(t *testing.T) {
	ramp := velocityGradient()
	assert.Len(t, ramp, 0x80)
	for _, c := range ramp {
		assert.True(t, strings.HasPrefix(c, "#"))
	}
}

func TestViewRendersChannels(t *testing.T) {
	engine := &fakeEngine{playing: true}
	engine.vis.Initialize(1)
	engine.vis.Channel(0).AddNote(60, 100)

	m := New(engine, "test.mid")
	view := m.View()
	assert.Contains(t, view, "test.mid")
	assert.Contains(t, view, "A01")
	assert.Contains(t, view, "0:30 / 2:00")
}

func TestSpaceTogglesPause(t *testing.T) {
	engine := &fakeEngine{playing: true}
	engine.vis.Initialize(1)
	m := New(engine, "x")

	// bubbletea delivers the space key with Type KeySpace
	updated, _ := m.Update(keyMsg(" "))
	assert.True(t, engine.paused)
	updated, _ = updated.Update(keyMsg(" "))
	_ = updated
	assert.False(t, engine.paused)
}
