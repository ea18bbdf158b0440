// Package tui renders playback state in the terminal: a progress bar and
// a per-channel view of the currently sounding notes. It only reads
// snapshots of the visualization state; all engine mutation stays on the
// driver goroutine.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/schollz/midicanvas/internal/notevis"
)

// Engine is the part of the player the TUI needs.
type Engine interface {
	Playing() bool
	Paused() bool
	Pause() error
	Resume() error
	SongLength() float64
	PlaybackPos() float64
	NoteVis() *notevis.State
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
	drumStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
	noteColumns = 64
)

type tickMsg time.Time

// Model is the bubbletea model for the playback screen.
type Model struct {
	engine   Engine
	title    string
	progress progress.Model
	width    int
	height   int
	done     bool
	gradient []string
}

// New creates a playback screen for the given engine.
func New(engine Engine, title string) Model {
	p := progress.New(progress.WithDefaultGradient())
	p.Width = 50
	return Model{
		engine:   engine,
		title:    title,
		progress: p,
		gradient: velocityGradient(),
	}
}

// velocityGradient precomputes a 128-step color ramp for note velocity.
func velocityGradient() []string {
	dark := termenv.HasDarkBackground()
	lowLum := 0.35
	if !dark {
		lowLum = 0.65
	}
	low, _ := colorful.Hex("#3b6ea5")
	high, _ := colorful.Hex("#e05555")
	ramp := make([]string, 0x80)
	for i := range ramp {
		t := float64(i) / 127.0
		c := low.BlendLuv(high, t)
		_, a, b := c.Lab()
		c = colorful.Lab(lowLum+(0.85-lowLum)*t, a, b).Clamped()
		ramp[i] = c.Hex()
	}
	return ramp
}

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		case " ":
			if m.engine.Paused() {
				m.engine.Resume()
			} else {
				m.engine.Pause()
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 70 {
			m.progress.Width = 70
		}
	case tickMsg:
		if !m.engine.Playing() {
			m.done = true
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteByte('\n')

	length := m.engine.SongLength()
	pos := m.engine.PlaybackPos()
	frac := 0.0
	if length > 0 {
		frac = pos / length
		if frac > 1 {
			frac = 1
		}
	}
	state := "playing"
	if m.engine.Paused() {
		state = "paused "
	}
	sb.WriteString(fmt.Sprintf("%s %s %s / %s\n\n",
		labelStyle.Render(state),
		m.progress.ViewAs(frac),
		formatTime(pos), formatTime(length)))

	for i, chn := range m.engine.NoteVis().Snapshot() {
		label := fmt.Sprintf("%c%02d", 'A'+i/16, 1+i%16)
		if chn.ChnMode&0x01 != 0 {
			label = drumStyle.Render(label)
		} else {
			label = labelStyle.Render(label)
		}
		sb.WriteString(label)
		sb.WriteByte(' ')
		sb.WriteString(m.renderNotes(chn))
		sb.WriteByte('\n')
	}

	sb.WriteString(helpStyle.Render("\nspace: pause/resume  q: quit"))
	return sb.String()
}

// renderNotes draws one channel as a row of note blocks positioned by
// pitch and colored by velocity.
func (m Model) renderNotes(chn notevis.ChannelSnapshot) string {
	row := make([]rune, noteColumns)
	colors := make([]string, noteColumns)
	for i := range row {
		row[i] = '·'
	}
	for _, note := range chn.Notes {
		col := int(note.Height) * noteColumns / 0x80
		row[col] = '█'
		colors[col] = m.gradient[note.Velocity&0x7F]
	}
	var sb strings.Builder
	for i, r := range row {
		if colors[i] != "" {
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i])).Render(string(r)))
		} else {
			sb.WriteString(labelStyle.Render(string(r)))
		}
	}
	return sb.String()
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
