// Package notevis tracks the currently sounding notes per channel for
// display purposes. Drum hits have no Note Off, so they age out instead;
// mutually exclusive drum groups (hi-hats, crash/ride, tom pairs) retire
// each other early, the way the real instruments do.
package notevis

import "sync"

// Drum mutual-exclusion groups by note number. Group 0 notes replace only
// same-pitch instances.
var drumGroup = [0x80]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x00-0x0F
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7, 7, 0, // 0x10-0x1F
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1, 0, 1, 0, // 0x20-0x2F
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x30-0x3F
	0, 0, 0, 0, 0, 0, 0, 2, 2, 3, 3, 0, 0, 0, 4, 4, // 0x40-0x4F
	5, 5, 0, 0, 0, 0, 6, 6, 0, 0, 0, 0, 0, 0, 0, 0, // 0x50-0x5F
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x60-0x6F
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x70-0x7F
}

// Maximum display age in milliseconds per drum note.
var drumAge = [0x80]uint32{
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, // 0x00-0x0F
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, // 0x10-0x1F
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 80, 150, 80, 150, 300, 150, // 0x20-0x2F
	150, 600, 150, 300, 150, 300, 150, 600, 150, 600, 150, 150, 150, 150, 150, 150, // 0x30-0x3F
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, // 0x40-0x4F
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, // 0x50-0x5F
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, // 0x60-0x6F
	150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, 150, // 0x70-0x7F
}

const ageRetired = ^uint32(0)

// Modifiers are the channel (or module-global) attributes affecting note
// display.
type Modifiers struct {
	Volume     uint8
	Expression uint8
	Pan        int8     // -0x40 .. 0x00 .. +0x3F
	Detune     [2]int16 // [0] pitch bend, [1] RPN tuning; 8.8 fixed point
}

// Note is one sounding note.
type Note struct {
	Height   uint8
	Velocity uint8
	CurAge   uint32 // milliseconds since Note On
	MaxAge   uint32 // nonzero enforces automatic removal
}

// Channel is the display state of one MIDI channel.
type Channel struct {
	ChnMode   uint8 // bit 0: drum channel
	Attr      Modifiers
	PbRange   uint8
	Transpose int8
	Detune    int8
	notes     []Note
}

func (c *Channel) initialize() {
	c.ChnMode = 0x00
	c.Attr = Modifiers{Volume: 100, Expression: 0x7F}
	c.PbRange = 2
	c.Transpose = 0
	c.Detune = 0
	c.notes = c.notes[:0]
}

// AddNote registers a sounding note. On drum channels the note gets a
// maximum age and retires other members of its drum group.
func (c *Channel) AddNote(note, vel uint8) *Note {
	note &= 0x7F
	n := Note{Height: note, Velocity: vel}
	if c.ChnMode&0x01 != 0 {
		c.drumNotePrepare(note)
		n.MaxAge = drumAge[note]
	}
	c.notes = append(c.notes, n)
	if len(c.notes) >= 0x80 {
		c.notes = append(c.notes[:0], c.notes[0x80-0x20:]...)
	}
	return &c.notes[len(c.notes)-1]
}

func (c *Channel) drumNotePrepare(note uint8) {
	group := drumGroup[note]
	for i := range c.notes {
		if group == 0 {
			if c.notes[i].Height == note {
				c.notes[i].CurAge = ageRetired
			}
		} else if drumGroup[c.notes[i].Height] == group {
			c.notes[i].CurAge = ageRetired
		}
	}
	c.removeIf(func(n *Note) bool { return n.CurAge == ageRetired })
}

// RemoveNote handles an explicit Note Off; aged drum notes are left to
// expire on their own.
func (c *Channel) RemoveNote(note uint8) {
	for i := range c.notes {
		if c.notes[i].Height == note && c.notes[i].MaxAge == 0 {
			c.notes = append(c.notes[:i], c.notes[i+1:]...)
			return
		}
	}
}

func (c *Channel) ClearNotes() {
	c.notes = c.notes[:0]
}

func (c *Channel) removeIf(pred func(*Note) bool) {
	kept := c.notes[:0]
	for i := range c.notes {
		if !pred(&c.notes[i]) {
			kept = append(kept, c.notes[i])
		}
	}
	c.notes = kept
}

// AdvanceAge ages all notes by dtMs milliseconds and expires drum notes
// past their cap.
func (c *Channel) AdvanceAge(dtMs uint32) {
	for i := range c.notes {
		c.notes[i].CurAge += dtMs
	}
	c.removeIf(func(n *Note) bool { return n.MaxAge != 0 && n.CurAge >= n.MaxAge })
}

// Notes returns a copy of the sounding-note list.
func (c *Channel) Notes() []Note {
	out := make([]Note, len(c.notes))
	copy(out, c.notes)
	return out
}

// ProcessedNotes applies pitch and volume modifiers, clamping pitches to
// 0..127. Drum channels get no pitch correction.
func (c *Channel) ProcessedNotes(moduleAttr Modifiers) []Note {
	out := make([]Note, 0, len(c.notes))
	for _, n := range c.notes {
		var pitch int32
		if c.ChnMode&0x01 != 0 {
			pitch = int32(n.Height)
		} else {
			pitch = int32(n.Height) << 8
			pitch += int32(c.Attr.Detune[0]) + int32(c.Attr.Detune[1])
			pitch += int32(moduleAttr.Detune[0]) + int32(moduleAttr.Detune[1])
			pitch = (pitch + 0x80) >> 8
			if pitch < 0x00 {
				pitch = 0x00
			} else if pitch > 0x7F {
				pitch = 0x7F
			}
		}
		out = append(out, Note{Height: uint8(pitch), Velocity: n.Velocity})
	}
	return out
}

// State is the visualization state for all channels of all ports.
// UIs on other goroutines must read through the snapshot accessors.
type State struct {
	mu       sync.RWMutex
	modAttrs Modifiers
	channels []Channel
}

// Initialize sets up chnGroups*16 channels with channel 10 of each group
// in drum mode. Like all mutating accessors it may only be called by the
// playback goroutine, under Lock when a UI is attached.
func (s *State) Initialize(chnGroups int) {
	s.modAttrs = Modifiers{Volume: 0x7F, Expression: 0x7F}
	s.channels = make([]Channel, chnGroups*0x10)
	for i := range s.channels {
		s.channels[i].initialize()
		if i&0x0F == 0x09 {
			s.channels[i].ChnMode = 0x01
		}
	}
}

// Reset reinitializes all channels, keeping the channel count.
func (s *State) Reset() {
	s.Initialize(len(s.channels) / 0x10)
}

// ChnGroupCount returns the number of 16-channel groups.
func (s *State) ChnGroupCount() int {
	return len(s.channels) / 0x10
}

// Channel returns the mutable state of one channel. Only the playback
// goroutine may use this.
func (s *State) Channel(chn uint16) *Channel {
	return &s.channels[chn]
}

// Attributes returns the module-global modifiers for mutation by the
// playback goroutine.
func (s *State) Attributes() *Modifiers {
	return &s.modAttrs
}

// AdvanceAge ages every channel. Safe to call from the driver goroutine
// between playback steps.
func (s *State) AdvanceAge(dtMs uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.channels {
		s.channels[i].AdvanceAge(dtMs)
	}
}

// ChannelSnapshot is an immutable copy of one channel for UI consumption.
type ChannelSnapshot struct {
	ChnMode uint8
	Attr    Modifiers
	PbRange uint8
	Notes   []Note
}

// Snapshot copies the display state of every channel, with pitch/volume
// modifiers applied. Safe to call from any goroutine.
func (s *State) Snapshot() []ChannelSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChannelSnapshot, len(s.channels))
	for i := range s.channels {
		ch := &s.channels[i]
		out[i] = ChannelSnapshot{
			ChnMode: ch.ChnMode,
			Attr:    ch.Attr,
			PbRange: ch.PbRange,
			Notes:   ch.ProcessedNotes(s.modAttrs),
		}
	}
	return out
}

// Lock acquires the state for a batch of playback-side mutations.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the playback-side lock.
func (s *State) Unlock() { s.mu.Unlock() }
