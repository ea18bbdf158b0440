// Package midifile provides the parsed MIDI file representation consumed
// by the bank scanner and the playback engine. Parsing itself is done by
// gitlab.com/gomidi/midi/v2/smf; this package flattens the result into
// absolute-tick events carrying raw wire bytes.
package midifile

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
)

// Event is one MIDI event at an absolute tick.
//
// For channel voice messages Type is the status byte and ValA/ValB the
// data bytes. For SysEx events (Type 0xF0/0xF7) Data holds the payload
// without the leading 0xF0 but including the trailing 0xF7. For meta
// events (Type 0xFF) ValA is the meta type and Data the payload.
type Event struct {
	Tick uint32
	Type uint8
	ValA uint8
	ValB uint8
	Data []byte
}

// Track is one SMF track.
type Track struct {
	Events    []Event
	TickCount uint32
}

// File is a fully parsed MIDI file.
type File struct {
	Format     uint16
	Resolution uint16
	Tracks     []*Track
}

// Meta event types recognized by the engine.
const (
	MetaText       = 0x01
	MetaTrackName  = 0x03
	MetaMarker     = 0x06
	MetaMidiPort   = 0x21
	MetaEndOfTrack = 0x2F
	MetaTempo      = 0x51
	MetaTimeSig    = 0x58
	MetaKeySig     = 0x59
)

// Load parses a Standard MIDI File from disk.
func Load(path string) (*File, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not parse MIDI file %s: %w", path, err)
	}
	return fromSMF(s)
}

// FromSMF converts an already parsed SMF.
func FromSMF(s *smf.SMF) (*File, error) {
	return fromSMF(s)
}

func fromSMF(s *smf.SMF) (*File, error) {
	res, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported SMF time format %v", s.TimeFormat)
	}
	f := &File{
		Format:     s.Format(),
		Resolution: uint16(res.Resolution()),
	}
	for _, smfTrk := range s.Tracks {
		trk := &Track{}
		var tick uint32
		for _, ev := range smfTrk {
			tick += ev.Delta
			raw := ev.Message.Bytes()
			if len(raw) == 0 {
				continue
			}
			evt := Event{Tick: tick, Type: raw[0]}
			switch {
			case raw[0] == 0xFF && len(raw) >= 2:
				evt.ValA = raw[1]
				evt.Data = raw[2:]
				// drop the variable-length payload size that precedes the data
				size, n := 0, 0
				for n < len(evt.Data) && n < 4 {
					size = size<<7 | int(evt.Data[n]&0x7F)
					n++
					if evt.Data[n-1]&0x80 == 0 {
						break
					}
				}
				if n > 0 && size == len(evt.Data)-n {
					evt.Data = evt.Data[n:]
				}
			case raw[0] == 0xF0 || raw[0] == 0xF7:
				evt.Data = raw[1:]
			default:
				if len(raw) >= 2 {
					evt.ValA = raw[1]
				}
				if len(raw) >= 3 {
					evt.ValB = raw[2]
				}
			}
			trk.Events = append(trk.Events, evt)
		}
		trk.TickCount = tick
		f.Tracks = append(f.Tracks, trk)
	}
	return f, nil
}

// IsChannelVoice reports whether the event is a channel voice message.
func (e *Event) IsChannelVoice() bool {
	return e.Type >= 0x80 && e.Type < 0xF0
}

// Channel returns the channel of a voice message.
func (e *Event) Channel() uint8 {
	return e.Type & 0x0F
}

// TempoMicros decodes the 24-bit tempo value of a Meta 51 event.
func (e *Event) TempoMicros() uint32 {
	if len(e.Data) < 3 {
		return 0
	}
	return uint32(e.Data[0])<<16 | uint32(e.Data[1])<<8 | uint32(e.Data[2])
}
