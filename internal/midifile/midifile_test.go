package midifile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func buildTestSMF(t *testing.T) *smf.SMF {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, midi.ControlChange(0, 0, 0))
	tr.Add(0, midi.ProgramChange(0, 48))
	tr.Add(480, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Close(0)
	assert.NoError(t, s.Add(tr))
	return s
}

func TestFromSMF(t *testing.T) {
	f, err := FromSMF(buildTestSMF(t))
	assert.NoError(t, err)
	assert.Equal(t, uint16(480), f.Resolution)
	assert.Len(t, f.Tracks, 1)

	trk := f.Tracks[0]
	assert.NotEmpty(t, trk.Events)

	t.Run("absolute ticks", func(t *testing.T) {
		var noteOn *Event
		for i := range trk.Events {
			if trk.Events[i].Type&0xF0 == 0x90 {
				noteOn = &trk.Events[i]
				break
			}
		}
		assert.NotNil(t, noteOn)
		assert.Equal(t, uint32(480), noteOn.Tick)
		assert.Equal(t, uint8(60), noteOn.ValA)
		assert.Equal(t, uint8(100), noteOn.ValB)
	})

	t.Run("tempo meta decodes", func(t *testing.T) {
		var tempo *Event
		for i := range trk.Events {
			if trk.Events[i].Type == 0xFF && trk.Events[i].ValA == MetaTempo {
				tempo = &trk.Events[i]
				break
			}
		}
		assert.NotNil(t, tempo)
		assert.Equal(t, uint32(500000), tempo.TempoMicros())
	})

	t.Run("channel voice helpers", func(t *testing.T) {
		e := Event{Type: 0x9A}
		assert.True(t, e.IsChannelVoice())
		assert.Equal(t, uint8(0x0A), e.Channel())
		meta := Event{Type: 0xFF}
		assert.False(t, meta.IsChannelVoice())
	})
}
