package player

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/midiport"
)

func tempoEvt(tick, micros uint32) midifile.Event {
	return midifile.Event{
		Tick: tick,
		Type: 0xFF,
		ValA: midifile.MetaTempo,
		Data: []byte{byte(micros >> 16), byte(micros >> 8), byte(micros)},
	}
}

func TestTempoMapMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("wall-clock time is monotonic over ticks", prop.ForAll(
		func(ticks []uint32, tempos []uint32) bool {
			events := make([]midifile.Event, 0, len(ticks))
			for i, tick := range ticks {
				micros := uint32(1)
				if len(tempos) > 0 {
					micros = 1 + tempos[i%len(tempos)]%0xFFFFFE
				}
				events = append(events, tempoEvt(tick, micros))
			}
			f := &midifile.File{Format: 1, Resolution: 480, Tracks: []*midifile.Track{
				{Events: events, TickCount: 200000},
			}}

			p := NewPlayer()
			p.SetOutputPorts([]midiport.Sink{&midiport.Capture{}})
			p.SetFile(f)

			if len(p.tempoList) == 0 || p.tempoList[0].tick != 0 {
				return false
			}
			for i := 1; i < len(p.tempoList); i++ {
				if p.tempoList[i].tick < p.tempoList[i-1].tick {
					return false
				}
				if p.tempoList[i].tmrTick < p.tempoList[i-1].tmrTick {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32Range(0, 100000)),
		gen.SliceOf(gen.UInt32Range(0, 0xFFFFFF)),
	))

	properties.TestingRun(t)
}

func TestTempoChangesAffectLength(t *testing.T) {
	// 480 ticks at 120 BPM then 480 ticks at 60 BPM = 0.5s + 1.0s
	f := &midifile.File{Format: 1, Resolution: 480, Tracks: []*midifile.Track{
		{Events: []midifile.Event{tempoEvt(0, 500000), tempoEvt(480, 1000000)}, TickCount: 960},
	}}
	p := NewPlayer()
	p.SetOutputPorts([]midiport.Sink{&midiport.Capture{}})
	p.SetFile(f)
	assert.InDelta(t, 1.5, p.SongLength(), 0.01)
}
