package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schollz/midicanvas/internal/insbank"
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/midiport"
	"github.com/schollz/midicanvas/internal/module"
)

func testGSBank() *insbank.Bank {
	b := &insbank.Bank{ModuleType: module.TypeGS}
	for lsb, mod := range []uint8{module.ModelSC55, module.ModelSC88, module.ModelSC88Pro, module.ModelSC8850} {
		b.Prg[0x00] = append(b.Prg[0x00], insbank.Instrument{BankLSB: uint8(lsb + 1), ModuleID: mod, Name: "Piano 1"})
		b.Prg[0x80] = append(b.Prg[0x80], insbank.Instrument{BankLSB: uint8(lsb + 1), ModuleID: mod, Name: "STANDARD"})
	}
	// MT-32 compatibility map of the Sound Canvas
	b.Prg[0x00] = append(b.Prg[0x00], insbank.Instrument{BankMSB: 0x7F, BankLSB: 0x01, ModuleID: module.ModelSC55, Name: "Acou Piano 1"})
	b.Prg[0xFF] = append(b.Prg[0xFF], insbank.Instrument{BankLSB: 0x01, Program: 0x7F, ModuleID: module.ModelSC55, Name: "MT-32"})
	b.MaxBankMSB = 0x7F
	b.MaxBankLSB = 4
	b.MaxDrumKit = 0x7F
	return b
}

type testRig struct {
	p    *Player
	out  *midiport.Capture
	time time.Duration
}

func newTestRig(t *testing.T, opts Options, f *midifile.File) *testRig {
	t.Helper()
	rig := &testRig{p: NewPlayer(), out: &midiport.Capture{}}
	rig.p.now = func() time.Duration { return rig.time }
	rig.p.SetInstrumentBank(module.SC55, testGSBank())
	rig.p.SetOutputPorts([]midiport.Sink{rig.out})
	rig.p.SetOptions(opts)
	rig.p.SetFile(f)
	return rig
}

func (r *testRig) startAndDrain(t *testing.T) {
	t.Helper()
	assert.NoError(t, r.p.Start())
	r.out.Drain()
}

// playAll advances the clock far enough to dispatch every event.
func (r *testRig) playAll() {
	r.time += time.Hour
	r.p.DoPlaybackStep()
}

func fileOf(events ...midifile.Event) *midifile.File {
	trk := &midifile.Track{Events: events}
	if n := len(events); n > 0 {
		trk.TickCount = events[n-1].Tick
	}
	return &midifile.File{Format: 1, Resolution: 480, Tracks: []*midifile.Track{trk}}
}

func cc(chn, ctrl, val uint8) midifile.Event {
	return midifile.Event{Type: 0xB0 | chn, ValA: ctrl, ValB: val}
}

func pcEvt(chn, prog uint8) midifile.Event {
	return midifile.Event{Type: 0xC0 | chn, ValA: prog}
}

func noteOn(chn, note, vel uint8) midifile.Event {
	return midifile.Event{Type: 0x90 | chn, ValA: note, ValB: vel}
}

func at(tick uint32, evt midifile.Event) midifile.Event {
	evt.Tick = tick
	return evt
}

func TestStartErrors(t *testing.T) {
	t.Run("no output ports", func(t *testing.T) {
		p := NewPlayer()
		p.SetFile(fileOf(noteOn(0, 60, 100)))
		err := p.Start()
		assert.ErrorIs(t, err, ErrNoOutPorts)
		assert.Equal(t, uint8(0xF1), err.(StartError).Code())
	})

	t.Run("no tracks", func(t *testing.T) {
		p := NewPlayer()
		p.SetOutputPorts([]midiport.Sink{&midiport.Capture{}})
		p.SetFile(&midifile.File{Format: 1, Resolution: 480})
		assert.ErrorIs(t, p.Start(), ErrNoTracks)
	})
}

func TestGMFileOnSC88Strict(t *testing.T) {
	// GM source on an SC-88 in strict mode: the bank select is patched
	// to the SC-88 map, the redundant Bank MSB is dropped
	f := fileOf(cc(0, 0x00, 0), cc(0, 0x20, 0), pcEvt(0, 0), noteOn(0, 0x3C, 0x40))
	rig := newTestRig(t, Options{
		SrcType: module.GM1,
		DstType: module.SC88,
		Flags:   OptReset | OptStrict | OptEnableCTF,
	}, f)
	assert.NoError(t, rig.p.Start())

	resetMsgs := rig.out.Drain()
	assert.Equal(t, resetSC, resetMsgs[0])

	rig.playAll()
	assert.Equal(t, [][]byte{
		{0xB0, 0x20, 0x02}, // Bank LSB patched to the SC-88 map
		{0xC0, 0x00},
		{0x90, 0x3C, 0x40},
	}, rig.out.Drain())
}

func TestMT32SourceOnSC55(t *testing.T) {
	// MT-32 instruments map to Bank MSB 0x7F / LSB 0x01 on the SC-55
	f := fileOf(pcEvt(0, 0), noteOn(0, 0x30, 0x60))
	rig := newTestRig(t, Options{
		SrcType: module.MT32,
		DstType: module.SC55,
		Flags:   OptEnableCTF,
	}, f)
	rig.startAndDrain(t)

	rig.playAll()
	assert.Equal(t, [][]byte{
		{0xB0, 0x00, 0x7F},
		{0xB0, 0x20, 0x01},
		{0xC0, 0x00},
		{0x90, 0x30, 0x60},
	}, rig.out.Drain())
}

func TestRedundantBankSelectSuppressed(t *testing.T) {
	f := fileOf(cc(0, 0x00, 0x28), cc(0, 0x00, 0x28), cc(0, 0x20, 0x00))
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.GM1}, f)
	rig.startAndDrain(t)

	rig.playAll()
	assert.Equal(t, [][]byte{{0xB0, 0x00, 0x28}}, rig.out.Drain())
}

func TestDuplicateProgramChange(t *testing.T) {
	f := fileOf(pcEvt(0, 5), pcEvt(0, 5))
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.GM1}, f)
	rig.startAndDrain(t)

	rig.playAll()
	assert.Equal(t, [][]byte{{0xC0, 0x05}}, rig.out.Drain())
}

func TestPauseResume(t *testing.T) {
	f := fileOf(noteOn(0, 60, 100), noteOn(9, 36, 100))
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.GM1}, f)
	rig.startAndDrain(t)
	rig.playAll()
	rig.out.Drain()

	t.Run("pause releases all notes", func(t *testing.T) {
		assert.NoError(t, rig.p.Pause())
		msgs := rig.out.Drain()
		assert.Contains(t, msgs, []byte{0x90, 60, 0x00})
		assert.Contains(t, msgs, []byte{0x99, 36, 0x00})
	})

	t.Run("resume restarts melody notes only", func(t *testing.T) {
		assert.NoError(t, rig.p.Resume())
		msgs := rig.out.Drain()
		assert.Contains(t, msgs, []byte{0x90, 60, 100})
		assert.NotContains(t, msgs, []byte{0x99, 36, 100})
	})

	t.Run("running notes survive the round trip", func(t *testing.T) {
		chn := rig.p.ChannelStates()[0]
		assert.Len(t, chn.Notes, 1)
		assert.Equal(t, uint8(60), chn.Notes[0].Note)
	})
}

func TestLoopMarkers(t *testing.T) {
	marker := func(tick uint32, text string) midifile.Event {
		return midifile.Event{Tick: tick, Type: 0xFF, ValA: midifile.MetaMarker, Data: []byte(text)}
	}
	f := fileOf(
		marker(100, "loopStart"),
		at(200, noteOn(0, 64, 100)),
		at(300, noteOn(0, 64, 0)),
		marker(500, "loopEnd"),
	)
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.GM1}, f)
	rig.p.NumLoops = 2
	rig.startAndDrain(t)

	for rig.p.Playing() {
		rig.playAll()
	}
	var noteOns int
	for _, msg := range rig.out.Drain() {
		if msg[0] == 0x90 && msg[1] == 64 && msg[2] == 100 {
			noteOns++
		}
	}
	assert.Equal(t, 2, noteOns)
}

func TestNoteOverflow(t *testing.T) {
	events := make([]midifile.Event, 0, 200)
	for i := 0; i < 200; i++ {
		events = append(events, noteOn(9, uint8(i%0x80), 100))
	}
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.GM1}, fileOf(events...))
	rig.startAndDrain(t)
	rig.playAll()

	notes := rig.p.ChannelStates()[9].Notes
	assert.LessOrEqual(t, len(notes), 0x80)
}

func TestRolandChecksum(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.True(t, checkRolandChecksum([]byte{0x40, 0x00, 0x7F, 0x00, 0x41}))
	})
	t.Run("invalid", func(t *testing.T) {
		assert.False(t, checkRolandChecksum([]byte{0x40, 0x00, 0x7F, 0x00, 0x40}))
	})
	t.Run("no checksum after bare address", func(t *testing.T) {
		assert.True(t, checkRolandChecksum([]byte{0x40, 0x00, 0x7F}))
	})

	t.Run("message with bad checksum is still forwarded", func(t *testing.T) {
		badReset := midifile.Event{Type: 0xF0, Data: []byte{0x41, 0x10, 0x42, 0x12, 0x40, 0x00, 0x7F, 0x00, 0x40, 0xF7}}
		f := fileOf(badReset, noteOn(0, 60, 100))
		rig := newTestRig(t, Options{SrcType: module.SC55, DstType: module.SC55, Flags: OptReset}, f)
		rig.startAndDrain(t)
		rig.playAll()
		msgs := rig.out.Drain()
		assert.Contains(t, msgs, append([]byte{0xF0}, badReset.Data...))
	})
}

func TestSC8850CCRemap(t *testing.T) {
	// reprogramming CC1 is broken on the SC-8820/8850: the SysEx is
	// suppressed and the controller is remapped to CC#16 in software
	reprog := midifile.Event{Type: 0xF0, Data: []byte{0x41, 0x10, 0x42, 0x12, 0x40, 0x11, 0x1F, 0x21, 0x6F, 0xF7}}
	f := fileOf(reprog, cc(0, 0x21, 0x50))
	rig := newTestRig(t, Options{SrcType: module.SC88Pro, DstType: module.SC8850}, f)
	rig.startAndDrain(t)
	rig.playAll()

	msgs := rig.out.Drain()
	assert.Contains(t, msgs, []byte{0xB0, 0x10, 0x50})
	for _, msg := range msgs {
		assert.NotEqual(t, byte(0xF0), msg[0], "reprogram SysEx must be suppressed")
	}
}

func TestInitialDelayGate(t *testing.T) {
	f := fileOf(noteOn(0, 60, 100))
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.SC55, Flags: OptReset}, f)
	rig.startAndDrain(t)

	t.Run("no events before the reset settled", func(t *testing.T) {
		rig.time += 100 * time.Millisecond
		rig.p.DoPlaybackStep()
		assert.Empty(t, rig.out.Drain())
	})

	t.Run("events flow after the delay", func(t *testing.T) {
		rig.time += 200 * time.Millisecond
		rig.p.DoPlaybackStep()
		assert.Equal(t, [][]byte{{0x90, 60, 100}}, rig.out.Drain())
	})
}

func TestSongLength(t *testing.T) {
	t.Run("default tempo", func(t *testing.T) {
		f := fileOf(at(960, noteOn(0, 60, 0)))
		f.Tracks[0].TickCount = 960
		rig := newTestRig(t, Options{}, f)
		// 960 ticks at 480 ticks/quarter and 120 BPM = 1 second
		assert.InDelta(t, 1.0, rig.p.SongLength(), 0.01)
	})

	t.Run("synthetic tempo entry at tick zero", func(t *testing.T) {
		rig := newTestRig(t, Options{}, fileOf(noteOn(0, 60, 100)))
		assert.Equal(t, uint32(0), rig.p.tempoList[0].tick)
		assert.Equal(t, uint32(500000), rig.p.tempoList[0].tempo)
	})
}

func TestXGDestinationReset(t *testing.T) {
	f := fileOf(noteOn(0, 60, 100))
	rig := newTestRig(t, Options{SrcType: module.GM1, DstType: module.MU100, Flags: OptReset | OptStrict}, f)
	assert.NoError(t, rig.p.Start())
	msgs := rig.out.Drain()
	assert.Equal(t, resetGM1, msgs[0])
	assert.Equal(t, resetXG, msgs[1])
	assert.Equal(t, resetXGParam, msgs[2])
	// MU100 destination with a non-XG source selects the MU basic map
	assert.Equal(t, []byte{0xF0, 0x43, 0x10, 0x49, 0x00, 0x00, 0x12, 0x00, 0xF7}, msgs[3])
}
