// Package player is the playback engine. It walks a parsed MIDI file in
// real time, keeps 16-channels-per-port state, rewrites outgoing messages
// for the selected destination device (instrument remapping, capital tone
// fallback, drum-mode coercion) and dispatches the result to the output
// sinks.
package player

import (
	"fmt"
	"time"

	"github.com/schollz/midicanvas/internal/insbank"
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/midiport"
	"github.com/schollz/midicanvas/internal/module"
	"github.com/schollz/midicanvas/internal/notevis"
)

// Playback option flags.
const (
	OptReset     = 0x01 // send a GM/GS/XG reset on start
	OptStrict    = 0x02 // enforce instrument maps and device defaults
	OptEnableCTF = 0x04 // enable Capital Tone Fallback emulation
)

// Options selects the source and destination device types.
type Options struct {
	SrcType module.Type
	DstType module.Type
	Flags   uint8
}

// StartError is the byte-coded startup failure.
type StartError uint8

const (
	ErrNoTracks   StartError = 0xF0
	ErrNoOutPorts StartError = 0xF1
	ErrNoChnState StartError = 0xF2
)

func (e StartError) Error() string {
	switch e {
	case ErrNoTracks:
		return "MIDI file has no tracks"
	case ErrNoOutPorts:
		return "no output ports configured"
	case ErrNoChnState:
		return "channel state not initialized"
	default:
		return fmt.Sprintf("start error 0x%02X", uint8(e))
	}
}

// Code returns the raw error byte.
func (e StartError) Code() uint8 { return uint8(e) }

// Observer receives engine-side notifications. All callbacks run on the
// playback goroutine; implementations must not block.
type Observer interface {
	OnInstrumentChange(chnID uint16, ins *insbank.Instrument)
	OnMeta(trkID uint16, metaType uint8, data []byte)
	OnChannelReset(chnID uint16)
}

const tickFPShift = 8

// NoteInfo is one running note.
type NoteInfo struct {
	Chn    uint8
	Note   uint8
	Vel    uint8
	SrcTrk uint16 // track that started the note
}

// InstrumentInfo is a resolved bank/program selection.
type InstrumentInfo struct {
	Bank    [2]uint8 // 0 = Bank MSB, 1 = Bank LSB (current/patched state)
	Ins     uint8    // 00..7F melody, 80..FF drum kits
	BnkIgn  uint8    // bank ignore mask for catalog lookups
	BankPtr *insbank.Instrument
}

const userInsNone = 0xFFFF

// ChannelState is the per-channel playback state.
type ChannelState struct {
	MidChn uint8
	PortID uint8
	Flags  uint8 // bit 7: drum channel

	InsOrg   InstrumentInfo // what the MIDI file requested
	InsSend  InstrumentInfo // what is actually transmitted
	InsState [3]uint8       // MSB, LSB, instrument last sent to the device
	CurIns   uint8          // instrument set by the MIDI file

	UserInsID uint16 // userInsNone = not a user instrument
	Ctrls     [0x80]uint8
	IdCC      [2]uint8 // CC1/CC2 remapping for the SC-8850 workaround

	RpnCtrl    [2]uint8 // MSB, LSB; 00..7F = RPN, 80..FF = NRPN
	PbRange    uint8
	TuneCoarse int8
	TuneFine   int16 // 8.8 fixed point

	Notes []NoteInfo
}

type trackState struct {
	trkID  uint16
	portID uint8
	events []midifile.Event
	pos    int
}

type tempoChg struct {
	tick    uint32
	tempo   uint32
	tmrTick uint64
}

type loopPoint struct {
	used      bool
	tick      uint32
	trkEvtPos []int
}

// Player is the playback engine. Drive it by calling DoPlaybackStep in a
// tight loop; the engine never blocks.
type Player struct {
	playing bool
	paused  bool

	cMidi      *midifile.File
	songLength uint64
	tempoList  []tempoChg

	insBankGM1  *insbank.Bank
	insBankGM2  *insbank.Bank
	insBankGS   *insbank.Bank
	insBankXG   *insbank.Bank
	insBankYGS  *insbank.Bank // Yamaha GS (TG300B mode)
	insBankMT32 *insbank.Bank

	options Options

	portMap  []int
	outPorts []midiport.Sink

	now        func() time.Duration
	tmrFreq    uint64 // virtual timer ticks per second
	tmrStep    uint64
	tmrMinStart uint64

	defPbRange uint8
	trkStates  []trackState
	chnStates  []ChannelState

	noteVis  notevis.State
	loopPt   loopPoint
	curLoop  uint32
	NumLoops uint32 // 0 = loop forever when loop markers exist

	breakMidiProc bool
	initChnPost   bool
	midiTempo     uint32
	nextEvtTick   uint32
	curTickTime   uint64 // timer ticks per MIDI tick at the current tempo

	observer Observer

	// ShowInstruments logs every instrument patch decision.
	ShowInstruments bool
}

// NewPlayer creates an idle engine.
func NewPlayer() *Player {
	epoch := time.Now()
	return &Player{
		now:     func() time.Duration { return time.Since(epoch) },
		tmrFreq: uint64(time.Second) << tickFPShift,
	}
}

// SetFile attaches a parsed MIDI file and precomputes the tempo map.
func (p *Player) SetFile(f *midifile.File) {
	p.songLength = 0
	p.tempoList = nil
	p.cMidi = f
	p.prepareMidi()
}

// SetOutputPorts attaches the output sinks, allocating 16 channels of
// state per port.
func (p *Player) SetOutputPorts(outPorts []midiport.Sink) {
	p.outPorts = outPorts
	p.chnStates = make([]ChannelState, len(outPorts)*0x10)
	if p.noteVis.ChnGroupCount() != len(outPorts) {
		p.noteVis.Lock()
		p.noteVis.Initialize(len(outPorts))
		p.noteVis.Unlock()
	}
}

// SetPortMap sets the MIDI-file-port to output-sink mapping.
func (p *Player) SetPortMap(portMap []int) {
	p.portMap = portMap
}

// SetOptions selects source/destination types and behavior flags.
func (p *Player) SetOptions(opts Options) {
	p.options = opts
}

// GetOptions returns the current options.
func (p *Player) GetOptions() Options {
	return p.options
}

// SetObserver attaches an event observer.
func (p *Player) SetObserver(obs Observer) {
	p.observer = obs
}

// SetSrcModuleType changes the source device mid-song, optionally
// re-resolving every channel's instrument.
func (p *Player) SetSrcModuleType(modType module.Type, insRefresh bool) {
	p.options.SrcType = modType
	if insRefresh {
		p.noteVis.Lock()
		defer p.noteVis.Unlock()
		p.allInsRefresh()
	}
}

// SetDstModuleType changes the destination device mid-song, optionally
// re-sending the full channel state.
func (p *Player) SetDstModuleType(modType module.Type, chnRefresh bool) {
	p.options.DstType = modType
	if chnRefresh {
		p.noteVis.Lock()
		defer p.noteVis.Unlock()
		p.allChannelRefresh()
	}
}

// GetModuleType returns the destination module used for playback.
func (p *Player) GetModuleType() module.Type {
	return p.options.DstType
}

// SetInstrumentBank registers an instrument catalog for a module type.
func (p *Player) SetInstrumentBank(modType module.Type, bank *insbank.Bank) {
	switch modType {
	case module.GM1:
		p.insBankGM1 = bank
	case module.GM2:
		p.insBankGM2 = bank
	case module.TG300B:
		p.insBankYGS = bank
	case module.MT32:
		p.insBankMT32 = bank
	default:
		switch modType.Family() {
		case module.TypeGS:
			p.insBankGS = bank
		case module.TypeXG:
			p.insBankXG = bank
		}
	}
}

// selectInsMap picks the instrument catalog for a module type, with the
// fallback chain the hardware families imply. The second result is the
// model ID to use as the lookup ceiling.
func (p *Player) selectInsMap(modType module.Type) (*insbank.Bank, uint8) {
	mapModule := modType.Model()
	switch modType {
	case module.GM1:
		if p.insBankGM1 != nil {
			return p.insBankGM1, mapModule
		}
		if p.insBankGM2 != nil {
			return p.insBankGM2, mapModule
		}
		return p.insBankGS, mapModule
	case module.GM2:
		if p.insBankGM2 != nil {
			return p.insBankGM2, mapModule
		}
		bank, _ := p.selectInsMap(module.GM1)
		return bank, mapModule
	case module.TG300B:
		if p.insBankYGS != nil {
			return p.insBankYGS, 0x00
		}
		// the TG300B instrument map is very similar to the SC-88 one
		bank, _ := p.selectInsMap(module.SC88)
		return bank, module.ModelSC88
	case module.MT32:
		return p.insBankMT32, 0x00
	}
	switch modType.Family() {
	case module.TypeGS:
		return p.insBankGS, mapModule
	case module.TypeXG:
		return p.insBankXG, mapModule
	}
	return nil, mapModule
}

// NoteVis exposes the visualization state. UIs on other goroutines must
// only use its Snapshot accessor.
func (p *Player) NoteVis() *notevis.State {
	return &p.noteVis
}

// ChannelStates returns the live channel state for inspection.
func (p *Player) ChannelStates() []ChannelState {
	return p.chnStates
}

// State reports playback status: bit 0 playing, bit 1 paused.
func (p *Player) State() uint8 {
	state := uint8(0)
	if p.playing {
		state |= 0x01
	}
	if p.paused {
		state |= 0x02
	}
	return state
}

// SongLength returns the song length in seconds.
func (p *Player) SongLength() float64 {
	return float64(p.songLength) / float64(p.tmrFreq)
}

// PlaybackPos returns the current position in seconds.
func (p *Player) PlaybackPos() float64 {
	if len(p.tempoList) == 0 {
		return 0
	}
	curTime := uint64(p.now()) << tickFPShift
	idx := 0
	for idx < len(p.tempoList) && p.tempoList[idx].tick <= p.nextEvtTick {
		idx++
	}
	if idx > 0 {
		idx--
	}
	tc := &p.tempoList[idx]
	tmrTick := tc.tmrTick + uint64(p.nextEvtTick-tc.tick)*p.curTickTime
	if curTime < p.tmrStep {
		if tmrTick <= p.tmrStep-curTime {
			return 0
		}
		tmrTick -= p.tmrStep - curTime
	}
	return float64(tmrTick) / float64(p.tmrFreq)
}

// Start begins playback: it rewinds all tracks, zeroes the channel state,
// sends the destination reset sequence and schedules the initial delay.
func (p *Player) Start() error {
	if len(p.outPorts) == 0 {
		return ErrNoOutPorts
	}
	if p.cMidi == nil || len(p.cMidi.Tracks) == 0 {
		return ErrNoTracks
	}
	if len(p.chnStates) == 0 {
		return ErrNoChnState
	}

	p.loopPt = loopPoint{}
	p.curLoop = 0

	p.trkStates = p.trkStates[:0]
	for i, trk := range p.cMidi.Tracks {
		p.trkStates = append(p.trkStates, trackState{
			trkID:  uint16(i),
			events: trk.Events,
		})
	}

	p.midiTempo = 500000
	p.refreshTickTime()

	p.nextEvtTick = 0
	p.tmrStep = 0
	p.tmrMinStart = uint64(p.now()) << tickFPShift

	p.noteVis.Lock()
	p.initializeChannels()
	p.noteVis.Unlock()
	initDelay := p.sendResetSequences()
	p.initializeChannelsPost()

	p.tmrMinStart += initDelay * p.tmrFreq / 1000
	p.playing = true
	p.paused = false
	return nil
}

// Stop releases every running note and transitions to idle.
func (p *Player) Stop() {
	p.allNotesStop()
	p.playing = false
	p.paused = false
}

// Pause releases running notes and pedals but keeps the note lists so
// Resume can restart them.
func (p *Player) Pause() error {
	if !p.playing {
		return fmt.Errorf("not playing")
	}
	if p.paused {
		return nil
	}
	p.allNotesStop()
	p.paused = true
	return nil
}

// Resume restores pedals and restarts running notes (except on drum
// channels), then resyncs the playback clock.
func (p *Player) Resume() error {
	if !p.playing {
		return fmt.Errorf("not playing")
	}
	if !p.paused {
		return nil
	}
	p.allNotesRestart()
	p.tmrStep = 0
	p.paused = false
	return nil
}

// Playing reports whether the song has not ended yet.
func (p *Player) Playing() bool { return p.playing }

// Paused reports the pause flag.
func (p *Player) Paused() bool { return p.paused }

func (p *Player) refreshTickTime() {
	tmrMul := p.tmrFreq * uint64(p.midiTempo)
	tmrDiv := uint64(1000000) * uint64(p.cMidi.Resolution)
	p.curTickTime = (tmrMul + tmrDiv/2) / tmrDiv
}

func (p *Player) sinkFor(portID uint8) midiport.Sink {
	if int(portID) >= len(p.outPorts) {
		return p.outPorts[0]
	}
	return p.outPorts[portID]
}

func (p *Player) sendShort(portID uint8, ev, d1, d2 uint8) {
	p.sinkFor(portID).SendShort(ev, d1, d2)
}

func (p *Player) sendLong(portID uint8, data []byte) {
	p.sinkFor(portID).SendLong(data)
}

// DoPlaybackStep advances playback according to the wall clock. Call it
// at a rate of 1 kHz or better.
func (p *Player) DoPlaybackStep() {
	if p.paused {
		return
	}

	curTime := uint64(p.now()) << tickFPShift
	if p.tmrStep == 0 && curTime < p.tmrMinStart {
		p.tmrStep = p.tmrMinStart // initial delay after starting the song
	}
	if curTime < p.tmrStep {
		return
	}

	p.noteVis.Lock()
	defer p.noteVis.Unlock()
	for p.playing {
		minTStamp := ^uint32(0)
		for i := range p.trkStates {
			mTS := &p.trkStates[i]
			if mTS.pos >= len(mTS.events) {
				continue
			}
			if minTStamp > mTS.events[mTS.pos].Tick {
				minTStamp = mTS.events[mTS.pos].Tick
			}
		}
		if minTStamp == ^uint32(0) {
			if p.loopPt.used && p.loopPt.tick < p.nextEvtTick {
				p.curLoop++
				if p.NumLoops == 0 || p.curLoop < p.NumLoops {
					p.restoreLoopState()
					continue
				}
			}
			p.playing = false
			break
		}

		if minTStamp > p.nextEvtTick {
			p.tmrStep += uint64(minTStamp-p.nextEvtTick) * p.curTickTime
			p.nextEvtTick = minTStamp
		}

		if p.tmrStep > curTime {
			break
		}
		if p.tmrStep+p.tmrFreq < curTime {
			p.tmrStep = curTime // resync when lagging behind >= 1 second
		}

		p.breakMidiProc = false
		for i := range p.trkStates {
			mTS := &p.trkStates[i]
			for mTS.pos < len(mTS.events) && mTS.events[mTS.pos].Tick <= p.nextEvtTick {
				p.doEvent(mTS, &mTS.events[mTS.pos])
				if p.breakMidiProc || mTS.pos >= len(mTS.events) {
					break
				}
				mTS.pos++
			}
			if p.breakMidiProc {
				break
			}
		}
	}
}

func (p *Player) doEvent(trkState *trackState, evt *midifile.Event) {
	if evt.Type < 0xF0 {
		evtType := evt.Type & 0xF0
		evtChn := evt.Type & 0x0F
		chnID := uint16(trkState.portID)<<4 | uint16(evtChn)
		if int(chnID) >= len(p.chnStates) {
			return
		}
		chnSt := &p.chnStates[chnID]
		didEvt := false

		switch evtType {
		case 0x80, 0x90:
			didEvt = p.handleNoteEvent(chnSt, trkState, evt)
		case 0xB0:
			didEvt = p.handleControlEvent(chnSt, trkState, evt)
		case 0xC0:
			didEvt = p.handleInstrumentEvent(chnSt, evt, 0x00)
		case 0xE0:
			nvChn := p.noteVis.Channel(chnID)
			pbVal := (int32(evt.ValB)<<7 | int32(evt.ValA)) - 0x2000
			pbVal *= int32(nvChn.PbRange)
			nvChn.Attr.Detune[0] = int16(pbVal / 0x20) // 8.8 fixed point
		}
		if !didEvt {
			p.sendShort(trkState.portID, evt.Type, evt.ValA, evt.ValB)
		}
		return
	}

	switch evt.Type {
	case 0xF0: // SysEx
		if len(evt.Data) < 0x03 {
			break // ignore invalid/empty SysEx messages
		}
		if p.handleSysExMessage(trkState, evt) {
			break
		}
		msgData := make([]byte, 1+len(evt.Data))
		msgData[0] = evt.Type
		copy(msgData[1:], evt.Data)
		p.sendLong(trkState.portID, msgData)
		if p.initChnPost {
			p.initializeChannelsPost()
		}
	case 0xF7: // SysEx continuation
		msgData := make([]byte, 1+len(evt.Data))
		msgData[0] = evt.Type
		copy(msgData[1:], evt.Data)
		p.sendLong(trkState.portID, msgData)
	case 0xFF:
		p.doMetaEvent(trkState, evt)
	}
}

func (p *Player) doMetaEvent(trkState *trackState, evt *midifile.Event) {
	switch evt.ValA {
	case midifile.MetaMarker:
		text := string(evt.Data)
		if text == "loopStart" {
			p.saveLoopState(trkState)
		} else if text == "loopEnd" {
			if p.loopPt.used && p.loopPt.tick < p.nextEvtTick {
				p.curLoop++
				if p.NumLoops == 0 || p.curLoop < p.NumLoops {
					p.breakMidiProc = true
					p.restoreLoopState()
				}
			}
		}
	case midifile.MetaMidiPort:
		if len(evt.Data) >= 1 {
			portID := int(evt.Data[0])
			// apply MIDI port -> output port mapping when one is defined
			if len(p.portMap) > 0 {
				if portID < len(p.portMap) {
					portID = p.portMap[portID]
				} else {
					portID = 0
				}
			}
			// for invalid port IDs, default to the first one
			if portID >= len(p.outPorts) {
				portID = 0
			}
			trkState.portID = uint8(portID)
		}
	case midifile.MetaEndOfTrack:
		trkState.pos = len(trkState.events)
	case midifile.MetaTempo:
		p.midiTempo = evt.TempoMicros()
		p.refreshTickTime()
	}
	if p.observer != nil {
		p.observer.OnMeta(trkState.trkID, evt.ValA, evt.Data)
	}
}
