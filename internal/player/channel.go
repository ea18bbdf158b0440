package player

import (
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/module"
)

// initializeChannels rewinds all per-channel state to device defaults.
// Reset SysEx messages re-run this without destroying the containers.
func (p *Player) initializeChannels() {
	if p.options.SrcType == module.MT32 {
		p.defPbRange = 12
	} else {
		p.defPbRange = 2
	}
	for i := range p.chnStates {
		chnSt := &p.chnStates[i]
		chnSt.MidChn = uint8(i & 0x0F)
		chnSt.PortID = uint8(i >> 4)
		chnSt.Flags = 0x00
		chnSt.InsOrg = InstrumentInfo{}
		chnSt.InsSend = InstrumentInfo{Bank: [2]uint8{0xFF, 0xFF}, Ins: 0xFF}
		// a reset leaves the device with bank 0, program 0 on every channel
		chnSt.InsState = [3]uint8{0x00, 0x00, 0x00}
		chnSt.CurIns = 0xFF
		chnSt.UserInsID = userInsNone
		chnSt.Ctrls = [0x80]uint8{}
		chnSt.Ctrls[0x07] = 100  // Volume
		chnSt.Ctrls[0x0A] = 0x40 // Pan
		chnSt.Ctrls[0x0B] = 127  // Expression
		chnSt.Ctrls[0x5B] = 40   // Reverb Send
		chnSt.IdCC = [2]uint8{0xFF, 0xFF}

		chnSt.RpnCtrl = [2]uint8{0x7F, 0x7F}
		chnSt.PbRange = p.defPbRange
		chnSt.TuneCoarse = 0
		chnSt.TuneFine = 0

		chnSt.Notes = chnSt.Notes[:0]

		if p.observer != nil {
			p.observer.OnChannelReset(uint16(i))
		}
	}
	for i := 0; i < len(p.chnStates); i += 0x10 {
		drumChn := &p.chnStates[i|0x09]
		drumChn.Flags |= 0x80
		if p.options.DstType.Family() == module.TypeXG {
			drumChn.Ctrls[0x00] = 0x7F
		}
	}
	p.noteVis.Reset()
	for i := range p.chnStates {
		chnSt := &p.chnStates[i]
		nvChn := p.noteVis.Channel(uint16(i))
		nvChn.ChnMode |= (chnSt.Flags & 0x80) >> 7
		nvChn.Attr.Volume = chnSt.Ctrls[0x07]
		nvChn.Attr.Pan = int8(chnSt.Ctrls[0x0A]) - 0x40
		nvChn.Attr.Expression = chnSt.Ctrls[0x0B]
		nvChn.PbRange = chnSt.PbRange
	}
	p.initChnPost = true
}

// initializeChannelsPost presets the drum channels and pitch-bend ranges
// on the device after a reset settled (strict mode only).
func (p *Player) initializeChannelsPost() {
	p.initChnPost = false
	defDstPbRange := uint8(2)
	if p.options.DstType == module.MT32 {
		defDstPbRange = 12
	}
	for i := 0; i < len(p.chnStates); i += 0x10 {
		drumChn := &p.chnStates[i|0x09]

		if p.options.Flags&OptStrict == 0 {
			continue
		}
		if p.options.DstType.Family() != module.TypeGS {
			continue
		}
		drumChn.InsState[0] = 0x00 // Bank MSB 0
		if p.options.SrcType.Family() == module.TypeGS && p.options.SrcType.Model() < module.ModUnknown {
			drumChn.InsState[1] = 0x01 + p.options.SrcType.Model()
		} else if p.options.DstType == module.SC8850 {
			drumChn.InsState[1] = 0x01 + module.ModelSC88Pro
		} else {
			drumChn.InsState[1] = 0x01 + p.options.DstType.Model()
		}
		drumChn.InsState[2] = 0x00 // Standard Kit 1

		if p.options.SrcType == module.MT32 {
			drumChn.InsState[1] = 0x01 // SC-55 map
			drumChn.InsState[2] = 0x7F // MT-32 drum kit
		}

		p.sendShort(drumChn.PortID, 0xB0|drumChn.MidChn, 0x00, drumChn.InsState[0])
		p.sendShort(drumChn.PortID, 0xB0|drumChn.MidChn, 0x20, drumChn.InsState[1])
		p.sendShort(drumChn.PortID, 0xC0|drumChn.MidChn, drumChn.InsState[2], 0x00)
	}

	for i := range p.chnStates {
		chnSt := &p.chnStates[i]
		if p.options.Flags&OptStrict == 0 {
			continue
		}
		if chnSt.PbRange != defDstPbRange {
			// set initial Pitch Bend Range, then reset the RPN selection
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x65, 0x00)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x64, 0x00)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x06, chnSt.PbRange)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x65, 0x7F)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x64, 0x7F)
		}
	}
}

// allNotesStop sends Note Off for every running note and releases held
// pedals.
func (p *Player) allNotesStop() {
	for i := range p.chnStates {
		chnSt := &p.chnStates[i]
		for _, note := range chnSt.Notes {
			p.sendShort(chnSt.PortID, 0x90|note.Chn, note.Note, 0x00)
		}
		if chnSt.Ctrls[0x40]&0x40 != 0 { // Sustain off
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x40, 0x00)
		}
		if chnSt.Ctrls[0x42]&0x40 != 0 { // Sostenuto off
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x42, 0x00)
		}
	}
}

// allNotesRestart restores pedals and replays running notes. Drum
// channels are skipped: re-striking drums on resume sounds wrong.
func (p *Player) allNotesRestart() {
	for i := range p.chnStates {
		chnSt := &p.chnStates[i]
		if chnSt.Ctrls[0x40]&0x40 != 0 {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x40, chnSt.Ctrls[0x40])
		}
		if chnSt.Ctrls[0x42]&0x40 != 0 {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x42, chnSt.Ctrls[0x42])
		}
		if chnSt.Flags&0x80 != 0 {
			continue
		}
		for _, note := range chnSt.Notes {
			p.sendShort(chnSt.PortID, 0x90|note.Chn, note.Note, note.Vel)
		}
	}
}

// allInsRefresh re-resolves every channel's instrument, e.g. after a
// mid-song source-type change.
func (p *Player) allInsRefresh() {
	for i := range p.chnStates {
		chnSt := &p.chnStates[i]
		if chnSt.CurIns == 0xFF {
			continue
		}
		insEvt := midifile.Event{Type: 0xC0 | chnSt.MidChn, ValA: chnSt.CurIns}
		p.handleInstrumentEvent(chnSt, &insEvt, noactNoLog)
	}
}

// allChannelRefresh re-sends the full controller, instrument and RPN
// state of every channel, e.g. after a mid-song destination change.
func (p *Player) allChannelRefresh() {
	defDstPbRange := uint8(2)
	if p.options.DstType == module.MT32 {
		defDstPbRange = 12
	}
	p.initializeChannelsPost()
	for i := range p.chnStates {
		chnSt := &p.chnStates[i]

		if chnSt.CurIns != 0xFF {
			insEvt := midifile.Event{Type: 0xC0 | chnSt.MidChn, ValA: chnSt.CurIns}
			if chnSt.Ctrls[0x00] != 0xFF {
				p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x00, chnSt.Ctrls[0x00])
			}
			if chnSt.Ctrls[0x20] != 0xFF {
				p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x20, chnSt.Ctrls[0x20])
			}
			p.handleInstrumentEvent(chnSt, &insEvt, noactNoLog)
		}
		// Main Volume and Pan may be patched, run them through the handler
		volEvt := midifile.Event{Type: 0xB0 | chnSt.MidChn, ValA: 0x07, ValB: chnSt.Ctrls[0x07]}
		p.handleControlEvent(chnSt, nil, &volEvt)
		panEvt := midifile.Event{Type: 0xB0 | chnSt.MidChn, ValA: 0x0A, ValB: chnSt.Ctrls[0x0A]}
		p.handleControlEvent(chnSt, nil, &panEvt)

		// send MSB + LSB controller pairs, skipping the separately handled ones
		for ctrl := uint8(0x01); ctrl < 0x20; ctrl++ {
			if ctrl == 0x06 || ctrl == 0x07 || ctrl == 0x0A {
				continue
			}
			if chnSt.Ctrls[0x00|ctrl] != 0x00 {
				p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x00|ctrl, chnSt.Ctrls[0x00|ctrl])
			}
			if chnSt.Ctrls[0x20|ctrl] != 0x00 {
				p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x20|ctrl, chnSt.Ctrls[0x20|ctrl])
			}
		}
		for ctrl := uint8(0x40); ctrl < 0x60; ctrl++ {
			if chnSt.Ctrls[ctrl] != 0x00 {
				p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, ctrl, chnSt.Ctrls[ctrl])
			}
		}
		// Channel Mode messages are left out

		// restore RPNs
		if chnSt.PbRange != defDstPbRange {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x65, 0x00)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x64, 0x00)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x06, chnSt.PbRange)
		}
		if chnSt.TuneCoarse != 0 {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x65, 0x00)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x64, 0x02)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x06, uint8(0x40+int16(chnSt.TuneCoarse)))
		}
		if chnSt.TuneFine != 0 {
			valM := uint8(0x40 + (chnSt.TuneFine >> 8))
			valL := uint8((chnSt.TuneFine >> 1) & 0x7F)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x65, 0x00)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x64, 0x01)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x06, valM)
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x26, valL)
		}
		// leave the RPN selector in the originally staged state
		if chnSt.RpnCtrl[0]&0x80 != 0 {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x63, chnSt.RpnCtrl[0]&0x7F)
		} else {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x65, chnSt.RpnCtrl[0])
		}
		if chnSt.RpnCtrl[1]&0x80 != 0 {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x64, chnSt.RpnCtrl[1]&0x7F)
		} else {
			p.sendShort(chnSt.PortID, 0xB0|chnSt.MidChn, 0x62, chnSt.RpnCtrl[1])
		}
	}
}
