package player

import (
	"log"

	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/module"
)

// handleNoteEvent tracks running notes for pause/resume and display. The
// raw bytes are always forwarded unchanged.
func (p *Player) handleNoteEvent(chnSt *ChannelState, trkSt *trackState, evt *midifile.Event) bool {
	evtType := evt.Type & 0xF0
	evtChn := evt.Type & 0x0F
	nvChn := p.noteVis.Channel(uint16(chnSt.PortID)<<4 | uint16(chnSt.MidChn))

	if evtType&0xE0 != 0x80 {
		return false // must be Note On or Note Off
	}

	if evtType&0x10 != 0 && evt.ValB > 0x00 {
		// Note On (90 xx 01..7F)
		chnSt.Notes = append(chnSt.Notes, NoteInfo{
			Chn:    evtChn,
			Note:   evt.ValA,
			Vel:    evt.ValB,
			SrcTrk: trkSt.trkID,
		})
		// keep the list bounded against buggy MIDIs
		if len(chnSt.Notes) >= 0x80 {
			chnSt.Notes = append(chnSt.Notes[:0], chnSt.Notes[0x80-0x20:]...)
		}
		nvChn.AddNote(evt.ValA, evt.ValB)
	} else {
		// Note Off (80 xx xx / 90 xx 00)
		for i := range chnSt.Notes {
			if chnSt.Notes[i].Chn == evtChn && chnSt.Notes[i].Note == evt.ValA {
				chnSt.Notes = append(chnSt.Notes[:i], chnSt.Notes[i+1:]...)
				break
			}
		}
		nvChn.RemoveNote(evt.ValA)
	}

	return false
}

// handleControlEvent records the controller value and executes its side
// effects. It returns true when the raw message must not be forwarded: a
// Bank MSB/LSB value that is already live on the device, or a pan value
// that was already re-sent in converted form.
func (p *Player) handleControlEvent(chnSt *ChannelState, trkSt *trackState, evt *midifile.Event) bool {
	nvChn := p.noteVis.Channel(uint16(chnSt.PortID)<<4 | uint16(chnSt.MidChn))
	ctrlID := evt.ValA

	// SC-8850 CC1/CC2 workaround: reprogrammed controllers are remapped
	// to CC#16/CC#17 in software
	if ctrlID == chnSt.IdCC[0] {
		ctrlID = 0x10
	} else if ctrlID == chnSt.IdCC[1] {
		ctrlID = 0x11
	}

	chnSt.Ctrls[ctrlID] = evt.ValB
	switch ctrlID {
	case 0x00: // Bank MSB
		if chnSt.InsState[0] == evt.ValB {
			return true // already live on the device
		}
		chnSt.InsState[0] = chnSt.Ctrls[0x00]
	case 0x20: // Bank LSB
		if chnSt.InsState[1] == evt.ValB {
			return true
		}
		chnSt.InsState[1] = chnSt.Ctrls[0x20]
	case 0x07: // Main Volume
		nvChn.Attr.Volume = chnSt.Ctrls[0x07]
	case 0x0A: // Pan
		panVal := evt.ValB
		if p.options.SrcType == module.MT32 {
			panVal ^= 0x7F // MT-32 pan runs right-to-left
		}
		if panVal == 0x00 {
			panVal = 0x01 // pan 0 and 1 are the same in GM/GS/XG
		}
		nvChn.Attr.Pan = int8(panVal) - 0x40
		if p.options.Flags&OptStrict != 0 && p.options.DstType.Family() == module.TypeGS {
			// MT-32 on GS: send the GM-compatible pan value
			p.sendShort(chnSt.PortID, evt.Type, ctrlID, panVal)
			return true
		}
	case 0x0B: // Expression
		nvChn.Attr.Expression = chnSt.Ctrls[0x0B]
	case 0x06: // Data Entry MSB
		if chnSt.RpnCtrl[0] == 0x00 {
			switch chnSt.RpnCtrl[1] {
			case 0x00: // Pitch Bend Range
				chnSt.PbRange = evt.ValB
				if chnSt.PbRange > 24 {
					chnSt.PbRange = 24
				}
				nvChn.PbRange = chnSt.PbRange
			case 0x01: // Fine Tuning
				chnSt.TuneFine = int16(uint16(chnSt.TuneFine)&0x00FF) | (int16(evt.ValB)-0x40)<<8
				nvChn.Detune = int8(chnSt.TuneFine >> 8)
				nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
			case 0x02: // Coarse Tuning
				chnSt.TuneCoarse = int8(int16(evt.ValB) - 0x40)
				if chnSt.TuneCoarse < -24 {
					chnSt.TuneCoarse = -24
				} else if chnSt.TuneCoarse > 24 {
					chnSt.TuneCoarse = 24
				}
				nvChn.Transpose = chnSt.TuneCoarse
				nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
			}
		}
	case 0x26: // Data Entry LSB
		if chnSt.RpnCtrl[0] == 0x00 && chnSt.RpnCtrl[1] == 0x01 {
			chnSt.TuneFine = int16(uint16(chnSt.TuneFine)&0xFF00) | int16(evt.ValB)<<1
			nvChn.Detune = int8(chnSt.TuneFine >> 8)
			nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
		}
	case 0x62: // NRPN LSB
		chnSt.RpnCtrl[1] = 0x80 | evt.ValB
	case 0x63: // NRPN MSB
		chnSt.RpnCtrl[0] = 0x80 | evt.ValB
	case 0x64: // RPN LSB
		chnSt.RpnCtrl[1] = 0x00 | evt.ValB
	case 0x65: // RPN MSB
		chnSt.RpnCtrl[0] = 0x00 | evt.ValB
	case 0x6F: // RPG Maker loop controller
		if evt.ValB == 0 || evt.ValB == 111 || evt.ValB == 127 {
			if !p.loopPt.used && trkSt != nil {
				log.Printf("RPG Maker loop point found")
				p.saveLoopState(trkSt)
			}
		} else {
			log.Printf("ctrl 111, value %d", evt.ValB)
		}
	case 0x79: // Reset All Controllers
		chnSt.Ctrls[0x01] = 0x00 // Modulation
		chnSt.Ctrls[0x07] = 100  // Volume
		chnSt.Ctrls[0x0A] = 0x40 // Pan
		chnSt.Ctrls[0x0B] = 0x7F // Expression
		chnSt.Ctrls[0x40] = 0x00 // Sustain
		chnSt.Ctrls[0x41] = 0x00 // Portamento
		chnSt.Ctrls[0x42] = 0x00 // Sostenuto
		chnSt.Ctrls[0x43] = 0x00 // Soft Pedal
		chnSt.RpnCtrl = [2]uint8{0x7F, 0x7F}
		chnSt.PbRange = p.defPbRange
		nvChn.Attr.Volume = chnSt.Ctrls[0x07]
		nvChn.Attr.Pan = int8(chnSt.Ctrls[0x0A]) - 0x40
		nvChn.Attr.Expression = chnSt.Ctrls[0x0B]
		nvChn.PbRange = chnSt.PbRange
	case 0x7B: // All Notes Off
		chnSt.Notes = chnSt.Notes[:0]
		nvChn.ClearNotes()
		if p.observer != nil {
			p.observer.OnChannelReset(uint16(chnSt.PortID)<<4 | uint16(chnSt.MidChn))
		}
	}

	if ctrlID != evt.ValA {
		// remapped controller: emit the substitute alongside the original
		p.sendShort(chnSt.PortID, evt.Type, ctrlID, evt.ValB)
	}

	return false
}
