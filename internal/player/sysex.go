package player

import (
	"log"
	"strings"

	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/module"
	"github.com/schollz/midicanvas/internal/notevis"
)

// partOrder maps a GS part nibble to its MIDI channel (Roland labels the
// drum part, channel 10, as part 1).
var partOrder = [0x10]uint8{
	0x9, 0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8, 0xA, 0xB, 0xC, 0xD, 0xE, 0xF,
}

// checkRolandChecksum verifies the 7-bit checksum over address + data.
// A SysEx ending right after the address carries no checksum; real
// hardware accepts that.
func checkRolandChecksum(data []byte) bool {
	if len(data) <= 0x03 {
		return true
	}
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum&0x7F == 0
}

func sanitizeSysExText(text []byte) string {
	// some MIDIs use control bytes for spaces in display texts
	out := make([]byte, len(text))
	for i, c := range text {
		if c <= 0x1F {
			out[i] = ' '
		} else {
			out[i] = c
		}
	}
	return string(out)
}

func hexDump(data []byte, maxVals int) string {
	if maxVals > len(data) {
		maxVals = len(data)
	}
	var sb strings.Builder
	for i := 0; i < maxVals; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		const hexDigits = "0123456789ABCDEF"
		sb.WriteByte(hexDigits[data[i]>>4])
		sb.WriteByte(hexDigits[data[i]&0x0F])
	}
	return sb.String()
}

// handleSysExMessage interprets a SysEx event. Returning true suppresses
// forwarding the raw message.
func (p *Player) handleSysExMessage(trkSt *trackState, evt *midifile.Event) bool {
	syxData := evt.Data
	if len(syxData) == 0 {
		return false
	}

	if syxData[0] == 0xF0 {
		log.Printf("warning: repeated SysEx start command byte (%02X %s ...)", evt.Type, hexDump(evt.Data, 3))
		for len(syxData) >= 1 && syxData[0] == 0xF0 {
			syxData = syxData[1:]
		}
	}
	if len(syxData) >= 1 && syxData[0]&0x80 != 0 {
		log.Printf("warning: can't parse bad SysEx message (begins with %02X %s ...)", evt.Type, hexDump(evt.Data, 3))
		return false
	}
	if len(syxData) < 0x03 {
		return false // ignore incomplete SysEx messages
	}

	switch syxData[0x00] {
	case 0x41: // Roland
		// syxData[1] device number, [2] model ID, [3] command ID (DT1 = 0x12)
		if len(syxData) < 0x08 || syxData[0x03] != 0x12 {
			break
		}
		// checksum covers address and data up to (not including) 0xF7
		chkEnd := len(syxData)
		if syxData[chkEnd-1] == 0xF7 {
			chkEnd--
		}
		if !checkRolandChecksum(syxData[0x04:chkEnd]) {
			log.Printf("warning: SysEx Roland checksum invalid")
		}
		switch syxData[0x02] {
		case 0x16: // MT-32
			return p.handleSysExMT32(trkSt.portID, syxData)
		case 0x42: // GS
			return p.handleSysExGS(trkSt.portID, syxData)
		case 0x45: // Sound Canvas display
			p.handleSysExSCDisplay(syxData)
		}
	case 0x43: // Yamaha
		if len(syxData) < 0x07 {
			break
		}
		if syxData[0x02] == 0x4C { // XG
			return p.handleSysExXG(trkSt.portID, syxData)
		} else if syxData[0x02] == 0x49 { // MU native
			addr := uint32(syxData[0x03])<<16 | uint32(syxData[0x04])<<8 | uint32(syxData[0x05])
			if addr == 0x000012 {
				// Select Voice Map (MU100+): 00 = MU basic, 01 = MU100 native
				mapName := "MU Basic"
				if syxData[0x06] != 0 {
					mapName = "MU100 Native"
				}
				log.Printf("MU SysEx: set voice map to %d (%s)", syxData[0x06], mapName)
			}
		}
	case 0x7E: // universal non-realtime
		// GM Level 1 On: F0 7E 7F 09 01 F7 / Level 2 On: F0 7E 7F 09 03 F7
		if len(syxData) >= 0x04 && syxData[0x01] == 0x7F && syxData[0x02] == 0x09 {
			gmMode := syxData[0x03]
			if gmMode == 0x01 || gmMode == 0x03 {
				p.initializeChannels()
				log.Printf("SysEx: GM%s reset", map[bool]string{true: "2", false: ""}[gmMode == 0x03])
			}
			if p.options.Flags&OptReset != 0 && p.options.DstType.Family() != module.TypeGM {
				return true // prevent a GM reset on GS/XG devices
			}
		}
	case 0x7F: // universal realtime
		if len(syxData) >= 0x06 && syxData[0x01] == 0x7F && syxData[0x02] == 0x04 {
			if syxData[0x03] == 0x01 { // Master Volume: F0 7F 7F 04 01 ll mm F7
				log.Printf("SysEx: GM master volume = %d", syxData[0x05])
				p.noteVis.Attributes().Volume = syxData[0x05]
			}
		}
	}

	return false
}

func (p *Player) handleSysExSCDisplay(syxData []byte) {
	if len(syxData) < 0x08 {
		return
	}
	addr := uint32(syxData[0x04])<<16 | uint32(syxData[0x05])<<8 | uint32(syxData[0x06])
	switch addr & 0xFFFF00 {
	case 0x100000: // ASCII display
		msg := sanitizeSysExText(syxData[0x07 : len(syxData)-1])
		log.Printf("SC SysEx: display = %q", msg)
	case 0x100100, 0x100200, 0x100300, 0x100400, 0x100500: // dot display pages
		pageID := ((addr&0x00FF00)>>7 | (addr&0x000040)>>6) - 1
		log.Printf("SC SysEx: dot display, load page %d", pageID)
	case 0x102000:
		if addr == 0x102000 {
			log.Printf("SC SysEx: dot display, show page %d", syxData[0x07])
		} else if addr == 0x102001 {
			log.Printf("SC SysEx: dot display, display time %.2f sec", float64(syxData[0x07])*0.48)
		}
	}
}

func (p *Player) handleSysExMT32(portID uint8, syxData []byte) bool {
	addr := uint32(syxData[0x04])<<16 | uint32(syxData[0x05])<<8 | uint32(syxData[0x06])
	switch addr & 0xFF0000 {
	case 0x030000: // Patch Temporary Area
		if addr&0x0F > 0x00 {
			break // only bulk writes are handled
		}
		if addr < 0x030110 && len(syxData) >= 0x0D {
			dataPtr := syxData[0x07:]
			evtChn := 1 + uint8((addr&0x0000F0)>>4)
			portChnID := uint16(portID)<<4 | uint16(evtChn)
			if int(portChnID) >= len(p.chnStates) {
				return false
			}
			chnSt := &p.chnStates[portChnID]
			nvChn := p.noteVis.Channel(portChnID)
			newIns := (dataPtr[0x00]&0x03)<<6 | (dataPtr[0x01]&0x3F)
			if newIns < 0x80 {
				chnSt.CurIns = newIns
				chnSt.UserInsID = userInsNone
				insBank, mapModType := p.selectInsMap(p.options.DstType)
				chnSt.InsSend.BankPtr = getExactInstrument(insBank, &chnSt.InsSend, mapModType)
			} else {
				chnSt.CurIns = 0xFF
				chnSt.UserInsID = uint16(newIns & 0x7F)
				chnSt.InsOrg.BankPtr = nil
				chnSt.InsSend.BankPtr = nil
			}
			chnSt.PbRange = dataPtr[0x04]
			nvChn.PbRange = chnSt.PbRange
			log.Printf("MT-32 SysEx: set ch %d instrument = %d", evtChn, newIns)
		}
	case 0x200000: // Display
		if addr < 0x200100 {
			msg := sanitizeSysExText(syxData[0x07 : len(syxData)-1])
			log.Printf("MT-32 SysEx: display = %q", msg)
		} else if addr == 0x200100 {
			log.Printf("MT-32 SysEx: display reset")
		}
	case 0x7F0000: // All Parameters Reset
		p.initializeChannels()
		log.Printf("SysEx: MT-32 reset")
	}

	return false
}

func (p *Player) handleSysExGS(portID uint8, syxData []byte) bool {
	if p.options.SrcType == module.MT32 {
		// MT-32 MIDIs with stray GS messages exist; ignore most of them
		if !(syxData[0x04]&0x3F == 0x00 && syxData[0x05] == 0x00) {
			log.Printf("ignoring stray GS SysEx message")
			return true
		}
	}

	addr := uint32(syxData[0x04])<<16 | uint32(syxData[0x05])<<8 | uint32(syxData[0x06])
	var chnSt *ChannelState
	switch addr & 0xFF0000 {
	case 0x000000: // System
		maskedAddr := addr
		if maskedAddr&0x00FF00 == 0x000100 {
			maskedAddr &^= 0x0000FF // remove block ID
		}
		switch maskedAddr {
		case 0x00007F: // SC-88 System Mode Set
			p.initializeChannels() // it completely resets the device
			log.Printf("SysEx: SC-88 system mode %d", 1+syxData[0x07])
			if p.options.Flags&OptReset != 0 && p.options.DstType.Family() != module.TypeGS {
				return true // prevent a GS reset on other devices
			}
			if !(p.options.DstType >= module.SC88 && p.options.DstType < module.TG300B) {
				// devices that don't understand the message get a GS reset
				p.sendLong(portID, resetGS)
				return true
			}
		case 0x000100: // Channel Message Receive Port
			log.Printf("SysEx: receive from port %c", 'A'+syxData[0x07])
		}
	case 0x400000, 0x500000: // Patch (port A/B)
		evtPort := portID
		if addr&0x100000 != 0 {
			evtPort ^= 0x01
		}
		addr &^= 0x100000
		var portChnID uint16
		if addr&0x00F000 >= 0x001000 {
			addr &^= 0x000F00 // remove channel ID
			evtChn := partOrder[syxData[0x05]&0x0F]
			portChnID = uint16(evtPort)<<4 | uint16(evtChn)
			if int(portChnID) >= len(p.chnStates) {
				return false
			}
			chnSt = &p.chnStates[portChnID]
		}
		return p.handleSysExGSPatch(portID, addr, syxData, chnSt, portChnID)
	case 0x410000, 0x510000: // Drum Setup (port A/B)
		addr &^= 0x10F0FF // remove port bit, map ID and note number
		if addr == 0x410000 {
			name := sanitizeSysExText(syxData[0x07 : len(syxData)-1])
			log.Printf("SC-88 SysEx: set drum map name = %q", name)
		}
	case 0x210000: // User Drum-Set
		setID := (addr & 0x001000) >> 12
		addr &^= 0x00F0FF
		if addr == 0x210000 {
			name := sanitizeSysExText(syxData[0x07 : len(syxData)-1])
			log.Printf("SC-88 SysEx: set user drum set %d name = %q", setID, name)
		}
	}
	return false
}

func (p *Player) handleSysExGSPatch(portID uint8, addr uint32, syxData []byte, chnSt *ChannelState, portChnID uint16) bool {
	var nvChn *notevis.Channel
	if chnSt != nil {
		nvChn = p.noteVis.Channel(portChnID)
	}
	switch addr {
	case 0x400000: // Master Tune
		if len(syxData) < 0x0C {
			break
		}
		// one nibble per byte: 0x0018 [-1 semi] .. 0x0400 [center] .. 0x07E8 [+1 semi]
		tune := int16(syxData[0x07]&0x0F)<<12 | int16(syxData[0x08]&0x0F)<<8 |
			int16(syxData[0x09]&0x0F)<<4 | int16(syxData[0x0A]&0x0F)
		tune -= 0x400
		if tune < -0x3E8 {
			tune = -0x3E8
		} else if tune > 0x3E8 {
			tune = 0x3E8
		}
		p.noteVis.Attributes().Detune[0] = tune >> 2
	case 0x400004: // Master Volume
		log.Printf("SysEx: GS master volume = %d", syxData[0x07])
		p.noteVis.Attributes().Volume = syxData[0x07]
	case 0x400005: // Master Key-Shift
		transp := int16(syxData[0x07]) - 0x40
		if transp < -24 {
			transp = -24
		} else if transp > 24 {
			transp = 24
		}
		p.noteVis.Attributes().Detune[1] = transp << 8
	case 0x400006: // Master Pan
		panVal := syxData[0x07]
		if panVal == 0x00 {
			panVal = 0x01
		}
		p.noteVis.Attributes().Pan = int8(panVal) - 0x40
	case 0x40007F: // GS reset
		p.initializeChannels()
		log.Printf("SysEx: GS reset")
		if p.options.Flags&OptReset != 0 && p.options.DstType.Family() != module.TypeGS {
			return true // prevent a GS reset on other devices
		}
	case 0x400100: // Patch Name (display)
		msg := sanitizeSysExText(syxData[0x07 : len(syxData)-1])
		log.Printf("SC SysEx: all display = %q", msg)
	case 0x401000: // Tone Number
		if chnSt == nil || len(syxData) < 0x09 {
			break
		}
		chnSt.Ctrls[0x00] = syxData[0x07]
		chnSt.CurIns = syxData[0x08]
		insEvt := midifile.Event{Type: 0xC0 | chnSt.MidChn, ValA: chnSt.CurIns}
		p.handleInstrumentEvent(chnSt, &insEvt, noactNoSend|noactNoLog)
	case 0x401015: // Use Rhythm Part (-> drum channel)
		if chnSt == nil {
			break
		}
		if syxData[0x07] != 0 {
			chnSt.Flags |= 0x80
		} else {
			chnSt.Flags &^= 0x80
		}
		nvChn.ChnMode &^= 0x01
		nvChn.ChnMode |= (chnSt.Flags & 0x80) >> 7
		if chnSt.CurIns == 0xFF {
			break // instrument wasn't set by the MIDI yet
		}
		// emulate the hardware: the message resets Bank MSB and the
		// instrument to 0 and re-applies the current Bank LSB
		flags := uint8(noactNoLog)
		chnSt.Ctrls[0x00] = 0x00
		chnSt.CurIns = 0x00
		if p.options.Flags&OptStrict == 0 {
			flags |= noactNoSend
		}
		insEvt := midifile.Event{Type: 0xC0 | chnSt.MidChn, ValA: chnSt.CurIns}
		p.handleInstrumentEvent(chnSt, &insEvt, flags)
	case 0x401016: // Pitch Key Shift
		if chnSt == nil {
			break
		}
		tuneCoarse := int16(syxData[0x07]) - 0x40
		if tuneCoarse < -24 {
			tuneCoarse = -24
		} else if tuneCoarse > 24 {
			tuneCoarse = 24
		}
		chnSt.TuneCoarse = int8(tuneCoarse)
		nvChn.Transpose = chnSt.TuneCoarse
		nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
	case 0x401017: // Pitch Offset Fine
		if chnSt == nil || len(syxData) < 0x09 {
			break
		}
		offset := int16(syxData[0x07]&0x0F)<<4 | int16(syxData[0x08]&0x0F)
		tuneFine := (offset - 0x80) << 7
		if tuneFine < -0x3C00 {
			tuneFine = -0x3C00
		} else if tuneFine > 0x3C00 {
			tuneFine = 0x3C00
		}
		chnSt.TuneFine = tuneFine
		nvChn.Detune = int8(chnSt.TuneFine >> 8)
		nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
	case 0x401019: // Part Level
		if chnSt == nil {
			break
		}
		chnSt.Ctrls[0x07] = syxData[0x07]
		nvChn.Attr.Volume = chnSt.Ctrls[0x07]
	case 0x40101C: // Part Pan: 00 random, 01 [L63] .. 40 [C] .. 7F [R63]
		if chnSt == nil {
			break
		}
		chnSt.Ctrls[0x0A] = syxData[0x07]
		nvChn.Attr.Pan = int8(chnSt.Ctrls[0x0A]) - 0x40
	case 0x40101F, 0x401020: // CC1/CC2 Controller Number
		if chnSt == nil {
			break
		}
		if p.options.DstType == module.SC8850 {
			// CC1/CC2 reprogramming is broken on the SC-8820/8850: drop
			// the message and remap the controllers in software instead
			ccNo := uint8(addr - 0x40101F)
			if syxData[0x07] < 0x0C {
				log.Printf("warning: CC%d reprogramming to CC#%d might not work", 1+ccNo, syxData[0x07])
				break // ignore stuff like Modulation
			}
			chnSt.IdCC[ccNo] = syxData[0x07]
			if chnSt.IdCC[ccNo] == 0x10+ccNo {
				chnSt.IdCC[ccNo] = 0xFF
				return true // for the defaults, silently drop the message
			}
			log.Printf("warning: fixing CC%d reprogramming to CC#%d", 1+ccNo, syxData[0x07])
			return true
		}
	case 0x401021: // Part Reverb Level
		if chnSt != nil {
			chnSt.Ctrls[0x5B] = syxData[0x07]
		}
	case 0x401022: // Part Chorus Level
		if chnSt != nil {
			chnSt.Ctrls[0x5D] = syxData[0x07]
		}
	case 0x40102C: // Part Delay Level
		if chnSt != nil {
			chnSt.Ctrls[0x5E] = syxData[0x07]
		}
	case 0x402010: // Bend Pitch Control
		if chnSt == nil {
			break
		}
		pbRange := int16(syxData[0x07]) - 0x40
		if pbRange < 0 {
			pbRange = 0
		} else if pbRange > 24 {
			pbRange = 24
		}
		chnSt.PbRange = uint8(pbRange)
		nvChn.PbRange = chnSt.PbRange
	case 0x404000: // Tone Map Number (== Bank LSB)
		if chnSt != nil {
			chnSt.Ctrls[0x20] = syxData[0x07]
		}
	case 0x404001: // Tone Map 0 Number
		log.Printf("SysEx: set default tone map to %d", syxData[0x07])
	}
	return false
}

func (p *Player) handleSysExXG(portID uint8, syxData []byte) bool {
	addr := uint32(syxData[0x03])<<16 | uint32(syxData[0x04])<<8 | uint32(syxData[0x05])
	switch addr & 0xFF0000 {
	case 0x000000: // System
		switch addr {
		case 0x000000: // Master Tune
			if len(syxData) < 0x0B {
				break
			}
			tune := int16(syxData[0x06]&0x0F)<<12 | int16(syxData[0x07]&0x0F)<<8 |
				int16(syxData[0x08]&0x0F)<<4 | int16(syxData[0x09]&0x0F)
			tune -= 0x400
			if tune < -0x400 {
				tune = -0x400
			} else if tune > 0x3FF {
				tune = 0x3FF
			}
			p.noteVis.Attributes().Detune[0] = tune >> 2
		case 0x000004: // Master Volume
			log.Printf("SysEx: XG master volume = %d", syxData[0x06])
			p.noteVis.Attributes().Volume = syxData[0x06]
		case 0x000005: // Master Attenuator
			p.noteVis.Attributes().Expression = 0x7F - syxData[0x06]
		case 0x000006: // Master Transpose
			transp := int16(syxData[0x06]) - 0x40
			if transp < -24 {
				transp = -24
			} else if transp > 24 {
				transp = 24
			}
			p.noteVis.Attributes().Detune[1] = transp << 8
		case 0x00007D: // Drum Setup Reset
			log.Printf("SysEx: XG drum %d reset", syxData[0x06])
		case 0x00007E: // XG System On
			p.initializeChannels()
			log.Printf("SysEx: XG reset")
			if p.options.Flags&OptReset != 0 && p.options.DstType.Family() != module.TypeXG {
				return true // prevent an XG reset on other devices
			}
		case 0x00007F: // All Parameters Reset
			p.initializeChannels()
			log.Printf("SysEx: XG all parameters reset")
			if p.options.Flags&OptStrict != 0 {
				return true // would undo the voice-map selection
			}
		}
	case 0x060000: // ASCII Display
		msg := sanitizeSysExText(syxData[0x06 : len(syxData)-1])
		log.Printf("MU SysEx: display = %q", msg)
	case 0x070000: // Display Bitmap
		log.Printf("MU SysEx: display bitmap")
	case 0x080000, 0x0A0000: // Multi Part
		addr &^= 0x00FF00 // remove part ID
		evtChn := syxData[0x04] & 0x0F
		evtPort := (syxData[0x04] & 0x70) >> 4
		portChnID := uint16(evtPort)<<4 | uint16(evtChn)
		if int(portChnID) >= len(p.chnStates) {
			return false
		}
		chnSt := &p.chnStates[portChnID]
		nvChn := p.noteVis.Channel(portChnID)
		switch addr {
		case 0x080001: // Bank MSB
			chnSt.Ctrls[0x00] = syxData[0x06]
		case 0x080002: // Bank LSB
			chnSt.Ctrls[0x20] = syxData[0x06]
		case 0x080003: // Program Number
			chnSt.CurIns = syxData[0x06]
			insEvt := midifile.Event{Type: 0xC0 | evtChn, ValA: chnSt.CurIns}
			p.handleInstrumentEvent(chnSt, &insEvt, noactNoSend|noactNoLog)
		case 0x080007: // Part Mode: 00 normal, 01+ drum
			if syxData[0x06] != 0 {
				chnSt.Flags |= 0x80
			} else {
				chnSt.Flags &^= 0x80
			}
			nvChn.ChnMode &^= 0x01
			nvChn.ChnMode |= (chnSt.Flags & 0x80) >> 7
		case 0x080008: // Note Shift
			tuneCoarse := int16(syxData[0x06]) - 0x40
			if tuneCoarse < -24 {
				tuneCoarse = -24
			} else if tuneCoarse > 24 {
				tuneCoarse = 24
			}
			chnSt.TuneCoarse = int8(tuneCoarse)
			nvChn.Transpose = chnSt.TuneCoarse
			nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
		case 0x080017: // Detune
			if len(syxData) < 0x08 {
				break
			}
			offset := int16(syxData[0x06]&0x0F)<<4 | int16(syxData[0x07]&0x0F)
			chnSt.TuneFine = (offset - 0x80) << 7
			nvChn.Detune = int8(chnSt.TuneFine >> 8)
			nvChn.Attr.Detune[1] = int16(nvChn.Transpose)<<8 + int16(nvChn.Detune)
		case 0x08000B: // Volume
			chnSt.Ctrls[0x07] = syxData[0x06]
			nvChn.Attr.Volume = chnSt.Ctrls[0x07]
		case 0x08000E: // Pan: 00 random, 01 [L63] .. 40 [C] .. 7F [R63]
			chnSt.Ctrls[0x0A] = syxData[0x06]
			nvChn.Attr.Pan = int8(chnSt.Ctrls[0x0A]) - 0x40
		case 0x080012: // Chorus Send
			chnSt.Ctrls[0x5D] = syxData[0x06]
		case 0x080013: // Reverb Send
			chnSt.Ctrls[0x5B] = syxData[0x06]
		case 0x080014: // Variation Send
			chnSt.Ctrls[0x5E] = syxData[0x06]
		case 0x080023: // Pitch Bend Control
			pbRange := int16(syxData[0x06]) - 0x40
			if pbRange < 0 {
				pbRange = 0
			} else if pbRange > 24 {
				pbRange = 24
			}
			chnSt.PbRange = uint8(pbRange)
			nvChn.PbRange = chnSt.PbRange
		case 0x080067: // Portamento Switch
			if syxData[0x06] != 0 {
				chnSt.Ctrls[0x41] = 0x40
			} else {
				chnSt.Ctrls[0x41] = 0x00
			}
		case 0x080068: // Portamento Time
			chnSt.Ctrls[0x05] = syxData[0x06]
		}
	}
	return false
}
