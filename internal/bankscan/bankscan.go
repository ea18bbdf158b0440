// Package bankscan deduces the tone generator a MIDI file was authored
// for. A single pass over all tracks collects bank-select patterns, SysEx
// resets, drum-kit choices and instrument-map selections, then votes the
// observations into a module type.
package bankscan

import (
	"fmt"
	"strings"

	"github.com/schollz/midicanvas/internal/insbank"
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/module"
)

// Feature mask bits shared by all families.
const (
	FeatInsSet   = 0  // bits 0..5: instrument-set vote per model
	FeatBadIns   = 6  // instrument outside this family's reach
	FeatUserIns  = 7  // device-local user instrument
	FeatUserDrum = 8  // device-local user drum kit
	FeatTextDisp = 9  // ASCII display SysEx
	FeatPixelArt = 10 // dot-display SysEx
)

// GM-specific feature bits.
const (
	FeatGML1Reset = 16
	FeatGML2Reset = 17
)

// GS-specific feature bits.
const (
	FeatGSReset  = 16
	FeatSCReset  = 17 // SC-88 System Mode Set
	FeatGSDefMap = 18 // Bank LSB 0 ("default map") used
	FeatGSSCMap  = 19 // explicit instrument map used
)

// XG-specific feature bits.
const (
	FeatXGReset    = 16
	FeatXGAllReset = 17
	FeatXGGMMap    = 18 // bank 0 LSB 0 (GM map)
	FeatXGMU100Map = 19 // LSB 126 (MU100 native)
	FeatXGBasicMap = 20 // LSB 127 (MU basic)
	FeatXGPanel    = 21 // keyboard panel voices
	FeatXGPLGVL    = 22 // PLG100-VL board voices
	FeatXGPLGDX    = 23 // PLG100-DX board voices
	FeatXGNeedsCTF = 24 // playable only via capital tone fallback
)

// Other-family feature bits.
const (
	FeatMTReset = 16
)

// Special non-device features.
const (
	SpcFeatKaraoke = 0
)

const resetUndef = 0xFF

// Check carries the per-family voting masks accumulated during the scan.
type Check struct {
	FmGM    uint32
	FmGS    uint32
	FmXG    uint32
	FmOther uint32

	GsimNot    uint8  // GS modules known to NOT have a used instrument
	GsimAllMap uint32 // GS votes with LSB treated as wildcard
	GsMaxLSB   uint8
	MaxDrumKit uint8
	MaxDrumMSB uint8
	XgMapSel   uint8 // value of the MU voice-map select SysEx, 0xFF = unset

	ChnUseMask uint16
}

// Result is the outcome of a bank scan.
type Result struct {
	ModType    module.Type
	HasReset   uint8 // raw module ID of the reset seen, 0xFF = none
	GSMin      uint8 // minimum compatible GS model (bit 7: unplayable)
	GSOpt      uint8 // optimal GS model
	XGOpt      uint8 // optimal XG model
	NumPorts   int
	SpcFeature uint8
	Details    Check
}

// Context supplies the reference catalogs used for voting. No global
// registration; thread a Context through the scan.
type Context struct {
	BankGM2 *insbank.Bank
	BankGS  *insbank.Bank
	BankXG  *insbank.Bank

	// Warnings receives scan diagnostics; nil discards them.
	Warnings func(format string, args ...interface{})
}

func (c *Context) warnf(format string, args ...interface{}) {
	if c.Warnings != nil {
		c.Warnings(format, args...)
	}
}

// partOrder maps a GS part nibble to its MIDI channel: Roland displays
// part 10 first (the drum part is channel 10 in user terms).
var partOrder = [0x10]uint8{
	0x9, 0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8, 0xA, 0xB, 0xC, 0xD, 0xE, 0xF,
}

type scanVars struct {
	portIDs      map[uint8]bool
	drumChnMask  uint16
	chnUseMask   uint16 // channels with notes but unchecked instruments
	insBankBuf   [16][2]uint8
	insBank      [16][3]uint8
	lastPortID   uint8
	curPortID    uint8
	syxReset     uint8
	insChkOnNote bool
}

func (c *Context) doInsCheckXG(chk *Check, ins, ccMsb, lsb uint8) {
	var xgIns, msb uint8
	if ccMsb >= 0x80 {
		// unset MSB: default map (drums on channel 10, melody elsewhere)
		xgIns = ins
		if ins&0x80 != 0 {
			msb = 0x7F
		} else {
			msb = 0x00
		}
	} else {
		xgIns = ins & 0x7F
		msb = ccMsb
	}
	msbNibH := msb & 0xF0
	msbNibL := msb & 0x0F

	var vmSel uint8
	switch msb {
	case 0x00:
		vmSel = lsb // bank 0: GM/MU50/MU100 selection via Bank LSB
	case 0x7F:
		vmSel = xgIns & 0x7F // drum bank 127: Standard Kit 1 has map variations
	default:
		vmSel = 0xFF
	}

	switch {
	case vmSel == 0x00:
		chk.FmXG |= 1 << FeatXGGMMap
	case vmSel == 0x7E:
		// LSB 126 enforces the MU100 voice map
		chk.FmXG |= 1 << FeatXGMU100Map
		chk.FmXG |= 1 << (FeatInsSet + module.ModelMU100)
	case vmSel == 0x7F:
		chk.FmXG |= 1 << FeatXGBasicMap
	case msb == 0x00 && lsb >= 0x70:
		chk.FmXG |= 1 << FeatXGPanel
	case msb == 0x3F:
		// QS300 user voices
		chk.FmXG |= 1 << FeatUserIns
	case msbNibH >= 0x20 && msbNibH <= 0x60 && msbNibL >= 0x01 && msbNibL <= 0x03:
		// PLG100/PLG150 plugin board voice banks
		if msb&0x0F == 0x01 {
			chk.FmXG |= 1 << FeatXGPLGVL
			if msb == 0x21 && lsb == 0x02 {
				chk.FmXG |= 1 << FeatUserIns
			}
		} else if msb&0x0F == 0x03 {
			chk.FmXG |= 1 << FeatXGPLGDX
			if msb == 0x23 {
				chk.FmXG |= 1 << FeatUserIns
			}
		}
		chk.FmXG |= 1 << (FeatInsSet + module.ModelMU100) // PLG boards are MU100+
	default:
		insModule := c.BankXG.ModuleIDFor(xgIns, msb, lsb)
		if insModule < 0x80 {
			chk.FmXG |= 1 << (FeatInsSet + uint32(insModule))
		} else {
			insModule = c.BankXG.ModuleIDFor(xgIns, msb, 0x00) // the usual XG fallback
			if insModule < 0x80 {
				chk.FmXG |= 1 << FeatXGNeedsCTF
			} else {
				chk.FmXG |= 1 << FeatBadIns
			}
		}
	}
}

func (c *Context) doInsCheckGS(chk *Check, ins, ccMsb, lsb uint8) {
	var msb uint8
	var isUserIns bool
	if ins&0x80 != 0 {
		msb = 0x00 // Bank MSB is ignored for drum kits
		isUserIns = ins == 0x80|0x40 || ins == 0x80|0x41
	} else {
		if ccMsb == 0xFF {
			msb = 0x00
		} else {
			msb = ccMsb
		}
		isUserIns = msb == 0x40 || msb == 0x41
	}

	if isUserIns && lsb != 0x01 {
		// User patches/drums need SC-88 or later. LSB 1 is excluded above
		// because that selects the SC-55 map.
		var insModule uint8
		if lsb >= 0x02 && lsb <= 0x04 {
			insModule = module.ModelSC55 + (lsb - 0x01)
		} else {
			insModule = module.ModelSC88
		}
		if ins&0x80 != 0 {
			chk.FmGS |= 1 << FeatUserDrum
		} else {
			chk.FmGS |= 1 << FeatUserIns
		}
		chk.FmGS |= 1 << (FeatInsSet + uint32(insModule))
		if lsb == 0x00 {
			chk.FmGS |= 1 << FeatGSDefMap
		} else {
			chk.FmGS |= 1 << FeatGSSCMap
		}
		chk.GsimAllMap |= 1 << (FeatInsSet + uint32(insModule))
		if chk.GsMaxLSB < lsb {
			chk.GsMaxLSB = lsb
		}
	} else if lsb == 0x00 {
		// default/native instrument map: search all maps to guess the
		// right one
		insModule := c.BankGS.ModuleIDFor(ins, msb, 0xFF)
		if insModule < 0x80 {
			chk.FmGS |= 1 << (FeatInsSet + uint32(insModule))
			chk.FmGS |= 1 << FeatGSDefMap
			chk.GsimAllMap |= 1 << (FeatInsSet + uint32(insModule))
		} else {
			chk.FmGS |= 1 << FeatBadIns
			chk.GsimAllMap |= 1 << FeatBadIns
		}
		if insMask := c.BankGS.GSModuleMask(ins, msb); insMask != 0 {
			chk.GsimNot |= ^insMask // modules that can NOT use it
		}
	} else {
		// explicit instrument map
		insModule := c.BankGS.ModuleIDFor(ins, msb, lsb)
		if insModule < 0x80 {
			chk.FmGS |= 1 << (FeatInsSet + uint32(insModule))
			chk.FmGS |= 1 << FeatGSSCMap
			if chk.GsMaxLSB < lsb {
				chk.GsMaxLSB = lsb
			}
		} else {
			chk.FmGS |= 1 << FeatBadIns
		}
		// the minimal map (LSB 0 entries exist on all maps)
		insModule = c.BankGS.ModuleIDFor(ins, msb, 0xFF)
		if insModule < 0x80 {
			chk.GsimAllMap |= 1 << (FeatInsSet + uint32(insModule))
		} else {
			chk.GsimAllMap |= 1 << FeatBadIns
		}
	}
}

func (c *Context) doInstrumentCheck(chk *Check, ins, msb, lsb uint8) {
	// MSB 0xFF == unset
	if (msb == 0x00 || msb == 0xFF) && (lsb == 0x00 || lsb == 0xFF) {
		chk.FmGM |= 1 << (FeatInsSet + 0) // GM Level 1
	} else if msb == 0x78 || msb == 0x79 {
		chk.FmGM |= 1 << (FeatInsSet + 1) // GM Level 2
	} else {
		chk.FmGM |= 1 << FeatBadIns
	}

	c.doInsCheckGS(chk, ins, msb, lsb)
	c.doInsCheckXG(chk, ins, msb, lsb)

	if ins&0x80 != 0 {
		if ins&0x7F > chk.MaxDrumKit {
			chk.MaxDrumKit = ins & 0x7F
		}
		// the highest Bank MSB on drum channels stays 0 in "true" GM MIDIs
		if msb != 0xFF && chk.MaxDrumMSB < msb {
			chk.MaxDrumMSB = msb
		}
	}
}

func (c *Context) mayDoInsCheck(chk *Check, sv *scanVars, evtChn uint8, isNote bool) {
	insData := &sv.insBank[evtChn]

	if sv.insChkOnNote {
		// some MIDIs set instruments in a track that comes after the note
		// data; re-arm the check when the channel is known to have notes
		if !isNote && sv.chnUseMask&(1<<evtChn) != 0 {
			isNote = true
			insData[2] |= 0x80
			sv.chnUseMask &^= 1 << evtChn
		}
	}
	if !isNote && sv.insChkOnNote {
		insData[2] |= 0x80 // next note will execute the instrument check
		return
	}
	if isNote && insData[2]&0x80 == 0 {
		return // already checked for this note
	}
	insData[2] &^= 0x80

	if sv.drumChnMask&(1<<evtChn) != 0 {
		c.doInstrumentCheck(chk, 0x80|insData[2], insData[0], insData[1])
	} else {
		c.doInstrumentCheck(chk, insData[2], insData[0], insData[1])
	}
}

func (c *Context) scanSysExMT32(syxData []byte, chk *Check, sv *scanVars) {
	addr := uint32(syxData[0x04])<<16 | uint32(syxData[0x05])<<8 | uint32(syxData[0x06])
	switch addr & 0xFF0000 {
	case 0x200000: // Display
		if addr < 0x200100 {
			chk.FmOther |= 1 << FeatTextDisp
		}
	case 0x7F0000: // All Parameters Reset
		sv.syxReset = uint8(module.MT32)
		chk.FmOther |= 1 << FeatMTReset
	}
}

func (c *Context) scanSysExGS(syxData []byte, chk *Check, sv *scanVars) {
	addr := uint32(syxData[0x04])<<16 | uint32(syxData[0x05])<<8 | uint32(syxData[0x06])
	switch addr & 0xFF0000 {
	case 0x000000: // System
		if addr&0x00FF00 == 0x000100 {
			addr &^= 0x0000FF // remove block ID
		}
		if addr == 0x00007F { // SC-88 System Mode Set
			sv.syxReset = uint8(module.SC55)
			chk.FmGS |= 1 << FeatSCReset
		}
	case 0x400000, 0x500000: // Patch (port A/B)
		addr &^= 0x100000 // remove port bit
		var evtChn uint8
		if addr&0x00F000 >= 0x001000 {
			addr &^= 0x000F00 // remove channel ID
			evtChn = partOrder[syxData[0x05]&0x0F]
		}
		switch addr {
		case 0x40007F: // GS Reset
			sv.syxReset = uint8(module.SC55)
			chk.FmGS |= 1 << FeatGSReset
		case 0x401000: // Tone Number (Bank MSB + instrument ID)
			if len(syxData) < 0x09 {
				return
			}
			sv.insBankBuf[evtChn][0] = syxData[0x07]
			sv.insBank[evtChn][0] = sv.insBankBuf[evtChn][0]
			sv.insBank[evtChn][1] = sv.insBankBuf[evtChn][1]
			sv.insBank[evtChn][2] = syxData[0x08]
			c.mayDoInsCheck(chk, sv, evtChn, false)
		case 0x401015: // Use Rhythm Part
			if syxData[0x07] != 0 {
				sv.drumChnMask |= 1 << evtChn
			} else {
				sv.drumChnMask &^= 1 << evtChn
			}
		case 0x404000: // Tone Map Number (== Bank LSB)
			sv.insBankBuf[evtChn][1] = syxData[0x07]
		case 0x404001: // Tone Map 0 Number
			// raises the requirement to SC-88+ even without waiting for
			// the actual instrument change
			var tempByt uint8
			if syxData[0x07] <= 0x01 {
				tempByt = module.ModelSC88
			} else {
				tempByt = syxData[0x07] - 0x01 + module.ModelSC55
			}
			chk.FmGS |= 1 << (FeatInsSet + uint32(tempByt))
		}
	}
}

func (c *Context) scanSysExXG(syxData []byte, chk *Check, sv *scanVars) {
	addr := uint32(syxData[0x03])<<16 | uint32(syxData[0x04])<<8 | uint32(syxData[0x05])
	switch addr & 0xFF0000 {
	case 0x000000:
		switch addr {
		case 0x00007E: // XG System On
			sv.syxReset = uint8(module.MU50)
			chk.FmXG |= 1 << FeatXGReset
		case 0x00007F: // All Parameters Reset
			sv.syxReset = uint8(module.MU50)
			chk.FmXG |= 1 << FeatXGAllReset
		}
	case 0x060000:
		chk.FmXG |= 1 << FeatTextDisp
	case 0x070000:
		chk.FmXG |= 1 << FeatPixelArt
	case 0x080000, 0x0A0000:
		if len(syxData) < 0x07 {
			return
		}
		addr &^= 0x00FF00 // remove part ID
		evtChn := syxData[0x04] & 0x0F
		switch addr {
		case 0x080001: // Bank MSB
			sv.insBankBuf[evtChn][0] = syxData[0x06]
		case 0x080002: // Bank LSB
			sv.insBankBuf[evtChn][1] = syxData[0x06]
		case 0x080003: // Program Number
			sv.insBank[evtChn][0] = sv.insBankBuf[evtChn][0]
			sv.insBank[evtChn][1] = sv.insBankBuf[evtChn][1]
			sv.insBank[evtChn][2] = syxData[0x06]
			c.mayDoInsCheck(chk, sv, evtChn, false)
		case 0x080007: // Part Mode: 00 normal, 01 drum auto, 02..05 drum S1..S4
			if syxData[0x06] == 0x00 {
				sv.drumChnMask &^= 1 << evtChn
			} else {
				sv.drumChnMask |= 1 << evtChn
				if syxData[0x06] >= 0x04 {
					// drum parts S3/S4 need MU80 or later
					chk.FmXG |= 1 << (FeatInsSet + module.ModelMU80)
				}
			}
		}
	}
}

// rolandChecksumOK verifies the 7-bit checksum over address + data; a
// message ending right after the address carries none.
func rolandChecksumOK(data []byte) bool {
	if len(data) <= 0x03 {
		return true
	}
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum&0x7F == 0
}

func msBit(value uint32) uint8 {
	var bit uint8
	for value >>= 1; value > 0; value >>= 1 {
		bit++
	}
	return bit
}

func insMaskToModuleID(featureMask uint32, notInsMask uint8) uint8 {
	insMask := (featureMask >> FeatInsSet) & 0x3F
	modID := msBit(insMask)
	for (1<<modID)&notInsMask != 0 {
		modID++
	}
	if featureMask&(1<<FeatBadIns) != 0 {
		modID |= 0x80
	}
	return modID
}

// Scan analyzes a parsed MIDI file. When ignoreEmptyChns is set,
// instrument checks are deferred until the channel actually plays a note.
func (c *Context) Scan(f *midifile.File, ignoreEmptyChns bool) *Result {
	var chk Check
	chk.XgMapSel = 0xFF

	sv := scanVars{
		portIDs:      make(map[uint8]bool),
		drumChnMask:  1 << 9,
		syxReset:     resetUndef,
		insChkOnNote: ignoreEmptyChns,
	}

	var strList []string
	var spcFeature uint8

	for _, trk := range f.Tracks {
		sv.lastPortID = 0xFF
		sv.curPortID = 0x00
		sv.insBankBuf = [16][2]uint8{}
		sv.insBankBuf[9][0] = 0xFF // drums: ignore MSB unless set explicitly

		for i := range trk.Events {
			evt := &trk.Events[i]
			evtChn := evt.Type & 0x0F
			switch evt.Type & 0xF0 {
			case 0x90: // Note On (when velocity > 0)
				if evt.ValB == 0 {
					break
				}
				if sv.curPortID != sv.lastPortID {
					sv.lastPortID = sv.curPortID
					sv.portIDs[sv.curPortID] = true
				}
				sv.chnUseMask |= 1 << evtChn
				chk.ChnUseMask |= 1 << evtChn
				c.mayDoInsCheck(&chk, &sv, evtChn, true)
			case 0xB0:
				switch evt.ValA {
				case 0x00:
					sv.insBankBuf[evtChn][0] = evt.ValB
				case 0x20:
					sv.insBankBuf[evtChn][1] = evt.ValB
				}
			case 0xC0:
				sv.insBank[evtChn][0] = sv.insBankBuf[evtChn][0]
				sv.insBank[evtChn][1] = sv.insBankBuf[evtChn][1]
				sv.insBank[evtChn][2] = evt.ValA
				if sv.insChkOnNote && sv.drumChnMask&(1<<evtChn) != 0 {
					// track drum MSB even when the channel never plays
					if sv.insBank[evtChn][0] != 0xFF && chk.MaxDrumMSB < sv.insBank[evtChn][0] {
						chk.MaxDrumMSB = sv.insBank[evtChn][0]
					}
				}
				c.mayDoInsCheck(&chk, &sv, evtChn, false)
			case 0xF0:
				switch evt.Type {
				case 0xF0:
					c.scanSysEx(evt.Data, &chk, &sv)
				case 0xFF:
					c.scanMeta(evt, &chk, &sv, &spcFeature, &strList)
				}
			}
		}
	}

	return c.resolve(&chk, &sv, spcFeature, strList)
}

func (c *Context) scanSysEx(data []byte, chk *Check, sv *scanVars) {
	if len(data) < 0x03 {
		return
	}
	// skip repeated F0 bytes (yes, there are MIDIs doing this)
	for len(data) >= 1 && data[0] == 0xF0 {
		data = data[1:]
	}
	if len(data) < 0x03 {
		return
	}

	switch data[0x00] {
	case 0x41: // Roland
		if len(data) < 0x08 {
			return
		}
		// data[1] device number, data[2] model ID, data[3] command (DT1 = 0x12)
		if data[0x03] != 0x12 {
			return
		}
		chkEnd := len(data)
		if data[chkEnd-1] == 0xF7 {
			chkEnd--
		}
		if !rolandChecksumOK(data[0x04:chkEnd]) {
			c.warnf("warning: SysEx Roland checksum invalid")
		}
		switch data[0x02] {
		case 0x16: // MT-32
			c.scanSysExMT32(data, chk, sv)
		case 0x42: // GS
			c.scanSysExGS(data, chk, sv)
		case 0x45: // Sound Canvas display
			if data[0x04] == 0x10 {
				if data[0x05] == 0x00 {
					chk.FmGS |= 1 << FeatTextDisp
				} else if data[0x05] < 0x10 {
					chk.FmGS |= 1 << FeatPixelArt
				}
			}
		}
	case 0x43: // Yamaha
		if len(data) < 0x06 {
			return
		}
		switch data[0x02] {
		case 0x4C: // XG
			c.scanSysExXG(data, chk, sv)
		case 0x49: // MU native
			if data[0x03] == 0x00 && data[0x04] == 0x00 && data[0x05] == 0x12 {
				// Select Voice Map (MU100+): 00 = MU basic, 01 = MU100 native
				if len(data) >= 0x07 {
					chk.XgMapSel = data[0x06]
				}
			}
		}
	case 0x7E: // universal non-realtime
		if len(data) < 0x04 {
			return
		}
		if data[0x01] == 0x7F && data[0x02] == 0x09 {
			switch data[0x03] {
			case 0x01: // GM Level 1 On
				if sv.syxReset == resetUndef || module.Type(sv.syxReset).Family() == module.TypeGM {
					sv.syxReset = uint8(module.GM1)
				}
				chk.FmGM |= 1 << FeatGML1Reset
			case 0x03: // GM Level 2 On
				if sv.syxReset == resetUndef || module.Type(sv.syxReset).Family() == module.TypeGM {
					sv.syxReset = uint8(module.GM2)
				}
				chk.FmGM |= 1 << FeatGML2Reset
			}
		}
	}
}

func (c *Context) scanMeta(evt *midifile.Event, chk *Check, sv *scanVars, spcFeature *uint8, strList *[]string) {
	switch evt.ValA {
	case midifile.MetaText:
		if string(evt.Data) == "@KMIDI KARAOKE FILE" {
			*spcFeature |= 1 << SpcFeatKaraoke
		}
	case midifile.MetaMidiPort:
		if len(evt.Data) >= 1 && evt.Data[0] != sv.curPortID {
			// basic reset on port switch
			sv.drumChnMask = 1 << 9
			sv.insBank = [16][3]uint8{}
			sv.curPortID = evt.Data[0]
		}
	}
	if len(evt.Data) > 0 && evt.ValA >= 1 && evt.ValA <= 6 {
		data := evt.Data
		if n := strings.IndexByte(string(data), 0); n >= 0 {
			data = data[:n]
		}
		*strList = append(*strList, fmt.Sprintf("%02X%02X: %s", evt.Type, evt.ValA, data))
	}
}

func (c *Context) resolve(chk *Check, sv *scanVars, spcFeature uint8, strList []string) *Result {
	var modTextFlags uint8
	for _, str := range strList {
		if strings.Contains(str, "SC-55") || strings.Contains(str, "SC-88") {
			modTextFlags |= 0x01
		}
		if ofs := strings.Index(str, "MU"); ofs >= 0 && ofs+2 < len(str) {
			if muNum := str[ofs+2]; muNum >= '0' && muNum <= '9' {
				modTextFlags |= 0x02
			}
		}
		if strings.Contains(str, "S-YXG") {
			modTextFlags |= 0x10
		}
		if strings.Contains(str, "TG300B") {
			modTextFlags |= 0x20
		}
	}

	gsMin := insMaskToModuleID(chk.GsimAllMap, 0x00)
	gsOpt := insMaskToModuleID(chk.FmGS, chk.GsimNot)
	// "SC-88 Mode Set" needs SC-88 or later
	if chk.FmGS&(1<<FeatSCReset) != 0 && gsOpt < module.ModelSC88 {
		gsOpt = module.ModelSC88
	}

	// When Bank LSB selects explicit GS maps, the optimal module likely is
	// one step above the highest map used (LSB 00 = native map, LSB 01+ =
	// ancestor maps).
	if chk.FmGS&(1<<FeatGSSCMap) != 0 {
		var defLSB uint8
		if chk.FmGS&(1<<FeatGSDefMap) != 0 {
			defLSB = 1
		}
		if chk.GsMaxLSB >= 0x04 {
			defLSB = 0 // no "prefer next higher model" for SC-8850
		} else if chk.GsMaxLSB == 0x03 {
			defLSB = 0 // don't go from SC-88Pro to SC-8850 by default
		}
		minGS := (chk.GsMaxLSB - 0x01) + defLSB
		if minGS > module.ModelSC8850 {
			minGS = module.ModelSC8850
		}
		if minGS > gsOpt {
			gsOpt = minGS
		}
	}

	xgOpt := insMaskToModuleID(chk.FmXG, 0x00)
	if chk.XgMapSel != 0xFF {
		// only the MU100 map raises the requirement; selecting the MU
		// basic map might be intentionally backwards-compatible
		if chk.XgMapSel > 0x00 && xgOpt < module.ModelMU100 {
			xgOpt = module.ModelMU100
		}
	}
	if chk.FmXG&(1<<FeatXGBasicMap) != 0 && chk.FmXG&(1<<FeatXGGMMap) != 0 {
		// both the "MU basic" bank (LSB 127) and the GM bank (LSB 0) in
		// use probably means LSB 0 wants MU100 voices
		if xgOpt < module.ModelMU100 {
			xgOpt = module.ModelMU100
		}
	}

	result := &Result{
		SpcFeature: spcFeature,
		HasReset:   sv.syxReset,
		GSMin:      gsMin,
		GSOpt:      gsOpt,
		XGOpt:      xgOpt,
		NumPorts:   len(sv.portIDs),
		Details:    *chk,
	}
	if result.NumPorts == 0 {
		result.NumPorts = 1
	}

	if gsOpt > module.ModUnknown {
		gsOpt = module.ModUnknown
	}
	if xgOpt > module.ModUnknown {
		xgOpt = module.ModUnknown
	}

	xgDrum := chk.MaxDrumMSB == 0x7F
	if xgDrum && chk.FmXG&(1<<FeatBadIns) == 0 {
		// enforce XG detection for MIDIs with Bank MSB 127 on drum channels
		chk.FmGM |= 1 << FeatBadIns
		chk.FmGS |= 1 << FeatBadIns
	} else if sv.syxReset == uint8(module.GM1) {
		// the SC-55 treats the GM reset as GS reset, so non-GM instruments
		// or drum kits patch the detection to SC-55
		var notGM uint8
		if chk.FmGM&(1<<FeatBadIns) != 0 {
			notGM |= 0x01
		}
		if chk.MaxDrumKit > 0x00 {
			notGM |= 0x02
		}
		if notGM != 0 && gsOpt == module.ModelSC55 {
			sv.syxReset = uint8(module.SC55)
		}
	}

	if sv.syxReset != resetUndef {
		switch {
		case sv.syxReset == uint8(module.SC55):
			result.ModType = module.TypeGS | module.Type(gsOpt)
		case sv.syxReset == uint8(module.MU50):
			result.ModType = module.TypeXG | module.Type(xgOpt)
		case sv.syxReset == uint8(module.MT32):
			if chk.ChnUseMask&0xFC00 != 0 {
				result.ModType = module.CM64
			} else {
				result.ModType = module.MT32
			}
		case chk.FmGS&(3<<FeatGSReset) != 0 && gsOpt != module.ModUnknown:
			// some SC-55 MIDIs have MT-32 *and* GS reset
			result.ModType = module.TypeGS | module.Type(gsOpt)
		case sv.syxReset == uint8(module.GM1) && chk.FmGM&(1<<(FeatInsSet+1)) != 0:
			result.ModType = module.GM2
		default:
			result.ModType = module.Type(sv.syxReset)
		}
	} else {
		switch {
		case chk.FmGM&(1<<FeatBadIns) == 0:
			if chk.FmGM&(1<<(FeatInsSet+1)) != 0 {
				result.ModType = module.GM2
			} else {
				result.ModType = module.GM1
			}
		case chk.FmGS&(1<<FeatBadIns) == 0:
			result.ModType = module.TypeGS | module.Type(gsOpt)
		case chk.FmXG&(1<<FeatBadIns) == 0:
			result.ModType = module.TypeXG | module.Type(xgOpt)
		default:
			result.ModType = module.None
		}
	}
	if result.ModType.Family() != module.TypeGM && modTextFlags&0x30 != 0 {
		result.ModType = module.TG300B
	}

	return result
}
