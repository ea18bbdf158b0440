package player

import (
	"log"

	"github.com/schollz/midicanvas/internal/insbank"
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/module"
)

// Bank ignore mask bits: which of MSB/LSB/instrument to treat as
// wildcards during catalog lookups.
const (
	bnkMskNone   = 0x00
	bnkMskMSB    = 0x01
	bnkMskLSB    = 0x02
	bnkMskAllBnk = bnkMskMSB | bnkMskLSB
	bnkMskIns    = 0x04
)

// Flags for handleInstrumentEvent's noact parameter.
const (
	noactNoSend = 0x01 // update state only, send nothing
	noactNoLog  = 0x10 // skip the patch diagnostics
)

// getExactInstrument looks up an instrument, first with the exact bank
// selection, then with the ignore-mask wildcards applied.
func getExactInstrument(insBank *insbank.Bank, insInf *InstrumentInfo, maxModuleID uint8) *insbank.Instrument {
	if insBank == nil {
		return nil
	}
	ins := insBank.Lookup(insInf.Ins, insInf.Bank[0], insInf.Bank[1], maxModuleID)
	if ins != nil || insInf.BnkIgn == bnkMskNone {
		return ins
	}

	msb := insInf.Bank[0]
	if insInf.BnkIgn&bnkMskMSB != 0 {
		msb = 0xFF
	}
	lsb := insInf.Bank[1]
	if insInf.BnkIgn&bnkMskLSB != 0 {
		lsb = 0xFF
	}
	prog := insInf.Ins
	if insInf.BnkIgn&bnkMskIns != 0 {
		prog = insInf.Ins & 0x80
	}
	return insBank.Lookup(prog, msb, lsb, maxModuleID)
}

// handleInsCommonPatches computes the device-independent part of the
// ignore mask and the MT-32 instrument-set selection.
func (p *Player) handleInsCommonPatches(chnSt *ChannelState, insInf *InstrumentInfo, devType module.Type, insBank *insbank.Bank) {
	switch {
	case devType == module.GM1:
		insInf.BnkIgn = bnkMskAllBnk
		if chnSt.Flags&0x80 != 0 {
			insInf.BnkIgn |= bnkMskIns // there is only 1 drum kit
		}
	case devType.Family() == module.TypeGS:
		if chnSt.Flags&0x80 != 0 {
			insInf.BnkIgn |= bnkMskMSB // ignore MSB on drum channels
		}
	case devType.Family() == module.TypeXG:
		if chnSt.Flags&0x80 != 0 || insInf.Bank[0] == 0x40 {
			insInf.BnkIgn |= bnkMskLSB // ignore LSB on drum channels and SFX banks
		}
	case devType == module.MT32:
		if insBank != nil && insBank.MaxBankMSB >= 0x01 {
			// catalog supports CM-32L/P instrument set selection
			insInf.BnkIgn = bnkMskLSB
			if chnSt.MidChn <= 0x09 {
				insInf.Bank[0] = 0x00 // MT-32/CM-32L set
			} else {
				insInf.Bank[0] = 0x01 // CM-32P set
			}
		} else {
			insInf.BnkIgn = bnkMskAllBnk
		}
		if chnSt.Flags&0x80 != 0 {
			insInf.BnkIgn |= bnkMskIns // there is only 1 drum kit
		}
	default:
		if insBank == nil || insBank.MaxBankMSB == 0x00 {
			insInf.BnkIgn |= bnkMskMSB
		}
		if insBank == nil || insBank.MaxBankLSB == 0x00 {
			insInf.BnkIgn |= bnkMskLSB
		}
		if chnSt.Flags&0x80 != 0 && (insBank == nil || insBank.MaxDrumKit == 0x00) {
			insInf.BnkIgn |= bnkMskIns
		}
	}
}

// handleInsDoFallback applies the device's Capital Tone Fallback rules
// after a failed lookup.
func (p *Player) handleInsDoFallback(chnSt *ChannelState, insInf *InstrumentInfo, devType module.Type, insBank *insbank.Bank) {
	if chnSt.UserInsID != userInsNone {
		return
	}

	switch {
	case devType.Family() == module.TypeGS:
		switch {
		case devType == module.SC55:
			// the two-stage fallback of the SC-55 v1
			if chnSt.Flags&0x80 == 0 {
				if insBank != nil {
					// stage 1: strip the MSB variation bits
					insInf.Bank[0] &^= 0x07
					if insBank.Lookup(insInf.Ins, insInf.Bank[0], insInf.Bank[1], 0xFF) != nil {
						return
					}
				}
				// stage 2: fall back to the GM sound
				insInf.Bank[0] = 0x00
			} else if insBank != nil {
				// drum fallback strips the kit variation bits
				newIns := insInf.Ins &^ 0x07
				if insBank.Lookup(newIns, insInf.Bank[0], insInf.Bank[1], 0xFF) != nil {
					insInf.Ins = newIns
				}
			}
		case devType == module.TG300B:
			// Yamaha's CTF is simple and very similar to the XG fallback
			if chnSt.Flags&0x80 == 0 {
				insInf.Bank[0] = 0x00
			}
		default:
			// SC-88 and later simply ignore the instrument change
		}
	case devType.Family() == module.TypeXG:
		msbH := insInf.Bank[0] & 0xF0
		msbL := insInf.Bank[0] & 0x0F
		if insInf.Bank[0] == 0x3F {
			return // user instrument
		}
		if msbH >= 0x20 && msbH <= 0x60 && msbL >= 0x01 && msbL <= 0x03 {
			return // PLG100 board voices
		}
		// XG falls back by zeroing Bank LSB; for Bank MSB 0 this yields
		// the GM sound, for unknown MSBs it stays silent
		insInf.Bank[1] = 0x00
	default:
		insInf.BnkIgn |= bnkMskAllBnk
	}
}

// handleInsGetOriginal resolves the instrument the file asked for against
// the source device's rules.
func (p *Player) handleInsGetOriginal(chnSt *ChannelState, insInf *InstrumentInfo) {
	devType := p.options.SrcType
	insInf.Bank[0] = chnSt.Ctrls[0x00]
	insInf.Bank[1] = chnSt.Ctrls[0x20]
	insInf.Ins = (chnSt.Flags & 0x80) | (chnSt.CurIns & 0x7F)
	insInf.BnkIgn = bnkMskNone
	insBank, mapModType := p.selectInsMap(devType)

	p.handleInsCommonPatches(chnSt, insInf, devType, insBank)
	if devType.Family() == module.TypeGS {
		if devType == module.SC55 || devType == module.TG300B {
			// the SC-55 ignores Bank LSB
			insInf.BnkIgn |= bnkMskLSB
		} else if insInf.Bank[1] == 0x00 {
			// SC-88+: Bank LSB 0 means the device's native map
			if devType.Model() < module.ModUnknown {
				insInf.Bank[1] = 0x01 + devType.Model()
			} else {
				insInf.BnkIgn |= bnkMskLSB // unknown device - find anything
			}
		}
	} else if devType.Family() == module.TypeXG {
		if chnSt.Flags&0x80 != 0 && insInf.Bank[0] < 0x7E {
			insInf.Bank[0] = 0x7F // enforce drum mode
		}
	}

	insInf.BankPtr = getExactInstrument(insBank, insInf, mapModType)
	if insInf.BankPtr == nil && insBank != nil {
		if chnSt.UserInsID != userInsNone {
			if devType.Family() == module.TypeGS && chnSt.Flags&0x80 == 0 {
				tmpII := InstrumentInfo{Ins: insInf.Ins}
				tmpII.Bank[0] = 0x00
				if insInf.Bank[0] == 0x41 {
					tmpII.Bank[1] = 0x01
				} else {
					tmpII.Bank[1] = insInf.Bank[1]
				}
				insInf.BankPtr = getExactInstrument(insBank, &tmpII, mapModType)
			}
		} else if p.options.Flags&OptEnableCTF != 0 {
			p.handleInsDoFallback(chnSt, insInf, devType, insBank)
			insInf.BankPtr = getExactInstrument(insBank, insInf, mapModType)
		}
	}
}

// handleInsGetRemapped computes the instrument actually transmitted to
// the destination device.
func (p *Player) handleInsGetRemapped(chnSt *ChannelState, insInf *InstrumentInfo) {
	devType := p.options.DstType

	if p.options.Flags&OptStrict != 0 {
		*insInf = chnSt.InsOrg
	} else {
		insInf.Bank[0] = chnSt.Ctrls[0x00]
		insInf.Bank[1] = chnSt.Ctrls[0x20]
		insInf.Ins = (chnSt.Flags & 0x80) | (chnSt.CurIns & 0x7F)
	}
	insIOld := *insInf
	insInf.BnkIgn = bnkMskNone
	strictPatch := uint8(bnkMskNone)
	insBank, mapModType := p.selectInsMap(devType)

	p.handleInsCommonPatches(chnSt, insInf, devType, insBank)
	if devType.Family() == module.TypeGS {
		if p.options.SrcType == module.MT32 {
			// use the MT-32 instrument set of the GS device
			insInf.Bank[1] = 0x01 + module.ModelSC55
			if chnSt.Flags&0x80 != 0 {
				insInf.Bank[0] = 0x00
				insInf.Ins = 0x7F | 0x80
			} else {
				// channels 1-10: MT-32/CM-32L, channels 11-16: CM-32P
				if chnSt.MidChn <= 0x09 {
					insInf.Bank[0] = 0x7F
				} else {
					insInf.Bank[0] = 0x7E
				}
			}
		} else {
			if chnSt.InsOrg.BnkIgn&bnkMskLSB != 0 { // for SC-55 / TG300B
				insInf.Bank[1] = 0x00
			}
			if insInf.Bank[1] == 0x00 || p.options.SrcType.Family() != module.TypeGS {
				// GS song: use the bank optimal for the song
				// GM song: use the device's native bank
				var defaultDev uint8
				if p.options.SrcType.Family() == module.TypeGS && p.options.SrcType.Model() < module.ModUnknown {
					defaultDev = p.options.SrcType.Model()
				} else {
					defaultDev = devType.Model()
					if defaultDev == module.ModelSC8850 {
						defaultDev = module.ModelSC88Pro
					}
				}
				insInf.Bank[1] = 0x01 + defaultDev
				strictPatch |= bnkMskLSB // mark for undo when not strict
			}
			if chnSt.InsOrg.BnkIgn&bnkMskIns != 0 && chnSt.Flags&0x80 != 0 {
				// enforce Standard Kit 1 for non-GS drum kits
				if insInf.Ins&0x47 > 0x00 && insInf.Ins != 0x19 {
					insInf.Ins = 0x00 | 0x80
				}
			}
		}
		if chnSt.Flags&0x80 != 0 && p.options.Flags&OptStrict != 0 {
			insInf.Bank[0] = 0x00 // the (ignored) MSB is 0 on drum channels
		}
		if insBank != nil && insBank.MaxBankLSB == 0x00 {
			insInf.BnkIgn |= bnkMskLSB
		}
	} else if devType.Family() == module.TypeXG {
		if p.options.Flags&OptStrict != 0 {
			if p.options.SrcType.Family() != module.TypeXG {
				if chnSt.Flags&0x80 != 0 {
					insInf.Bank[0] = 0x7F
				} else {
					insInf.Bank[0] = 0x00
				}
				insInf.Bank[1] = 0x00
			} else if chnSt.Flags&0x80 != 0 {
				// enforce drum mode
				if insInf.Bank[0] < 0x7E {
					insInf.Bank[0] = 0x7F
				}
			} else {
				// enforce capital tone
				if insInf.Bank[0] >= 0x7E {
					insInf.Bank[0] = 0x00
				}
			}
		}
		if (chnSt.Flags&0x80 != 0 || insInf.Bank[0] == 0x40) && p.options.Flags&OptStrict != 0 {
			insInf.Bank[1] = 0x00 // LSB is ignored on drum channels and SFX banks
		}
	} else if devType == module.MT32 {
		strictPatch = ^insInf.BnkIgn & bnkMskAllBnk // mark for undo when not strict
	}

	insInf.BankPtr = getExactInstrument(insBank, insInf, mapModType)
	if insInf.BankPtr == nil && insBank != nil {
		if chnSt.UserInsID != userInsNone {
			if devType.Family() == module.TypeGS && chnSt.Flags&0x80 == 0 {
				tmpII := InstrumentInfo{Ins: insInf.Ins}
				tmpII.Bank[0] = 0x00
				if insInf.Bank[0] == 0x41 {
					tmpII.Bank[1] = 0x01
				} else {
					tmpII.Bank[1] = insInf.Bank[1]
				}
				insInf.BankPtr = getExactInstrument(insBank, &tmpII, mapModType)
			}
		} else if p.options.Flags&OptEnableCTF != 0 {
			fbDevType := devType
			if fbDevType.Family() == module.TypeGS {
				fbDevType = module.SC55 // SC-55 fallback method for all GS devices
			}
			p.handleInsDoFallback(chnSt, insInf, fbDevType, insBank)
			if devType.Family() == module.TypeXG {
				// additional Bank MSB fallback to prevent silent sounds
				if insInf.Bank[0] > 0x00 && insInf.Bank[0] < 0x40 {
					insInf.Bank[0] = 0x00
				}
			}
			insInf.BankPtr = getExactInstrument(insBank, insInf, mapModType)
		}
	}

	if p.options.Flags&OptStrict == 0 {
		if strictPatch&bnkMskMSB != 0 {
			insInf.Bank[0] = insIOld.Bank[0]
		}
		if strictPatch&bnkMskLSB != 0 {
			insInf.Bank[1] = insIOld.Bank[1]
		}
		if strictPatch&bnkMskMSB != 0 {
			insInf.Ins = insIOld.Ins
		}
	} else if devType == module.SC55 || devType == module.TG300B {
		// LSB 01 was needed for the lookup, but LSB 00 goes on the wire
		// (the SC-55 ignores it; the MU80's TG300B mode requires 00)
		insInf.Bank[1] = 0x00
	}
}

// handleInstrumentEvent commits the staged bank selection, resolves the
// original and remapped instruments and sends the result, skipping bank
// bytes that are already live on the device.
func (p *Player) handleInstrumentEvent(chnSt *ChannelState, evt *midifile.Event, noact uint8) bool {
	nvChn := p.noteVis.Channel(uint16(chnSt.PortID)<<4 | uint16(chnSt.MidChn))
	oldMSB := chnSt.InsState[0]
	oldLSB := chnSt.InsState[1]
	oldIns := chnSt.InsState[2]
	prevIns := chnSt.CurIns
	bankMSB := chnSt.Ctrls[0x00]

	chnSt.CurIns = evt.ValA
	chnSt.UserInsID = userInsNone

	// user instruments and channel mode changes
	if p.options.SrcType.Family() == module.TypeGS {
		if p.options.SrcType.Model() >= module.ModelSC88 && p.options.SrcType.Model() != module.ModelTG300B {
			if chnSt.Flags&0x80 != 0 && (chnSt.CurIns == 0x40 || chnSt.CurIns == 0x41) {
				chnSt.UserInsID = 0x8000 | uint16(chnSt.CurIns&0x01) // user drum kit
			} else if bankMSB == 0x40 || bankMSB == 0x41 {
				chnSt.UserInsID = uint16(bankMSB&0x01)<<7 | uint16(chnSt.CurIns)
			}
		}
	} else if p.options.SrcType.Family() == module.TypeXG {
		if bankMSB == 0x3F {
			chnSt.UserInsID = uint16(chnSt.CurIns) // QS300 user voices
		}
		if bankMSB >= 0x7E { // MSB 7E/7F = drum kits
			chnSt.Flags |= 0x80
		} else {
			chnSt.Flags &^= 0x80
		}
		nvChn.ChnMode &^= 0x01
		nvChn.ChnMode |= (chnSt.Flags & 0x80) >> 7
	} else if p.options.SrcType == module.GM2 {
		if bankMSB == 0x78 { // drum kits
			chnSt.Flags |= 0x80
		} else if bankMSB == 0x79 { // melody instruments
			chnSt.Flags &^= 0x80
		}
		nvChn.ChnMode &^= 0x01
		nvChn.ChnMode |= (chnSt.Flags & 0x80) >> 7
	}

	p.handleInsGetOriginal(chnSt, &chnSt.InsOrg)
	p.handleInsGetRemapped(chnSt, &chnSt.InsSend)

	if p.ShowInstruments && noact&noactNoLog == 0 {
		p.logInstrumentChange(chnSt, evt)
	}

	// insState keeps the bytes last put on the wire
	chnSt.InsState[0] = chnSt.InsSend.Bank[0]
	chnSt.InsState[1] = chnSt.InsSend.Bank[1]
	chnSt.InsState[2] = chnSt.InsSend.Ins & 0x7F

	if p.observer != nil {
		p.observer.OnInstrumentChange(uint16(chnSt.PortID)<<4|uint16(chnSt.MidChn), chnSt.InsSend.BankPtr)
	}
	if noact&noactNoSend != 0 {
		return false
	}

	// a repeat of the exact program change the device already has
	if noact == 0 && prevIns == evt.ValA &&
		oldMSB == chnSt.InsState[0] && oldLSB == chnSt.InsState[1] && oldIns == chnSt.InsState[2] {
		return true
	}

	// resend Bank MSB/LSB only when they changed
	if oldMSB != chnSt.InsState[0] || oldLSB != chnSt.InsState[1] {
		evtType := 0xB0 | chnSt.MidChn
		if oldMSB != chnSt.InsState[0] {
			p.sendShort(chnSt.PortID, evtType, 0x00, chnSt.InsState[0])
		}
		if oldLSB != chnSt.InsState[1] {
			p.sendShort(chnSt.PortID, evtType, 0x20, chnSt.InsState[1])
		}
	}
	p.sendShort(chnSt.PortID, evt.Type, chnSt.InsState[2], 0x00)
	return true
}

func (p *Player) logInstrumentChange(chnSt *ChannelState, evt *midifile.Event) {
	kind := "ins"
	if chnSt.Flags&0x80 != 0 {
		kind = "drm"
	}
	var didPatch uint8
	if chnSt.InsSend.Bank[0] != chnSt.Ctrls[0x00] {
		didPatch |= bnkMskMSB
	}
	if chnSt.InsSend.Bank[1] != chnSt.Ctrls[0x20] {
		didPatch |= bnkMskLSB
	}
	if chnSt.InsSend.Ins&0x7F != chnSt.CurIns {
		didPatch |= bnkMskIns
	}
	if p.options.Flags&OptStrict != 0 && p.options.DstType.Family() == module.TypeGS {
		// hide the default-map patch in strict mode
		if didPatch == bnkMskLSB && chnSt.Ctrls[0x20] == 0x00 {
			didPatch = bnkMskNone
		}
	}
	name := ""
	if chnSt.InsSend.BankPtr != nil {
		name = chnSt.InsSend.BankPtr.Name
	}
	if didPatch != 0 {
		orgName := ""
		if chnSt.InsOrg.BankPtr != nil {
			orgName = chnSt.InsOrg.BankPtr.Name
		}
		log.Printf("%s patch: %02X/%02X %02X -> %02X/%02X %02X  %s -> %s",
			kind, chnSt.Ctrls[0x00], chnSt.Ctrls[0x20], chnSt.CurIns,
			chnSt.InsSend.Bank[0], chnSt.InsSend.Bank[1], chnSt.InsSend.Ins&0x7F,
			orgName, name)
	} else {
		log.Printf("%s set: %02X/%02X %02X  %s",
			kind, chnSt.InsSend.Bank[0], chnSt.InsSend.Bank[1], chnSt.InsSend.Ins&0x7F, name)
	}
}
