package player

import (
	"log"

	"github.com/schollz/midicanvas/internal/module"
)

// Device reset sequences, byte-exact.
var (
	resetGM1     = []byte{0xF0, 0x7E, 0x7F, 0x09, 0x01, 0xF7}
	resetGM2     = []byte{0xF0, 0x7E, 0x7F, 0x09, 0x03, 0xF7}
	resetGS      = []byte{0xF0, 0x41, 0x10, 0x42, 0x12, 0x40, 0x00, 0x7F, 0x00, 0x41, 0xF7}
	resetSC      = []byte{0xF0, 0x41, 0x10, 0x42, 0x12, 0x00, 0x00, 0x7F, 0x00, 0x01, 0xF7}
	resetXG      = []byte{0xF0, 0x43, 0x10, 0x4C, 0x00, 0x00, 0x7E, 0x00, 0xF7}
	resetXGParam = []byte{0xF0, 0x43, 0x10, 0x4C, 0x00, 0x00, 0x7F, 0x00, 0xF7}
	xgVoiceMap   = []byte{0xF0, 0x43, 0x10, 0x49, 0x00, 0x00, 0x12, 0xFF, 0xF7}
)

// sendResetSequences emits the family-specific reset for the destination
// device and returns the initial delay (ms) the device needs to settle.
func (p *Player) sendResetSequences() uint64 {
	var initDelay uint64

	if p.options.Flags&OptReset != 0 {
		switch {
		case p.options.DstType == module.MT32:
			// MT-32 mode - nothing to do right now
		case p.options.DstType.Family() == module.TypeGM:
			if p.options.DstType.Model() == 0x01 {
				log.Printf("sending device reset (GM Level 2)")
				for _, out := range p.outPorts {
					out.SendLong(resetGM2)
				}
			} else {
				log.Printf("sending device reset (GM)")
				for _, out := range p.outPorts {
					out.SendLong(resetGM1)
				}
			}
			initDelay += 200
		case p.options.DstType.Family() == module.TypeGS:
			if p.options.DstType.Model() >= module.ModelSC88 && p.options.DstType.Model() != module.ModelTG300B {
				log.Printf("sending device reset (SC)")
				for _, out := range p.outPorts {
					out.SendLong(resetSC)
				}
			} else {
				log.Printf("sending device reset (GS)")
				for _, out := range p.outPorts {
					out.SendLong(resetGS)
				}
			}
			initDelay += 200
		case p.options.DstType.Family() == module.TypeXG:
			log.Printf("sending device reset (XG)")
			for _, out := range p.outPorts {
				out.SendLong(resetGM1)
				out.SendLong(resetXG)
				out.SendLong(resetXGParam)
			}
			initDelay += 400 // XG modules take a bit to fully reset
		}
	}
	if p.options.Flags&OptStrict != 0 {
		if p.options.DstType.Family() == module.TypeXG && p.options.DstType.Model() >= module.ModelMU100 {
			// on MU100+, select the proper default voice map
			syxData := make([]byte, len(xgVoiceMap))
			copy(syxData, xgVoiceMap)
			voiceMap := uint8(0x00) // MU basic
			if p.options.SrcType.Family() == module.TypeXG && p.options.SrcType.Model() >= module.ModelMU100 {
				voiceMap = 0x01 // MU100 native
			}
			syxData[len(syxData)-2] = voiceMap
			p.outPorts[0].SendLong(syxData)
		}
		initDelay += 50
	}
	return initDelay
}
