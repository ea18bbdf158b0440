package bankscan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schollz/midicanvas/internal/insbank"
	"github.com/schollz/midicanvas/internal/midifile"
	"github.com/schollz/midicanvas/internal/module"
)

func testGSBank() *insbank.Bank {
	b := &insbank.Bank{ModuleType: module.TypeGS}
	// program 0 exists on every map, program 1 only from SC-88 up
	for lsb, mod := range []uint8{module.ModelSC55, module.ModelSC88, module.ModelSC88Pro, module.ModelSC8850} {
		b.Prg[0x00] = append(b.Prg[0x00], insbank.Instrument{BankLSB: uint8(lsb + 1), ModuleID: mod, Name: "Piano 1"})
		if mod >= module.ModelSC88 {
			b.Prg[0x01] = append(b.Prg[0x01], insbank.Instrument{Program: 1, BankLSB: uint8(lsb + 1), ModuleID: mod, Name: "Piano 2"})
		}
		b.Prg[0x80] = append(b.Prg[0x80], insbank.Instrument{BankLSB: uint8(lsb + 1), ModuleID: mod, Name: "STANDARD"})
	}
	b.MaxBankLSB = 4
	b.MaxDrumKit = 0
	return b
}

func testXGBank() *insbank.Bank {
	b := &insbank.Bank{ModuleType: module.TypeXG}
	b.Prg[0x00] = append(b.Prg[0x00], insbank.Instrument{ModuleID: module.ModelMU50, Name: "GrandPno"})
	b.Prg[0x00] = append(b.Prg[0x00], insbank.Instrument{BankLSB: 0x01, ModuleID: module.ModelMU80, Name: "GrndPnoK"})
	b.Prg[0x80] = append(b.Prg[0x80], insbank.Instrument{BankMSB: 0x7F, ModuleID: module.ModelMU50, Name: "StandKit"})
	b.MaxBankMSB = 0x7F
	b.MaxBankLSB = 1
	return b
}

func testContext() *Context {
	return &Context{BankGS: testGSBank(), BankXG: testXGBank()}
}

func fileOf(events ...midifile.Event) *midifile.File {
	return &midifile.File{
		Format:     1,
		Resolution: 480,
		Tracks:     []*midifile.Track{{Events: events}},
	}
}

func cc(chn, ctrl, val uint8) midifile.Event {
	return midifile.Event{Type: 0xB0 | chn, ValA: ctrl, ValB: val}
}

func pc(chn, prog uint8) midifile.Event {
	return midifile.Event{Type: 0xC0 | chn, ValA: prog}
}

func noteOn(chn, note uint8) midifile.Event {
	return midifile.Event{Type: 0x90 | chn, ValA: note, ValB: 0x40}
}

func sysex(data ...byte) midifile.Event {
	return midifile.Event{Type: 0xF0, Data: data}
}

var (
	gsReset  = sysex(0x41, 0x10, 0x42, 0x12, 0x40, 0x00, 0x7F, 0x00, 0x41, 0xF7)
	scReset  = sysex(0x41, 0x10, 0x42, 0x12, 0x00, 0x00, 0x7F, 0x00, 0x01, 0xF7)
	xgReset  = sysex(0x43, 0x10, 0x4C, 0x00, 0x00, 0x7E, 0x00, 0xF7)
	gm1Reset = sysex(0x7E, 0x7F, 0x09, 0x01, 0xF7)
	mt32Rst  = sysex(0x41, 0x10, 0x16, 0x12, 0x7F, 0x00, 0x00, 0x00, 0x01, 0xF7)
)

func TestScanGM(t *testing.T) {
	t.Run("bank 0/0 instruments give GM Level 1", func(t *testing.T) {
		r := testContext().Scan(fileOf(cc(0, 0, 0), cc(0, 0x20, 0), pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.GM1, r.ModType)
		assert.Equal(t, uint8(resetUndef), r.HasReset)
	})

	t.Run("bank MSB 0x79 gives GM Level 2", func(t *testing.T) {
		r := testContext().Scan(fileOf(cc(0, 0, 0x79), pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.GM2, r.ModType)
	})

	t.Run("GM reset with clean instruments", func(t *testing.T) {
		r := testContext().Scan(fileOf(gm1Reset, pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.GM1, r.ModType)
		assert.Equal(t, uint8(module.GM1), r.HasReset)
	})
}

func TestScanGS(t *testing.T) {
	t.Run("GS reset picks GS family", func(t *testing.T) {
		r := testContext().Scan(fileOf(gsReset, pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.TypeGS, r.ModType.Family())
	})

	t.Run("explicit SC-88 map raises the optimal model", func(t *testing.T) {
		// LSB 2 is the SC-88 map; with the default map also in use, the
		// song likely targets the next model up
		r := testContext().Scan(fileOf(gsReset,
			cc(0, 0x20, 2), pc(0, 0), noteOn(0, 60),
			cc(0, 0x20, 0), pc(0, 0)), false)
		assert.Equal(t, uint8(module.ModelSC88Pro), r.GSOpt)
		assert.LessOrEqual(t, r.GSMin, r.GSOpt)
	})

	t.Run("LSB 4 suppresses the bump heuristic", func(t *testing.T) {
		r := testContext().Scan(fileOf(gsReset, cc(0, 0x20, 4), pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, uint8(module.ModelSC8850), r.GSOpt)
	})

	t.Run("system mode set forces SC-88 or later", func(t *testing.T) {
		r := testContext().Scan(fileOf(scReset, pc(0, 0), noteOn(0, 60)), false)
		assert.GreaterOrEqual(t, r.GSOpt, uint8(module.ModelSC88))
		assert.Equal(t, module.TypeGS, r.ModType.Family())
	})

	t.Run("user instrument bank", func(t *testing.T) {
		r := testContext().Scan(fileOf(gsReset, cc(0, 0, 0x40), pc(0, 5), noteOn(0, 60)), false)
		assert.NotZero(t, r.Details.FmGS&(1<<FeatUserIns))
		assert.GreaterOrEqual(t, r.GSOpt, uint8(module.ModelSC88))
	})
}

func TestScanXG(t *testing.T) {
	t.Run("XG reset picks XG family", func(t *testing.T) {
		r := testContext().Scan(fileOf(xgReset, pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.TypeXG, r.ModType.Family())
	})

	t.Run("MU100 voice map select elevates XG_Opt", func(t *testing.T) {
		voiceMap := sysex(0x43, 0x10, 0x49, 0x00, 0x00, 0x12, 0x01, 0xF7)
		r := testContext().Scan(fileOf(xgReset, voiceMap, pc(0, 0), noteOn(0, 60)), false)
		assert.GreaterOrEqual(t, r.XGOpt, uint8(module.ModelMU100))
		assert.Equal(t, uint8(0x01), r.Details.XgMapSel)
	})

	t.Run("MU basic map select does not elevate", func(t *testing.T) {
		voiceMap := sysex(0x43, 0x10, 0x49, 0x00, 0x00, 0x12, 0x00, 0xF7)
		r := testContext().Scan(fileOf(xgReset, voiceMap, pc(0, 0), noteOn(0, 60)), false)
		assert.Less(t, r.XGOpt, uint8(module.ModelMU100))
	})

	t.Run("drum bank MSB 127 without reset enforces XG", func(t *testing.T) {
		r := testContext().Scan(fileOf(cc(9, 0, 0x7F), pc(9, 0), noteOn(9, 36)), false)
		assert.Equal(t, module.TypeXG, r.ModType.Family())
	})

	t.Run("drum part S4 needs MU80", func(t *testing.T) {
		partMode := sysex(0x43, 0x10, 0x4C, 0x08, 0x01, 0x07, 0x04, 0xF7)
		r := testContext().Scan(fileOf(xgReset, partMode, pc(0, 0), noteOn(0, 60)), false)
		assert.NotZero(t, r.Details.FmXG&(1<<(FeatInsSet+module.ModelMU80)))
	})
}

func TestScanMT32(t *testing.T) {
	t.Run("MT-32 reset on low channels", func(t *testing.T) {
		r := testContext().Scan(fileOf(mt32Rst, pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.MT32, r.ModType)
	})

	t.Run("upper channels promote to CM-64", func(t *testing.T) {
		r := testContext().Scan(fileOf(mt32Rst, pc(11, 0), noteOn(11, 60)), false)
		assert.Equal(t, module.CM64, r.ModType)
	})
}

func TestScanText(t *testing.T) {
	t.Run("TG300B text overrides detection", func(t *testing.T) {
		text := midifile.Event{Type: 0xFF, ValA: midifile.MetaText, Data: []byte("for TG300B module")}
		r := testContext().Scan(fileOf(xgReset, text, pc(0, 0), noteOn(0, 60)), false)
		assert.Equal(t, module.TG300B, r.ModType)
	})

	t.Run("karaoke marker sets feature bit", func(t *testing.T) {
		text := midifile.Event{Type: 0xFF, ValA: midifile.MetaText, Data: []byte("@KMIDI KARAOKE FILE")}
		r := testContext().Scan(fileOf(text, pc(0, 0), noteOn(0, 60)), false)
		assert.NotZero(t, r.SpcFeature&(1<<SpcFeatKaraoke))
	})
}

func TestScanPorts(t *testing.T) {
	port := func(id byte) midifile.Event {
		return midifile.Event{Type: 0xFF, ValA: midifile.MetaMidiPort, Data: []byte{id}}
	}
	f := &midifile.File{
		Format:     1,
		Resolution: 480,
		Tracks: []*midifile.Track{
			{Events: []midifile.Event{port(0), pc(0, 0), noteOn(0, 60)}},
			{Events: []midifile.Event{port(1), pc(1, 0), noteOn(1, 62)}},
		},
	}
	r := testContext().Scan(f, false)
	assert.Equal(t, 2, r.NumPorts)
}

func TestScanLazyInstrumentCheck(t *testing.T) {
	// instrument set in a later track than the notes: the check must
	// still run against the eventual bank selection
	f := &midifile.File{
		Format:     1,
		Resolution: 480,
		Tracks: []*midifile.Track{
			{Events: []midifile.Event{noteOn(0, 60)}},
			{Events: []midifile.Event{cc(0, 0, 0x79), pc(0, 0)}},
		},
	}
	r := testContext().Scan(f, true)
	assert.Equal(t, module.GM2, r.ModType)
}

func TestScanEmptyFile(t *testing.T) {
	r := testContext().Scan(fileOf(), false)
	assert.Equal(t, 1, r.NumPorts)
	assert.Equal(t, uint8(resetUndef), r.HasReset)
}
