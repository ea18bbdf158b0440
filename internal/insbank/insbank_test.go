package insbank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeInsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ins")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleIns = `# MIDI Sequencer "Cherry" Instrument List Dump
V 001 000 000 000 000
L 000 000 000 000 000 GS
P 000 000 000 000 000 GM

# LSB MSB PC# KEY GRA NAME
M 001 000 001 000 000 Piano 1
M 002 000 001 000 001 Piano 1 (88)
M 001 008 001 000 000 Piano 1w
D 001 000 001 000 000 55 STANDARD
D 002 000 026 000 001 88 ELECTRONIC
N 001 000 001 035 000 Kick 2
`

func TestLoad(t *testing.T) {
	bank, err := Load(writeInsFile(t, sampleIns))
	assert.NoError(t, err)

	t.Run("melody entries keyed by 0-based program", func(t *testing.T) {
		assert.Len(t, bank.Prg[0x00], 3)
		assert.Equal(t, "Piano 1", bank.Prg[0x00][0].Name)
		assert.Equal(t, uint8(1), bank.Prg[0x00][0].BankLSB)
		assert.Equal(t, uint8(8), bank.Prg[0x00][2].BankMSB)
	})

	t.Run("drum kits land in the upper keyspace", func(t *testing.T) {
		assert.Len(t, bank.Prg[0x80], 1)
		assert.Equal(t, "55 STANDARD", bank.Prg[0x80][0].Name)
		assert.Len(t, bank.Prg[0x80|25], 1)
	})

	t.Run("summaries", func(t *testing.T) {
		assert.Equal(t, uint8(8), bank.MaxBankMSB)
		assert.Equal(t, uint8(2), bank.MaxBankLSB)
		assert.Equal(t, uint8(25), bank.MaxDrumKit)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.ins"))
		assert.Error(t, err)
	})

	t.Run("unsupported version", func(t *testing.T) {
		_, err := Load(writeInsFile(t, "V 002 000 000 000 000 X\n"))
		assert.Error(t, err)
	})
}

func TestLookup(t *testing.T) {
	bank, err := Load(writeInsFile(t, sampleIns))
	assert.NoError(t, err)

	t.Run("exact module preferred", func(t *testing.T) {
		ins := bank.Lookup(0x00, 0x00, 0x02, 0x01)
		assert.NotNil(t, ins)
		assert.Equal(t, "Piano 1 (88)", ins.Name)
	})

	t.Run("falls back to lower module", func(t *testing.T) {
		ins := bank.Lookup(0x00, 0x00, 0x01, 0x03)
		assert.NotNil(t, ins)
		assert.Equal(t, "Piano 1", ins.Name)
	})

	t.Run("wildcards", func(t *testing.T) {
		ins := bank.Lookup(0x00, 0xFF, 0xFF, 0x00)
		assert.NotNil(t, ins)
		ins = bank.Lookup(0x00, 0x08, 0xFF, 0x00)
		assert.NotNil(t, ins)
		assert.Equal(t, "Piano 1w", ins.Name)
	})

	t.Run("miss", func(t *testing.T) {
		assert.Nil(t, bank.Lookup(0x01, 0x00, 0x00, 0xFF))
		assert.Nil(t, (*Bank)(nil).Lookup(0x00, 0xFF, 0xFF, 0xFF))
	})
}

func TestGSModuleMask(t *testing.T) {
	bank, err := Load(writeInsFile(t, sampleIns))
	assert.NoError(t, err)

	t.Run("program present on all maps", func(t *testing.T) {
		// LSB 1 and 2 exist for program 0; max LSB is 2, so bit 1 set
		// propagates to all higher models.
		mask := bank.GSModuleMask(0x00, 0x00)
		assert.Equal(t, uint8(0xFF), mask)
	})

	t.Run("unknown program yields empty mask", func(t *testing.T) {
		assert.Equal(t, uint8(0x00), bank.GSModuleMask(0x05, 0x00))
	})
}

func TestMergeAndFilter(t *testing.T) {
	bank, err := Load(writeInsFile(t, sampleIns))
	assert.NoError(t, err)

	t.Run("merging a bank with itself changes nothing", func(t *testing.T) {
		dst := FilteredCopy(bank, 0xFF)
		Merge(dst, bank)
		for prg := 0; prg < 0x100; prg++ {
			assert.Equal(t, len(bank.Prg[prg]), len(dst.Prg[prg]), "prg %02X", prg)
		}
	})

	t.Run("merge keeps distinct entries", func(t *testing.T) {
		other := &Bank{}
		other.add(Instrument{BankMSB: 0x10, Program: 0x00, ModuleID: 2, Name: "Piano 1#"}, false)
		dst := FilteredCopy(bank, 0xFF)
		Merge(dst, other)
		assert.Len(t, dst.Prg[0x00], 4)
		assert.Equal(t, uint8(0x10), dst.MaxBankMSB)
	})

	t.Run("filtered copy keeps one module", func(t *testing.T) {
		only := FilteredCopy(bank, 0x01)
		assert.Len(t, only.Prg[0x00], 1)
		assert.Equal(t, "Piano 1 (88)", only.Prg[0x00][0].Name)
		assert.Empty(t, only.Prg[0x80])
	})
}
