// Package insbank holds the in-memory instrument catalogs used for bank
// detection and instrument remapping. A catalog maps program numbers
// (00..7F melody, 80..FF drum kits) to the list of bank variations known
// for the supported device models.
package insbank

import (
	"github.com/schollz/midicanvas/internal/module"
)

// Instrument is a single catalog entry.
type Instrument struct {
	BankMSB  uint8
	BankLSB  uint8
	Program  uint8
	ModuleID uint8
	Name     string
}

// Bank is an instrument catalog. Prg is indexed by program number; the
// high bit selects the drum-kit half of the keyspace.
type Bank struct {
	ModuleType module.Type
	MaxBankMSB uint8
	MaxBankLSB uint8
	MaxDrumKit uint8
	Prg        [0x100][]Instrument
}

func (b *Bank) add(ins Instrument, drum bool) {
	prgID := ins.Program
	if drum {
		prgID |= 0x80
	}
	b.Prg[prgID] = append(b.Prg[prgID], ins)

	if ins.BankMSB > b.MaxBankMSB {
		b.MaxBankMSB = ins.BankMSB
	}
	if ins.BankLSB > b.MaxBankLSB {
		b.MaxBankLSB = ins.BankLSB
	}
	if drum && ins.Program > b.MaxDrumKit {
		b.MaxDrumKit = ins.Program
	}
}

// lookupList finds the first entry in a program list matching the bank
// selection. MSB/LSB 0xFF act as wildcards. Entries of the exact module
// are preferred; otherwise the first entry with moduleID <= maxModuleID
// wins.
func lookupList(list []Instrument, msb, lsb, maxModuleID uint8) *Instrument {
	for i := range list {
		ins := &list[i]
		if (msb == 0xFF || ins.BankMSB == msb) && (lsb == 0xFF || ins.BankLSB == lsb) {
			if ins.ModuleID == maxModuleID {
				return ins
			}
		}
	}
	for i := range list {
		ins := &list[i]
		if (msb == 0xFF || ins.BankMSB == msb) && (lsb == 0xFF || ins.BankLSB == lsb) {
			if ins.ModuleID <= maxModuleID {
				return ins
			}
		}
	}
	return nil
}

// Lookup finds the instrument entry for a program/bank selection,
// preferring the given module and falling back to lower module IDs.
func (b *Bank) Lookup(program, msb, lsb, maxModuleID uint8) *Instrument {
	if b == nil {
		return nil
	}
	return lookupList(b.Prg[program], msb, lsb, maxModuleID)
}

// ModuleIDFor returns the module ID of the first entry matching the bank
// selection, or 0xFF when the catalog has no such instrument. Used by the
// bank scanner to vote for modules.
func (b *Bank) ModuleIDFor(program, msb, lsb uint8) uint8 {
	if b == nil {
		return 0xFF
	}
	for i := range b.Prg[program] {
		ins := &b.Prg[program][i]
		if (msb == 0xFF || ins.BankMSB == msb) && (lsb == 0xFF || ins.BankLSB == lsb) {
			return ins.ModuleID
		}
	}
	return 0xFF
}

// GSModuleMask returns a bitmask of the GS modules able to render the
// program under any Bank LSB. Each entry contributes ((1 << lsb) - 1);
// since Bank LSB is 1-based, LSB n marks modules 0..n-1. When the highest
// catalog LSB is covered, all larger models inherit the instrument.
func (b *Bank) GSModuleMask(program, msb uint8) uint8 {
	if b == nil {
		return 0x00
	}
	var mask uint8
	for i := range b.Prg[program] {
		ins := &b.Prg[program][i]
		if msb == 0xFF || ins.BankMSB == msb {
			mask |= uint8((1 << ins.BankLSB) - 1)
		}
	}
	maxLsbMask := uint8(1) << b.MaxBankLSB
	if mask&(maxLsbMask>>1) != 0 {
		mask |= ^(maxLsbMask - 1)
	}
	return mask
}

// Merge adds all entries of src into dst, suppressing exact duplicates
// (same bank, program, and module ID).
func Merge(dst, src *Bank) {
	if dst.MaxBankMSB < src.MaxBankMSB {
		dst.MaxBankMSB = src.MaxBankMSB
	}
	if dst.MaxBankLSB < src.MaxBankLSB {
		dst.MaxBankLSB = src.MaxBankLSB
	}
	if dst.MaxDrumKit < src.MaxDrumKit {
		dst.MaxDrumKit = src.MaxDrumKit
	}
	for prg := 0; prg < 0x100; prg++ {
	srcLoop:
		for _, sIns := range src.Prg[prg] {
			for _, dIns := range dst.Prg[prg] {
				if sIns.BankMSB == dIns.BankMSB && sIns.BankLSB == dIns.BankLSB &&
					sIns.Program == dIns.Program && sIns.ModuleID == dIns.ModuleID {
					continue srcLoop
				}
			}
			dst.Prg[prg] = append(dst.Prg[prg], sIns)
		}
	}
}

// FilteredCopy returns a copy of src restricted to one module ID
// (0xFF copies everything).
func FilteredCopy(src *Bank, moduleID uint8) *Bank {
	dst := &Bank{
		ModuleType: src.ModuleType,
		MaxBankMSB: src.MaxBankMSB,
		MaxBankLSB: src.MaxBankLSB,
		MaxDrumKit: src.MaxDrumKit,
	}
	for prg := 0; prg < 0x100; prg++ {
		for _, ins := range src.Prg[prg] {
			if moduleID == 0xFF || ins.ModuleID == moduleID {
				dst.Prg[prg] = append(dst.Prg[prg], ins)
			}
		}
	}
	return dst
}
