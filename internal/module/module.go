// Package module defines the identifiers for the supported tone generator
// families (GM, Roland GS, Yamaha XG, MT-32/CM) and the registry of
// configured output modules.
package module

import (
	"strconv"
	"strings"
)

// Type is a byte-packed module identifier: the high nibble selects the
// family, the low nibble the model within the family.
type Type uint8

const (
	TypeGM    Type = 0x00
	TypeGS    Type = 0x10
	TypeXG    Type = 0x20
	TypeOther Type = 0x70
)

// ModUnknown is the reserved low nibble for "unknown model within family".
const ModUnknown = 0x08

const (
	GM1 Type = Type(TypeGM) | 0x00
	GM2 Type = Type(TypeGM) | 0x01

	SC55    Type = Type(TypeGS) | ModelSC55
	SC88    Type = Type(TypeGS) | ModelSC88
	SC88Pro Type = Type(TypeGS) | ModelSC88Pro
	SC8850  Type = Type(TypeGS) | ModelSC8850
	TG300B  Type = Type(TypeGS) | ModelTG300B

	MU50   Type = Type(TypeXG) | ModelMU50
	MU80   Type = Type(TypeXG) | ModelMU80
	MU90   Type = Type(TypeXG) | ModelMU90
	MU100  Type = Type(TypeXG) | ModelMU100
	MU128  Type = Type(TypeXG) | ModelMU128
	MU1000 Type = Type(TypeXG) | ModelMU1000

	MT32 Type = TypeOther | 0x00
	CM64 Type = TypeOther | 0x01

	// None marks "no module detected".
	None Type = 0xFF
)

// Model IDs within the GS family.
const (
	ModelSC55 = iota
	ModelSC88
	ModelSC88Pro
	ModelSC8850
)

// ModelTG300B is Yamaha's GS emulation mode, kept at the top of the GS range.
const ModelTG300B = 0x0F

// Model IDs within the XG family.
const (
	ModelMU50 = iota
	ModelMU80
	ModelMU90
	ModelMU100
	ModelMU128
	ModelMU1000
)

// Family returns the family nibble (TypeGM, TypeGS, TypeXG, TypeOther).
func (t Type) Family() Type {
	return t & 0xF0
}

// Model returns the model nibble within the family.
func (t Type) Model() uint8 {
	return uint8(t & 0x0F)
}

var shortNames = map[Type]string{
	GM1:     "GM",
	GM2:     "GM_L2",
	SC55:    "SC-55",
	SC88:    "SC-88",
	SC88Pro: "SC-88Pro",
	SC8850:  "SC-8850",
	TG300B:  "TG300B",
	MU50:    "MU50",
	MU80:    "MU80",
	MU90:    "MU90",
	MU100:   "MU100",
	MU128:   "MU128",
	MU1000:  "MU1000",
	MT32:    "MT-32",
	CM64:    "CM-64",
}

var longNames = map[Type]string{
	GM2:                    "GM Level 2",
	SC8850:                 "SC-8820/8850",
	MU1000:                 "MU1000/MU2000",
	TypeGS | ModUnknown:    "GS/unknown",
	TypeXG | ModUnknown:    "XG/unknown",
}

func (t Type) String() string {
	if name, ok := shortNames[t]; ok {
		return name
	}
	return "0x" + strconv.FormatUint(uint64(t), 16)
}

// LongName returns the verbose display name.
func (t Type) LongName() string {
	if name, ok := longNames[t]; ok {
		return name
	}
	return t.String()
}

// ParseType resolves a short name, long name, or numeric string to a Type.
func ParseType(s string) (Type, bool) {
	for id, name := range shortNames {
		if strings.EqualFold(name, s) {
			return id, true
		}
	}
	for id, name := range longNames {
		if strings.EqualFold(name, s) {
			return id, true
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return None, false
	}
	return Type(v), true
}

// ParsePlayTypes expands a list of play-type strings into module IDs.
// Besides plain names and numbers, the wildcards "SC-xx" and "MUxx" expand
// to all GS and XG models, and "0x1#" / "0x2#" expand a family nibble.
func ParsePlayTypes(strs []string) []Type {
	var types []Type
	for _, s := range strs {
		if t, ok := ParseType(s); ok {
			types = append(types, t)
			continue
		}
		switch {
		case s == "SC-xx":
			for mod := Type(0); mod < ModUnknown; mod++ {
				types = append(types, TypeGS|mod)
			}
		case s == "MUxx":
			for mod := Type(0); mod < ModUnknown; mod++ {
				types = append(types, TypeXG|mod)
			}
		case strings.HasSuffix(s, "#"):
			v, err := strconv.ParseUint(strings.TrimSuffix(s, "#"), 0, 8)
			if err != nil {
				continue
			}
			fam := Type(v << 4)
			for mod := Type(0); mod < ModUnknown; mod++ {
				types = append(types, fam|mod)
			}
		}
	}
	return types
}

// Module is one configured output device.
type Module struct {
	Name      string
	Type      Type
	Ports     []int    // output port IDs
	DelayTime []uint32 // per-port event delay in milliseconds
	ChnMask   []uint16 // per-port channel receive mask
	PlayTypes []Type   // module types this device can play faithfully
}

// Collection is the registry of configured modules.
type Collection struct {
	modules []Module
}

func (c *Collection) Clear() {
	c.modules = nil
}

func (c *Collection) Count() int {
	return len(c.modules)
}

func (c *Collection) Get(id int) *Module {
	return &c.modules[id]
}

func (c *Collection) Add(m Module) *Module {
	c.modules = append(c.modules, m)
	return &c.modules[len(c.modules)-1]
}

// Optimal returns the index of the best module for playing the given type,
// or -1 when nothing fits. Exact play-type matches win; otherwise the first
// same-family module is used, and a GM source accepts any GS or XG device.
func (c *Collection) Optimal(playType Type) int {
	for i := range c.modules {
		for _, pt := range c.modules[i].PlayTypes {
			if pt == playType {
				return i
			}
		}
	}
	for i := range c.modules {
		for _, pt := range c.modules[i].PlayTypes {
			if pt.Family() == playType.Family() {
				return i
			}
			if playType.Family() == TypeGM {
				if pt.Family() == TypeGS || pt.Family() == TypeXG {
					return i
				}
			}
		}
	}
	return -1
}
