package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypePacking(t *testing.T) {
	t.Run("family and model nibbles", func(t *testing.T) {
		assert.Equal(t, TypeGS, SC88Pro.Family())
		assert.Equal(t, uint8(ModelSC88Pro), SC88Pro.Model())
		assert.Equal(t, TypeXG, MU100.Family())
		assert.Equal(t, uint8(ModelMU100), MU100.Model())
		assert.Equal(t, TypeOther, MT32.Family())
	})

	t.Run("TG300B sits in the GS family", func(t *testing.T) {
		assert.Equal(t, TypeGS, TG300B.Family())
		assert.Equal(t, uint8(ModelTG300B), TG300B.Model())
	})
}

func TestParseType(t *testing.T) {
	t.Run("short names", func(t *testing.T) {
		id, ok := ParseType("SC-88Pro")
		assert.True(t, ok)
		assert.Equal(t, SC88Pro, id)
	})

	t.Run("long names", func(t *testing.T) {
		id, ok := ParseType("GM Level 2")
		assert.True(t, ok)
		assert.Equal(t, GM2, id)
	})

	t.Run("numeric", func(t *testing.T) {
		id, ok := ParseType("0x23")
		assert.True(t, ok)
		assert.Equal(t, MU100, id)
	})

	t.Run("garbage", func(t *testing.T) {
		_, ok := ParseType("JV-1080")
		assert.False(t, ok)
	})
}

func TestParsePlayTypes(t *testing.T) {
	t.Run("wildcard SC-xx expands all GS models", func(t *testing.T) {
		types := ParsePlayTypes([]string{"SC-xx"})
		assert.Len(t, types, int(ModUnknown))
		assert.Equal(t, SC55, types[0])
		assert.Equal(t, SC8850, types[3])
	})

	t.Run("family nibble wildcard", func(t *testing.T) {
		types := ParsePlayTypes([]string{"0x2#"})
		assert.Len(t, types, int(ModUnknown))
		assert.Equal(t, MU50, types[0])
	})

	t.Run("mixed names and numbers", func(t *testing.T) {
		types := ParsePlayTypes([]string{"GM", "SC-55", "0x01"})
		assert.Equal(t, []Type{GM1, SC55, GM2}, types)
	})
}

func TestCollectionOptimal(t *testing.T) {
	var c Collection
	c.Add(Module{Name: "mu50", Type: MU50, PlayTypes: ParsePlayTypes([]string{"MUxx", "GM"})})
	c.Add(Module{Name: "sc88", Type: SC88, PlayTypes: ParsePlayTypes([]string{"SC-xx", "GM"})})

	t.Run("exact match wins", func(t *testing.T) {
		assert.Equal(t, 1, c.Optimal(SC88))
		assert.Equal(t, 0, c.Optimal(MU80))
	})

	t.Run("family match when exact missing", func(t *testing.T) {
		assert.Equal(t, 0, c.Optimal(TypeXG|ModUnknown))
	})

	t.Run("GM source accepts GS or XG", func(t *testing.T) {
		var only Collection
		only.Add(Module{Name: "sc88", Type: SC88, PlayTypes: ParsePlayTypes([]string{"SC-xx"})})
		assert.Equal(t, 0, only.Optimal(GM1))
	})

	t.Run("no match", func(t *testing.T) {
		var empty Collection
		assert.Equal(t, -1, empty.Optimal(SC55))
	})
}
