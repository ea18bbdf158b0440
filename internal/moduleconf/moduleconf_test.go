package moduleconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schollz/midicanvas/internal/module"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	cfg := &Config{
		InsFiles: map[string]string{"GS": "gs.ins"},
		Modules: []ModuleEntry{
			{Name: "sc88", Type: "SC-88", Ports: []int{0, 1}, PlayTypes: []string{"SC-xx", "GM"}},
			{Name: "mu50", Type: "MU50", Ports: []int{2}, PlayTypes: []string{"MUxx"}, DelayTime: []uint32{30}},
		},
	}
	path := filepath.Join(t.TempDir(), "config.json")
	assert.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCollection(t *testing.T) {
	cfg := &Config{Modules: []ModuleEntry{
		{Name: "sc88", Type: "SC-88", Ports: []int{0}, PlayTypes: []string{"SC-xx", "GM"}},
	}}
	coll, err := cfg.Collection()
	assert.NoError(t, err)
	assert.Equal(t, 1, coll.Count())
	assert.Equal(t, module.SC88, coll.Get(0).Type)
	assert.Equal(t, 0, coll.Optimal(module.SC55))

	t.Run("unknown type errors", func(t *testing.T) {
		bad := &Config{Modules: []ModuleEntry{{Name: "x", Type: "JV-1080"}}}
		_, err := bad.Collection()
		assert.Error(t, err)
	})
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		assert.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
