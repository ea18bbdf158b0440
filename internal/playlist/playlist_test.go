package playlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	plPath := filepath.Join(dir, "songs.m3u")
	content := "# my playlist\nsong1.mid\nsub/song2.mid\n\n/abs/song3.mid\n"
	assert.NoError(t, os.WriteFile(plPath, []byte(content), 0o644))

	t.Run("plain files pass through", func(t *testing.T) {
		songs, err := Expand([]string{"direct.mid"})
		assert.NoError(t, err)
		assert.Equal(t, []Song{{Path: "direct.mid"}}, songs)
	})

	t.Run("playlists expand with relative paths resolved", func(t *testing.T) {
		songs, err := Expand([]string{plPath})
		assert.NoError(t, err)
		assert.Len(t, songs, 3)
		assert.Equal(t, filepath.Join(dir, "song1.mid"), songs[0].Path)
		assert.Equal(t, filepath.Join(dir, "sub", "song2.mid"), songs[1].Path)
		assert.Equal(t, "/abs/song3.mid", songs[2].Path)
		assert.True(t, songs[0].FromPlaylist)
	})

	t.Run("missing playlist errors", func(t *testing.T) {
		_, err := Expand([]string{filepath.Join(dir, "nope.m3u")})
		assert.Error(t, err)
	})
}
