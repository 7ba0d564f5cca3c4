// Package testimage generates synthetic tile pyramids for tests.
package testimage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eak1mov/go-pyramid/format"
	"github.com/eak1mov/go-pyramid/tile"
)

// TileData returns the synthetic content of one channel of a tile. Sizes
// differ between tiles so that packed offsets are not uniform.
func TileData(id tile.ID, channel int) []byte {
	return []byte(fmt.Sprintf("tile %v channel %d %s", id, channel, strings.Repeat("#", id.X+id.Y)))
}

// DeepZoom writes "{basename}.dzi" and a complete "{basename}_files" tree
// holding channel 0 of every tile, from the single pixel level up. Level
// directories use DeepZoom numbering, which equals the pyramid level of a
// tarzoom pack built from the tree.
func DeepZoom(t testing.TB, basename string, width, height, tileSize int) map[tile.ID][]byte {
	t.Helper()
	return DeepZoomChannel(t, basename, width, height, tileSize, 0)
}

// DeepZoomChannel is DeepZoom with tile contents of the given channel.
func DeepZoomChannel(t testing.TB, basename string, width, height, tileSize, channel int) map[tile.ID][]byte {
	t.Helper()

	descriptor := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Image xmlns="http://schemas.microsoft.com/deepzoom/2008" Format="jpg" Overlap="0" TileSize="%d">
  <Size Width="%d" Height="%d"/>
</Image>
`, tileSize, width, height)
	if err := os.WriteFile(basename+".dzi", []byte(descriptor), 0644); err != nil {
		t.Fatal(err)
	}

	tiles := make(map[tile.ID][]byte)
	levels := format.DeepZoomLevels(width, height)
	w, h := width, height
	for level := levels - 1; level >= 0; level-- {
		dir := filepath.Join(basename+"_files", fmt.Sprint(level))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for y := range (h + tileSize - 1) / tileSize {
			for x := range (w + tileSize - 1) / tileSize {
				id := tile.ID{Level: level, X: x, Y: y}
				data := TileData(id, channel)
				path := filepath.Join(dir, fmt.Sprintf("%d_%d.jpg", x, y))
				if err := os.WriteFile(path, data, 0644); err != nil {
					t.Fatal(err)
				}
				tiles[id] = data
			}
		}
		w = (w + 1) / 2
		h = (h + 1) / 2
	}
	return tiles
}
