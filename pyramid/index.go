package pyramid

import (
	"sort"

	"github.com/eak1mov/go-pyramid/tile"
)

// TileCount returns the total number of tiles over all levels.
func (g *Geometry) TileCount() int {
	return g.offsets[g.levelCount]
}

// Valid reports whether id addresses a tile of the pyramid.
func (g *Geometry) Valid(id tile.ID) bool {
	if id.Level < 0 || id.Level >= g.levelCount {
		return false
	}
	extent := g.grid[id.Level]
	return id.X >= 0 && id.X < extent.X && id.Y >= 0 && id.Y < extent.Y
}

// Index maps (level, x, y) to its position in the level-major, row-major
// enumeration of all tiles. It returns false for coordinates outside the
// pyramid.
func (g *Geometry) Index(level, x, y int) (int, bool) {
	if !g.Valid(tile.ID{Level: level, X: x, Y: y}) {
		return 0, false
	}
	return g.offsets[level] + y*g.grid[level].X + x, true
}

// ReverseIndex is the inverse of Index.
func (g *Geometry) ReverseIndex(index int) (tile.ID, bool) {
	if index < 0 || index >= g.TileCount() {
		return tile.ID{}, false
	}
	// first level whose end offset exceeds index
	level := sort.Search(g.levelCount, func(l int) bool {
		return g.offsets[l+1] > index
	})
	remainder := index - g.offsets[level]
	xCount := g.grid[level].X
	return tile.ID{Level: level, X: remainder % xCount, Y: remainder / xCount}, true
}

// NewTile creates an Unrequested tile for index. It is meant to be used as
// the factory passed to tile.Cache.GetOrCreate.
func (g *Geometry) NewTile(index int) *tile.Tile {
	id, _ := g.ReverseIndex(index)
	return tile.New(index, id)
}
