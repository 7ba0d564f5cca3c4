// Package pyramid describes multi-resolution tile pyramids: per-level grid
// and pixel extents, tile-grid boxes and the level/x/y <-> index bijection.
package pyramid

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/paulmach/orb"
)

var ErrInvalidGeometry = errors.New("pyramid: invalid geometry")

// Extent is a size along both axes, in tiles or pixels depending on context.
type Extent struct {
	X int
	Y int
}

// Count returns X*Y.
func (e Extent) Count() int {
	return e.X * e.Y
}

// Config is the geometry construction input. LevelCount is an optional
// override; zero means derive it from the image and tile size.
type Config struct {
	Width      int
	Height     int
	TileSide   int
	Overlap    int
	LevelCount int
}

// Geometry is an immutable description of a tile pyramid.
// Level LevelCount()-1 is the finest, level 0 the coarsest.
type Geometry struct {
	width      int
	height     int
	tileSide   int
	overlap    int
	levelCount int
	grid       []Extent
	pixels     []Extent

	// offsets[l] is the number of tiles in levels [0, l).
	offsets []int
}

// New builds a tiled pyramid geometry.
func New(config Config) (*Geometry, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrInvalidGeometry, config.Width, config.Height)
	}
	if config.TileSide <= 0 {
		return nil, fmt.Errorf("%w: tile side %d", ErrInvalidGeometry, config.TileSide)
	}
	if config.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d", ErrInvalidGeometry, config.Overlap)
	}
	// the coarsest footprint tileSide<<(LevelCount-1) must fit in an int
	if config.LevelCount < 0 || bits.Len(uint(config.TileSide))+config.LevelCount-1 >= bits.UintSize-1 {
		return nil, fmt.Errorf("%w: level count %d", ErrInvalidGeometry, config.LevelCount)
	}

	levelCount := config.LevelCount
	if levelCount == 0 {
		levelCount = deriveLevelCount(max(config.Width, config.Height), config.TileSide)
	}

	g := &Geometry{
		width:      config.Width,
		height:     config.Height,
		tileSide:   config.TileSide,
		overlap:    config.Overlap,
		levelCount: levelCount,
		grid:       make([]Extent, levelCount),
		pixels:     make([]Extent, levelCount),
	}

	w, h := config.Width, config.Height
	for level := levelCount - 1; level >= 0; level-- {
		g.pixels[level] = Extent{X: w, Y: h}
		g.grid[level] = Extent{X: ceilDiv(w, config.TileSide), Y: ceilDiv(h, config.TileSide)}
		w = ceilDiv(w, 2)
		h = ceilDiv(h, 2)
	}
	g.buildOffsets()
	return g, nil
}

// NewImage builds the geometry of a plain, non-tiled image: a single level
// holding one unit that covers the whole image.
func NewImage(width, height int) (*Geometry, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrInvalidGeometry, width, height)
	}
	g := &Geometry{
		width:      width,
		height:     height,
		levelCount: 1,
		grid:       []Extent{{X: 1, Y: 1}},
		pixels:     []Extent{{X: width, Y: height}},
	}
	g.buildOffsets()
	return g, nil
}

// deriveLevelCount returns ceil(log2(size/tileSide)) + 1, at least 1.
func deriveLevelCount(size, tileSide int) int {
	levels := 1
	for covered := tileSide; covered < size; covered *= 2 {
		levels++
	}
	return levels
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (g *Geometry) buildOffsets() {
	g.offsets = make([]int, g.levelCount+1)
	for level, extent := range g.grid {
		g.offsets[level+1] = g.offsets[level] + extent.Count()
	}
}

func (g *Geometry) Width() int      { return g.width }
func (g *Geometry) Height() int     { return g.height }
func (g *Geometry) TileSide() int   { return g.tileSide }
func (g *Geometry) Overlap() int    { return g.overlap }
func (g *Geometry) LevelCount() int { return g.levelCount }

// SingleImage reports whether the geometry is a plain non-tiled image.
func (g *Geometry) SingleImage() bool {
	return g.tileSide == 0
}

// GridExtent returns the number of tiles along each axis at level.
func (g *Geometry) GridExtent(level int) Extent {
	return g.grid[level]
}

// PixelExtent returns the full pixel size represented at level.
func (g *Geometry) PixelExtent(level int) Extent {
	return g.pixels[level]
}

// Side returns the side of a tile's footprint at level, in finest-level
// image pixels.
func (g *Geometry) Side(level int) int {
	return g.tileSide << (g.levelCount - 1 - level)
}

// Quantize converts an image-space box into the tile-grid box of level that
// covers it, clamped to the grid. Coordinates are clamped before the int
// conversion, so bounds of any magnitude stay in range.
func (g *Geometry) Quantize(level int, bound orb.Bound) BoundingBox {
	side := float64(g.Side(level))
	extent := g.grid[level]
	return BoundingBox{
		XLow:  clampCoord(math.Floor(bound.Min[0]/side), extent.X),
		YLow:  clampCoord(math.Floor(bound.Min[1]/side), extent.Y),
		XHigh: clampCoord(math.Ceil(bound.Max[0]/side), extent.X),
		YHigh: clampCoord(math.Ceil(bound.Max[1]/side), extent.Y),
	}
}

// clampCoord converts v to int inside [0, limit]. NaN maps to 0.
func clampCoord(v float64, limit int) int {
	switch {
	case !(v > 0):
		return 0
	case v > float64(limit):
		return limit
	}
	return int(v)
}

// GridBox returns the box spanning the whole grid of level.
func (g *Geometry) GridBox(level int) BoundingBox {
	extent := g.grid[level]
	return BoundingBox{XHigh: extent.X, YHigh: extent.Y}
}

// Clamp restricts box to the grid of level.
func (g *Geometry) Clamp(level int, box BoundingBox) BoundingBox {
	return box.Intersect(g.GridBox(level))
}

// Expand grows box by border tiles in every direction and clamps the
// result to the grid of level. Empty boxes stay empty.
func (g *Geometry) Expand(level int, box BoundingBox, border int) BoundingBox {
	if box.Empty() {
		return box
	}
	return g.Clamp(level, box.Grow(border))
}
