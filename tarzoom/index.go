// Package tarzoom reads and writes tarzoom packs: a DeepZoom pyramid stored
// as one data blob (.tzb) plus a JSON index of tile byte offsets (.tzi).
//
// Tiles are packed level by level from the coarsest level, each level in
// row-major order. Interleaved packs store the channels of a tile next to
// each other, so one ranged request fetches all of them.
package tarzoom

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
)

const (
	IndexExt = ".tzi"
	DataExt  = ".tzb"

	ModeInterleaved = "interleaved"
)

var (
	ErrInvalidIndex = errors.New("pyramid: invalid tarzoom index")
	ErrMissingTile  = errors.New("pyramid: missing tarzoom tile")
)

// Index is the content of a .tzi file.
type Index struct {
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	TileSize int      `json:"tilesize"`
	Overlap  int      `json:"overlap"`
	Format   string   `json:"format"`
	Levels   int      `json:"nlevels"`
	Offsets  []uint64 `json:"offsets"`
	Mode     string   `json:"mode,omitempty"`
	Stride   int      `json:"stride,omitempty"`
}

// ReadIndex decodes and validates an index.
func ReadIndex(r io.Reader) (*Index, error) {
	var index Index
	if err := json.NewDecoder(r).Decode(&index); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	if err := index.Validate(); err != nil {
		return nil, err
	}
	return &index, nil
}

// LoadIndex reads the index of the pack at basename. The extension is
// optional.
func LoadIndex(basename string) (*Index, error) {
	file, err := os.Open(strings.TrimSuffix(basename, IndexExt) + IndexExt)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadIndex(file)
}

func (x *Index) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(x)
}

// Save writes the index next to the pack data at basename.
func (x *Index) Save(basename string) error {
	file, err := os.Create(basename + IndexExt)
	if err != nil {
		return err
	}
	if err := x.Write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (x *Index) Interleaved() bool {
	return x.Mode == ModeInterleaved
}

// Channels returns the number of channels stored per tile.
func (x *Index) Channels() int {
	if x.Interleaved() {
		return max(x.Stride, 1)
	}
	return 1
}

// Geometry builds the pyramid described by the index. The stored level
// count is kept as is, including DeepZoom levels smaller than a tile.
func (x *Index) Geometry() (*pyramid.Geometry, error) {
	return pyramid.New(pyramid.Config{
		Width:      x.Width,
		Height:     x.Height,
		TileSide:   x.TileSize,
		Overlap:    x.Overlap,
		LevelCount: x.Levels,
	})
}

// Validate checks that the offsets start at the beginning of the data file,
// cover every tile of every channel and never decrease.
func (x *Index) Validate() error {
	if x.Mode != "" && x.Mode != ModeInterleaved {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidIndex, x.Mode)
	}
	if x.Levels <= 0 {
		return fmt.Errorf("%w: %d levels", ErrInvalidIndex, x.Levels)
	}
	g, err := x.Geometry()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	if got, want := len(x.Offsets), g.TileCount()*x.Channels()+1; got != want {
		return fmt.Errorf("%w: %d offsets, want %d", ErrInvalidIndex, got, want)
	}
	if x.Offsets[0] != 0 {
		return fmt.Errorf("%w: first offset %d, want 0", ErrInvalidIndex, x.Offsets[0])
	}
	for i := 1; i < len(x.Offsets); i++ {
		if x.Offsets[i] < x.Offsets[i-1] {
			return fmt.Errorf("%w: offset %d decreases", ErrInvalidIndex, i)
		}
	}
	return nil
}

// Range returns the byte range of one channel of the tile at index.
func (x *Index) Range(index, channel int) (tile.Location, error) {
	if channel < 0 || channel >= x.Channels() {
		return tile.Location{}, fmt.Errorf("%w: channel %d of %d", ErrInvalidIndex, channel, x.Channels())
	}
	k := index*x.Channels() + channel
	if index < 0 || k+1 >= len(x.Offsets) {
		return tile.Location{}, fmt.Errorf("%w: tile %d out of range", ErrInvalidIndex, index)
	}
	return tile.Location{Offset: x.Offsets[k], Length: x.Offsets[k+1] - x.Offsets[k]}, nil
}

// Sizes returns the byte size of every stored tile channel, in pack order.
func (x *Index) Sizes() []uint64 {
	sizes := make([]uint64, 0, max(len(x.Offsets)-1, 0))
	for i := 1; i < len(x.Offsets); i++ {
		sizes = append(sizes, x.Offsets[i]-x.Offsets[i-1])
	}
	return sizes
}
