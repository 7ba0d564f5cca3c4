package format

import (
	"encoding/xml"
	"fmt"
	"io"
	"math/bits"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
)

// dziImage is the root element of a .dzi descriptor.
type dziImage struct {
	XMLName  xml.Name `xml:"Image"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Format   string   `xml:"Format,attr"`
	Size     struct {
		Width  int `xml:"Width,attr"`
		Height int `xml:"Height,attr"`
	} `xml:"Size"`
}

// DeepZoom locates tiles of a DeepZoom tree: "{base}_files/{level}/{x}_{y}.{format}".
// DeepZoom numbers levels from a single pixel up, so the coarsest levels
// below one tile are never addressed.
type DeepZoom struct {
	base      string
	format    string
	dziLevels int
	geometry  *pyramid.Geometry
}

// ParseDeepZoom reads a .dzi descriptor. base is the descriptor location
// without the ".dzi" extension, e.g. "https://example.com/image".
func ParseDeepZoom(r io.Reader, base string) (*DeepZoom, error) {
	var image dziImage
	if err := xml.NewDecoder(r).Decode(&image); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	if image.Format == "" {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidDescriptor)
	}

	geometry, err := pyramid.New(pyramid.Config{
		Width:    image.Size.Width,
		Height:   image.Size.Height,
		TileSide: image.TileSize,
		Overlap:  image.Overlap,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return &DeepZoom{
		base:      base,
		format:    image.Format,
		dziLevels: DeepZoomLevels(image.Size.Width, image.Size.Height),
		geometry:  geometry,
	}, nil
}

// DeepZoomLevels returns the number of DeepZoom levels of an image,
// ceil(log2(max(width, height))) + 1.
func DeepZoomLevels(width, height int) int {
	size := max(width, height)
	if size <= 1 {
		return 1
	}
	return bits.Len(uint(size-1)) + 1
}

// Level maps a pyramid level to the DeepZoom level directory.
func (d *DeepZoom) Level(level int) int {
	return level + d.dziLevels - d.geometry.LevelCount()
}

func (d *DeepZoom) TileFormat() string { return d.format }

func (d *DeepZoom) Geometry() *pyramid.Geometry { return d.geometry }
func (d *DeepZoom) Channels() int               { return 1 }

func (d *DeepZoom) Locate(channel int, t *tile.Tile) (Resource, error) {
	if err := CheckTile(d, channel, t); err != nil {
		return Resource{}, err
	}
	url := fmt.Sprintf("%s_files/%d/%d_%d.%s", d.base, d.Level(t.ID.Level), t.ID.X, t.ID.Y, d.format)
	return Resource{URL: url}, nil
}
