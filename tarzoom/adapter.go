package tarzoom

import (
	"fmt"
	"io"

	"github.com/eak1mov/go-pyramid/format"
	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
)

type plane struct {
	url   string
	index *Index
}

// Adapter implements format.Adapter for tarzoom packs. Every tile channel
// maps to a byte range of a .tzb resource.
type Adapter struct {
	planes   []plane
	channels int
	geometry *pyramid.Geometry
}

// NewAdapter locates tiles of a single pack. base is the pack URL or path
// without extension; interleaved packs expose all their channels.
func NewAdapter(base string, index *Index) (*Adapter, error) {
	geometry, err := index.Geometry()
	if err != nil {
		return nil, err
	}
	return &Adapter{
		planes:   []plane{{url: base + DataExt, index: index}},
		channels: index.Channels(),
		geometry: geometry,
	}, nil
}

// NewPlanesAdapter locates tiles split over one plain pack per channel. All
// planes must describe the same pyramid.
func NewPlanesAdapter(bases []string, indexes []*Index) (*Adapter, error) {
	if len(bases) == 0 || len(bases) != len(indexes) {
		return nil, fmt.Errorf("%w: %d planes with %d indexes", ErrInvalidIndex, len(bases), len(indexes))
	}
	geometry, err := indexes[0].Geometry()
	if err != nil {
		return nil, err
	}
	planes := make([]plane, len(bases))
	for i, index := range indexes {
		if index.Interleaved() {
			return nil, fmt.Errorf("%w: plane %d is interleaved", ErrInvalidIndex, i)
		}
		if len(index.Offsets) != len(indexes[0].Offsets) || index.Levels != indexes[0].Levels {
			return nil, fmt.Errorf("%w: plane %d does not match plane 0", ErrInvalidIndex, i)
		}
		planes[i] = plane{url: bases[i] + DataExt, index: index}
	}
	return &Adapter{planes: planes, channels: len(planes), geometry: geometry}, nil
}

func (a *Adapter) Geometry() *pyramid.Geometry { return a.geometry }
func (a *Adapter) Channels() int               { return a.channels }

func (a *Adapter) Locate(channel int, t *tile.Tile) (format.Resource, error) {
	if err := format.CheckTile(a, channel, t); err != nil {
		return format.Resource{}, err
	}
	p, stored := a.planes[0], channel
	if len(a.planes) > 1 {
		p, stored = a.planes[channel], 0
	}
	location, err := p.index.Range(t.Index, stored)
	if err != nil {
		return format.Resource{}, err
	}
	return format.Resource{URL: p.url, Range: &location}, nil
}

// ReadTile reads one channel of a tile from an open pack.
func ReadTile(r io.ReaderAt, location tile.Location) ([]byte, error) {
	data := make([]byte, location.Length)
	if _, err := r.ReadAt(data, int64(location.Offset)); err != nil {
		return nil, err
	}
	return data, nil
}
