package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
)

// IIIF locates tiles on an IIIF Image API server by requesting the tile
// region of the full image scaled down to the tile level:
// "{base}/{x},{y},{w},{h}/{sw},/0/default.jpg".
type IIIF struct {
	base     string
	geometry *pyramid.Geometry
}

func NewIIIF(base string, geometry *pyramid.Geometry) *IIIF {
	return &IIIF{base: strings.TrimSuffix(base, "/"), geometry: geometry}
}

type iiifInfo struct {
	ID       string `json:"id"`
	LegacyID string `json:"@id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Tiles    []struct {
		Width int `json:"width"`
	} `json:"tiles"`
}

// ParseIIIFInfo reads an info.json document (Image API 2 or 3). The first
// tiles entry gives the tile side; 256 is used when it is missing.
func ParseIIIFInfo(r io.Reader) (*IIIF, error) {
	var info iiifInfo
	if err := json.NewDecoder(r).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	base := info.ID
	if base == "" {
		base = info.LegacyID
	}
	if base == "" {
		return nil, fmt.Errorf("%w: missing image id", ErrInvalidDescriptor)
	}

	tileSide := 256
	if len(info.Tiles) > 0 && info.Tiles[0].Width > 0 {
		tileSide = info.Tiles[0].Width
	}
	geometry, err := pyramid.New(pyramid.Config{Width: info.Width, Height: info.Height, TileSide: tileSide})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return NewIIIF(base, geometry), nil
}

func (f *IIIF) Geometry() *pyramid.Geometry { return f.geometry }
func (f *IIIF) Channels() int               { return 1 }

func (f *IIIF) Locate(channel int, t *tile.Tile) (Resource, error) {
	if err := CheckTile(f, channel, t); err != nil {
		return Resource{}, err
	}
	g := f.geometry
	side := g.Side(t.ID.Level)
	x, y := t.ID.X*side, t.ID.Y*side
	w := min(side, g.Width()-x)
	h := min(side, g.Height()-y)

	downscale := g.Side(t.ID.Level) / g.TileSide()
	scaled := (w + downscale - 1) / downscale

	url := fmt.Sprintf("%s/%d,%d,%d,%d/%d,/0/default.jpg", f.base, x, y, w, h, scaled)
	return Resource{URL: url}, nil
}
