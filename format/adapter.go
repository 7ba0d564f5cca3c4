// Package format maps pyramid tiles to the resources holding their pixels:
// URL templates, DeepZoom trees and IIIF image servers.
package format

import (
	"errors"
	"fmt"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
)

var (
	ErrInvalidPattern    = errors.New("pyramid: invalid url pattern")
	ErrInvalidDescriptor = errors.New("pyramid: invalid image descriptor")
	ErrInvalidTile       = errors.New("pyramid: tile outside of pyramid")
)

// Resource is where one channel of a tile is stored. A nil Range means the
// whole resource.
type Resource struct {
	URL   string
	Range *tile.Location
}

// Adapter locates tile data for one image layout.
type Adapter interface {
	Geometry() *pyramid.Geometry
	Channels() int
	Locate(channel int, t *tile.Tile) (Resource, error)
}

// CheckTile reports an ErrInvalidTile error if t or channel do not belong
// to the adapter's pyramid.
func CheckTile(a Adapter, channel int, t *tile.Tile) error {
	if channel < 0 || channel >= a.Channels() {
		return fmt.Errorf("%w: channel %d of %d", ErrInvalidTile, channel, a.Channels())
	}
	if !a.Geometry().Valid(t.ID) {
		return fmt.Errorf("%w: %v", ErrInvalidTile, t.ID)
	}
	return nil
}
