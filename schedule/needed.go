package schedule

import (
	"cmp"
	"math"
	"math/bits"
	"slices"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/tile"
	"github.com/google/hilbert"
)

// Needed returns the Unrequested tiles covering the query, in fetch order:
// levels coarse-to-fine, and inside a level nearest to the box center first.
// Every visited tile, requested or not, gets its priority (distance in levels
// from the target level) and touch time refreshed. Levels further than the
// cache-levels horizon from the target are skipped without touching the
// cache. A positive maxResults caps the result.
func (s *Scheduler) Needed(q Query, cache tile.Cache, maxResults int) ([]*tile.Tile, error) {
	needed, err := s.NeededBox(q)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*tile.Tile, 0)
	for level, box := range needed.Pyramid {
		priority := needed.Level - level
		if priority > s.cacheLevels {
			continue
		}

		batch := make([]*tile.Tile, 0, box.Width()*box.Height())
		for x, y := range box.Cells() {
			index, ok := s.geometry.Index(level, x, y)
			if !ok {
				continue
			}
			id := tile.ID{Level: level, X: x, Y: y}
			t := cache.GetOrCreate(index, func() *tile.Tile { return tile.New(index, id) })
			t.SetPriority(priority)
			t.Touch(now)
			if t.State() == tile.Unrequested {
				batch = append(batch, t)
			}
		}

		c := s.center(level, box)
		slices.SortFunc(batch, func(a, b *tile.Tile) int { return compareTiles(a, b, c) })
		result = append(result, batch...)
	}

	if maxResults > 0 && len(result) > maxResults {
		result = result[:maxResults]
	}
	s.logger.Debug("pyramid: needed tiles", "level", needed.Level, "count", len(result))
	return result, nil
}

// Wanted returns the indices of every tile Needed visits for the query,
// whatever their state, in ascending order. Loads of tiles outside this set
// are no longer useful. The cache is not touched.
func (s *Scheduler) Wanted(q Query) ([]int, error) {
	needed, err := s.NeededBox(q)
	if err != nil {
		return nil, err
	}

	result := make([]int, 0)
	for level, box := range needed.Pyramid {
		if needed.Level-level > s.cacheLevels {
			continue
		}
		for x, y := range box.Cells() {
			if index, ok := s.geometry.Index(level, x, y); ok {
				result = append(result, index)
			}
		}
	}
	slices.Sort(result)
	return result, nil
}

// center is the reference point tiles of one level are ordered around.
type center struct {
	x, y float64

	// curve orders tiles at equal distance along a Hilbert curve spanning
	// the level grid, keeping consecutive requests spatially close.
	curve *hilbert.Hilbert
}

func (s *Scheduler) center(level int, box pyramid.BoundingBox) center {
	x, y := box.Center()
	extent := s.geometry.GridExtent(level)
	side := 1 << bits.Len(uint(max(extent.X, extent.Y)-1))
	curve, _ := hilbert.NewHilbert(side)
	return center{x: x, y: y, curve: curve}
}

func (c center) distance(id tile.ID) float64 {
	return math.Abs(float64(id.X)-c.x) + math.Abs(float64(id.Y)-c.y)
}

func (c center) curvePosition(id tile.ID) int {
	if c.curve == nil {
		return 0
	}
	position, err := c.curve.MapInverse(id.X, id.Y)
	if err != nil {
		return 0
	}
	return position
}

// compareTiles orders tiles by Manhattan distance of their grid coordinate
// to c, then by Hilbert curve position, then by index.
func compareTiles(a, b *tile.Tile, c center) int {
	if d := cmp.Compare(c.distance(a.ID), c.distance(b.ID)); d != 0 {
		return d
	}
	if d := cmp.Compare(c.curvePosition(a.ID), c.curvePosition(b.ID)); d != 0 {
		return d
	}
	return cmp.Compare(a.Index, b.Index)
}
