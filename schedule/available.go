package schedule

import (
	"maps"
	"slices"

	"github.com/eak1mov/go-pyramid/tile"
)

// Renderable is a Ready tile to draw. Complete is false when the tile stands
// in for finer tiles that are still loading, so the caller should redraw
// once they arrive.
type Renderable struct {
	Tile     *tile.Tile
	Complete bool
}

// Available returns the best Ready tiles covering every cell of the target
// level box, ordered by index. Cells whose tile is not Ready fall back to
// the nearest Ready ancestor; cells without any Ready ancestor are left
// uncovered. As long as the level 0 tile is Ready the viewport has no gaps.
func (s *Scheduler) Available(q Query, cache tile.Cache) ([]Renderable, error) {
	needed, err := s.NeededBox(q)
	if err != nil {
		return nil, err
	}

	target := needed.Level
	found := make(map[int]*tile.Tile)
	pendingChildren := make(map[int]struct{})

	for x, y := range needed.Pyramid[target].Cells() {
		for level := target; level >= 0; level-- {
			d := target - level
			ax, ay := x>>d, y>>d
			if t, ok := s.readyTile(cache, level, ax, ay); ok {
				found[t.Index] = t
				break
			}
			if level > 0 {
				// the ancestor one level up will be drawn instead; remember
				// that its children are still on their way
				s.addChildren(pendingChildren, tile.ID{Level: level - 1, X: ax >> 1, Y: ay >> 1})
			}
		}
	}

	result := make([]Renderable, 0, len(found))
	for _, index := range slices.Sorted(maps.Keys(found)) {
		t := found[index]
		result = append(result, Renderable{
			Tile:     t,
			Complete: !s.hasChildIn(pendingChildren, t.ID),
		})
	}
	s.logger.Debug("pyramid: available tiles", "level", target, "count", len(result))
	return result, nil
}

func (s *Scheduler) readyTile(cache tile.Cache, level, x, y int) (*tile.Tile, bool) {
	index, ok := s.geometry.Index(level, x, y)
	if !ok || !cache.Has(index) {
		return nil, false
	}
	t, ok := cache.Get(index)
	if !ok || t.State() != tile.Ready {
		return nil, false
	}
	return t, true
}

// children returns the indices of the up to four tiles one level finer than
// parent that cover it.
func (s *Scheduler) children(parent tile.ID) []int {
	indices := make([]int, 0, 4)
	for dy := range 2 {
		for dx := range 2 {
			index, ok := s.geometry.Index(parent.Level+1, parent.X<<1+dx, parent.Y<<1+dy)
			if ok {
				indices = append(indices, index)
			}
		}
	}
	return indices
}

func (s *Scheduler) addChildren(set map[int]struct{}, parent tile.ID) {
	for _, index := range s.children(parent) {
		set[index] = struct{}{}
	}
}

func (s *Scheduler) hasChildIn(set map[int]struct{}, parent tile.ID) bool {
	for _, index := range s.children(parent) {
		if _, ok := set[index]; ok {
			return true
		}
	}
	return false
}
