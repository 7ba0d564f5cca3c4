package pyramid

import (
	"fmt"
	"iter"
)

// BoundingBox is a half-open box [low, high) in tile-grid coordinates.
type BoundingBox struct {
	XLow  int
	YLow  int
	XHigh int
	YHigh int
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", b.XLow, b.XHigh, b.YLow, b.YHigh)
}

func (b BoundingBox) Width() int  { return max(b.XHigh-b.XLow, 0) }
func (b BoundingBox) Height() int { return max(b.YHigh-b.YLow, 0) }

func (b BoundingBox) Empty() bool {
	return b.XHigh <= b.XLow || b.YHigh <= b.YLow
}

// Contains reports whether cell (x, y) lies inside the box.
func (b BoundingBox) Contains(x, y int) bool {
	return x >= b.XLow && x < b.XHigh && y >= b.YLow && y < b.YHigh
}

// Center returns the geometric center of the box.
func (b BoundingBox) Center() (float64, float64) {
	return float64(b.XLow+b.XHigh) / 2, float64(b.YLow+b.YHigh) / 2
}

// Grow expands the box by n cells on every side.
func (b BoundingBox) Grow(n int) BoundingBox {
	return BoundingBox{XLow: b.XLow - n, YLow: b.YLow - n, XHigh: b.XHigh + n, YHigh: b.YHigh + n}
}

// Intersect returns the overlap of both boxes. Disjoint boxes yield an empty
// box whose high corner equals its low corner.
func (b BoundingBox) Intersect(o BoundingBox) BoundingBox {
	r := BoundingBox{
		XLow:  min(max(b.XLow, o.XLow), o.XHigh),
		YLow:  min(max(b.YLow, o.YLow), o.YHigh),
		XHigh: min(b.XHigh, o.XHigh),
		YHigh: min(b.YHigh, o.YHigh),
	}
	r.XHigh = max(r.XHigh, r.XLow)
	r.YHigh = max(r.YHigh, r.YLow)
	return r
}

// Cells returns an iterator over all cells of the box in row-major order.
func (b BoundingBox) Cells() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for y := b.YLow; y < b.YHigh; y++ {
			for x := b.XLow; x < b.XHigh; x++ {
				if !yield(x, y) {
					return
				}
			}
		}
	}
}
