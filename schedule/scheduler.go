// Package schedule turns a camera viewport into tile work: which pyramid
// level to show, which tiles to fetch first and which loaded tiles to draw
// while finer ones are still in flight.
//
// A Scheduler is synchronous and keeps no state between calls apart from
// the tiles it reads from and creates in the supplied tile.Cache. One
// scheduler per image layer may run concurrently with others as long as
// each uses its own cache.
package schedule

import (
	"log/slog"
	"math"
	"time"

	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/view"
)

// DefaultCacheLevels is the default prefetch horizon, in levels below the
// target level.
const DefaultCacheLevels = 3

// Query is the camera state of one scheduling pass.
type Query struct {
	Viewport  view.Viewport
	Transform view.Transform

	// Border is the prefetch margin, in tiles, added around the visible box
	// of every level.
	Border int

	// Bias shifts level selection: positive values prefer coarser levels.
	Bias float64
}

// Needed is the output of NeededBox: the target level and, for every level
// from 0 to Level, the tile-grid box covering the viewport.
type Needed struct {
	Level   int
	Pyramid []pyramid.BoundingBox
}

type Scheduler struct {
	geometry    *pyramid.Geometry
	cacheLevels int
	now         func() time.Time
	logger      *slog.Logger
}

type config struct {
	cacheLevels int
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*config)

// WithCacheLevels sets how many levels below the target level Needed may
// return. Zero restricts fetching to the target level.
func WithCacheLevels(levels int) Option {
	return func(c *config) { c.cacheLevels = levels }
}

// WithClock overrides the clock used to stamp touched tiles.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func New(geometry *pyramid.Geometry, opts ...Option) *Scheduler {
	config := config{
		cacheLevels: DefaultCacheLevels,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Scheduler{
		geometry:    geometry,
		cacheLevels: max(config.cacheLevels, 0),
		now:         config.now,
		logger:      config.logger,
	}
}

func (s *Scheduler) Geometry() *pyramid.Geometry {
	return s.geometry
}

// TargetLevel returns the pyramid level whose resolution matches the
// camera scale, shifted by bias.
func (s *Scheduler) TargetLevel(scale, bias float64) int {
	maxLevel := s.geometry.LevelCount() - 1
	raw := int(math.Floor(-math.Log2(scale) + bias))
	raw = min(max(raw, 0), maxLevel)
	return maxLevel - raw
}

// NeededBox computes the target level and the per-level grid boxes covering
// the viewport, expanded by the query border.
func (s *Scheduler) NeededBox(q Query) (Needed, error) {
	if err := q.Transform.Validate(); err != nil {
		return Needed{}, err
	}
	if s.geometry.SingleImage() {
		return Needed{Level: 0, Pyramid: []pyramid.BoundingBox{s.geometry.GridBox(0)}}, nil
	}

	bound, err := view.Project(q.Viewport, q.Transform)
	if err != nil {
		return Needed{}, err
	}

	target := s.TargetLevel(q.Transform.Scale, q.Bias)
	boxes := make([]pyramid.BoundingBox, target+1)
	for level := range boxes {
		box := s.geometry.Quantize(level, bound)
		boxes[level] = s.geometry.Expand(level, box, q.Border)
	}
	return Needed{Level: target, Pyramid: boxes}, nil
}
