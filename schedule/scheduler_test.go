package schedule_test

import (
	"errors"
	"maps"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/eak1mov/go-pyramid/cache"
	"github.com/eak1mov/go-pyramid/pyramid"
	"github.com/eak1mov/go-pyramid/schedule"
	"github.com/eak1mov/go-pyramid/tile"
	"github.com/eak1mov/go-pyramid/view"
	"github.com/google/go-cmp/cmp"
)

func mustGeometry(t *testing.T, width, height, tileSide int) *pyramid.Geometry {
	t.Helper()
	g, err := pyramid.New(pyramid.Config{Width: width, Height: height, TileSide: tileSide})
	if err != nil {
		t.Fatalf("pyramid.New failed: %v", err)
	}
	return g
}

func fullView(g *pyramid.Geometry, scale float64) schedule.Query {
	return schedule.Query{
		Viewport:  view.Viewport{Width: float64(g.Width()), Height: float64(g.Height())},
		Transform: view.Transform{Scale: scale},
	}
}

func makeReady(t *testing.T, c tile.Cache, g *pyramid.Geometry, level, x, y int) *tile.Tile {
	t.Helper()
	index, ok := g.Index(level, x, y)
	if !ok {
		t.Fatalf("Index(%d, %d, %d) not found", level, x, y)
	}
	tl := c.GetOrCreate(index, func() *tile.Tile { return g.NewTile(index) })
	if err := tl.Request(1); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := tl.ResolveChannel(1); err != nil {
		t.Fatalf("ResolveChannel failed: %v", err)
	}
	return tl
}

func ids(tiles []*tile.Tile) []tile.ID {
	result := make([]tile.ID, len(tiles))
	for i, t := range tiles {
		result[i] = t.ID
	}
	return result
}

func TestTargetLevel(t *testing.T) {
	s := schedule.New(mustGeometry(t, 1024, 1024, 256))
	for _, tc := range []struct {
		scale float64
		bias  float64
		want  int
	}{
		{1, 0, 2},
		{4, 0, 2},
		{0.6, 0, 2},
		{0.5, 0, 1},
		{0.2, 0, 0},
		{0.01, 0, 0},
		{1, 1, 1},
		{0.5, 1, 0},
		{0.5, -1, 2},
	} {
		if got := s.TargetLevel(tc.scale, tc.bias); got != tc.want {
			t.Errorf("TargetLevel(%v, %v) = %v, want = %v", tc.scale, tc.bias, got, tc.want)
		}
	}
}

func TestNeededBoxLevelSelection(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)

	needed, err := s.NeededBox(fullView(g, 1))
	if err != nil {
		t.Fatalf("NeededBox failed: %v", err)
	}
	want := schedule.Needed{
		Level: 2,
		Pyramid: []pyramid.BoundingBox{
			{XLow: 0, YLow: 0, XHigh: 1, YHigh: 1},
			{XLow: 0, YLow: 0, XHigh: 2, YHigh: 2},
			{XLow: 0, YLow: 0, XHigh: 4, YHigh: 4},
		},
	}
	if diff := cmp.Diff(want, needed); diff != "" {
		t.Errorf("NeededBox(z=1) mismatch (-want+got):\n%v", diff)
	}

	needed, err = s.NeededBox(fullView(g, 0.2))
	if err != nil {
		t.Fatalf("NeededBox failed: %v", err)
	}
	want = schedule.Needed{
		Level:   0,
		Pyramid: []pyramid.BoundingBox{{XLow: 0, YLow: 0, XHigh: 1, YHigh: 1}},
	}
	if diff := cmp.Diff(want, needed); diff != "" {
		t.Errorf("NeededBox(z=0.2) mismatch (-want+got):\n%v", diff)
	}
}

func TestNeededBoxBorder(t *testing.T) {
	g := mustGeometry(t, 2048, 1024, 256)
	s := schedule.New(g)

	// 2x zoom on image pixels [512, 1024) x [256, 512)
	q := schedule.Query{
		Viewport:  view.Viewport{Width: 1024, Height: 512},
		Transform: view.Transform{TX: -1024, TY: -512, Scale: 2},
		Border:    1,
	}
	needed, err := s.NeededBox(q)
	if err != nil {
		t.Fatalf("NeededBox failed: %v", err)
	}
	want := []pyramid.BoundingBox{
		{XLow: 0, YLow: 0, XHigh: 1, YHigh: 1},
		{XLow: 0, YLow: 0, XHigh: 2, YHigh: 1},
		{XLow: 0, YLow: 0, XHigh: 3, YHigh: 2},
		{XLow: 1, YLow: 0, XHigh: 5, YHigh: 3},
	}
	if got := needed.Level; got != 3 {
		t.Errorf("Level = %v, want = 3", got)
	}
	if diff := cmp.Diff(want, needed.Pyramid); diff != "" {
		t.Errorf("NeededBox mismatch (-want+got):\n%v", diff)
	}

	for border := range 5 {
		q.Border = border
		needed, err := s.NeededBox(q)
		if err != nil {
			t.Fatalf("NeededBox failed: %v", err)
		}
		for level, box := range needed.Pyramid {
			extent := g.GridExtent(level)
			if box.XLow < 0 || box.YLow < 0 || box.XHigh > extent.X || box.YHigh > extent.Y {
				t.Errorf("border %d: level %d box %v exceeds grid %v", border, level, box, extent)
			}
		}
	}
}

func TestNeededBoxSingleImage(t *testing.T) {
	g, err := pyramid.NewImage(800, 600)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	s := schedule.New(g)
	needed, err := s.NeededBox(fullView(g, 3))
	if err != nil {
		t.Fatalf("NeededBox failed: %v", err)
	}
	want := schedule.Needed{Level: 0, Pyramid: []pyramid.BoundingBox{{XHigh: 1, YHigh: 1}}}
	if diff := cmp.Diff(want, needed); diff != "" {
		t.Errorf("NeededBox mismatch (-want+got):\n%v", diff)
	}
}

func TestInvalidScale(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	q := fullView(g, 0)
	if _, err := s.NeededBox(q); !errors.Is(err, view.ErrInvalidScale) {
		t.Errorf("NeededBox error = %v, want %v", err, view.ErrInvalidScale)
	}
	if _, err := s.Needed(q, cache.New(), 0); !errors.Is(err, view.ErrInvalidScale) {
		t.Errorf("Needed error = %v, want %v", err, view.ErrInvalidScale)
	}
	if _, err := s.Available(q, cache.New()); !errors.Is(err, view.ErrInvalidScale) {
		t.Errorf("Available error = %v, want %v", err, view.ErrInvalidScale)
	}
}

func TestInvalidTransform(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	q := fullView(g, 1)
	q.Transform.TX = math.NaN()
	if _, err := s.NeededBox(q); !errors.Is(err, view.ErrInvalidTransform) {
		t.Errorf("NeededBox error = %v, want %v", err, view.ErrInvalidTransform)
	}
	if _, err := s.Available(q, cache.New()); !errors.Is(err, view.ErrInvalidTransform) {
		t.Errorf("Available error = %v, want %v", err, view.ErrInvalidTransform)
	}
}

func TestTinyScale(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	c := cache.New()
	makeReady(t, c, g, 0, 0, 0)

	for _, scale := range []float64{1e-3, 1e-12, 1e-20, 1e-300} {
		needed, err := s.NeededBox(fullView(g, scale))
		if err != nil {
			t.Fatalf("NeededBox(z=%v) failed: %v", scale, err)
		}
		want := schedule.Needed{Level: 0, Pyramid: []pyramid.BoundingBox{{XHigh: 1, YHigh: 1}}}
		if diff := cmp.Diff(want, needed); diff != "" {
			t.Errorf("NeededBox(z=%v) mismatch (-want+got):\n%v", scale, diff)
		}
		got := available(t, s, fullView(g, scale), c)
		if diff := cmp.Diff([]renderable{{ID: tile.ID{}, Complete: true}}, got); diff != "" {
			t.Errorf("Available(z=%v) mismatch (-want+got):\n%v", scale, diff)
		}
	}
}

func TestNeededEndToEnd(t *testing.T) {
	g := mustGeometry(t, 2048, 1024, 256)
	if got, want := g.LevelCount(), 4; got != want {
		t.Fatalf("LevelCount() = %v, want = %v", got, want)
	}
	s := schedule.New(g, schedule.WithCacheLevels(0))
	c := cache.New()

	needed, err := s.NeededBox(fullView(g, 1))
	if err != nil {
		t.Fatalf("NeededBox failed: %v", err)
	}
	if got, want := needed.Pyramid[3], (pyramid.BoundingBox{XHigh: 8, YHigh: 4}); got != want {
		t.Errorf("Pyramid[3] = %v, want = %v", got, want)
	}

	tiles, err := s.Needed(fullView(g, 1), c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if got, want := len(tiles), 32; got != want {
		t.Fatalf("len(Needed) = %v, want = %v", got, want)
	}
	if got, want := tiles[0].ID, (tile.ID{Level: 3, X: 4, Y: 2}); got != want {
		t.Errorf("first tile = %v, want = %v", got, want)
	}
	distance := func(id tile.ID) float64 {
		return math.Abs(float64(id.X)-4) + math.Abs(float64(id.Y)-2)
	}
	for i, tl := range tiles {
		if got := tl.Priority(); got != 0 {
			t.Errorf("tile %v priority = %v, want = 0", tl.ID, got)
		}
		if got := tl.ID.Level; got != 3 {
			t.Errorf("tile %v level = %v, want = 3", tl.ID, got)
		}
		if i > 0 && distance(tiles[i-1].ID) > distance(tl.ID) {
			t.Errorf("tile %v (distance %v) ordered after %v (distance %v)",
				tl.ID, distance(tl.ID), tiles[i-1].ID, distance(tiles[i-1].ID))
		}
	}
	if got, want := c.Len(), 32; got != want {
		t.Errorf("cache Len() = %v, want = %v", got, want)
	}
}

func TestNeededCoarseToFine(t *testing.T) {
	g := mustGeometry(t, 2048, 1024, 256)
	s := schedule.New(g)

	tiles, err := s.Needed(fullView(g, 1), cache.New(), 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if got, want := len(tiles), 1+2+8+32; got != want {
		t.Fatalf("len(Needed) = %v, want = %v", got, want)
	}
	for i, tl := range tiles {
		if got, want := tl.Priority(), 3-tl.ID.Level; got != want {
			t.Errorf("tile %v priority = %v, want = %v", tl.ID, got, want)
		}
		if i > 0 && tiles[i-1].ID.Level > tl.ID.Level {
			t.Errorf("tile %v ordered after finer tile %v", tl.ID, tiles[i-1].ID)
		}
	}

	s = schedule.New(g, schedule.WithCacheLevels(1))
	tiles, err = s.Needed(fullView(g, 1), cache.New(), 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if got, want := len(tiles), 8+32; got != want {
		t.Errorf("len(Needed) with horizon 1 = %v, want = %v", got, want)
	}
}

func TestNeededIdempotent(t *testing.T) {
	g := mustGeometry(t, 3000, 2000, 256)
	s := schedule.New(g)
	c := cache.New()
	q := schedule.Query{
		Viewport:  view.Viewport{Width: 800, Height: 600},
		Transform: view.Transform{TX: -300, TY: -100, Scale: 0.8, Rotation: 10},
		Border:    1,
	}

	first, err := s.Needed(q, c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	second, err := s.Needed(q, c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("Needed returned no tiles")
	}
	if diff := cmp.Diff(ids(first), ids(second)); diff != "" {
		t.Errorf("Needed not idempotent (-first+second):\n%v", diff)
	}
}

func TestWanted(t *testing.T) {
	g := mustGeometry(t, 3000, 2000, 256)
	s := schedule.New(g)
	c := cache.New()
	q := schedule.Query{
		Viewport:  view.Viewport{Width: 800, Height: 600},
		Transform: view.Transform{TX: -300, TY: -100, Scale: 0.8, Rotation: 10},
		Border:    1,
	}

	wanted, err := s.Wanted(q)
	if err != nil {
		t.Fatalf("Wanted failed: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Wanted created %d tiles", c.Len())
	}

	needed, err := s.Needed(q, c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	for _, tl := range needed[:len(needed)/2] {
		if err := tl.Request(1); err != nil {
			t.Fatalf("Request failed: %v", err)
		}
	}

	// requested tiles stay wanted
	visited := slices.Sorted(maps.Keys(maps.Collect(c.All())))
	if diff := cmp.Diff(visited, wanted); diff != "" {
		t.Errorf("Wanted mismatch (-visited+wanted):\n%v", diff)
	}
	again, err := s.Wanted(q)
	if err != nil {
		t.Fatalf("Wanted failed: %v", err)
	}
	if diff := cmp.Diff(wanted, again); diff != "" {
		t.Errorf("Wanted not stable (-first+second):\n%v", diff)
	}
}

func TestNeededSkipsRequested(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g, schedule.WithCacheLevels(0))
	c := cache.New()

	tiles, err := s.Needed(fullView(g, 1), c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if err := tiles[0].Request(2); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	makeReady(t, c, g, 2, 0, 0)

	again, err := s.Needed(fullView(g, 1), c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if got, want := len(again), 14; got != want {
		t.Errorf("len(Needed) = %v, want = %v", got, want)
	}
	for _, tl := range again {
		if tl == tiles[0] || tl.ID == (tile.ID{Level: 2}) {
			t.Errorf("Needed returned non-Unrequested tile %v", tl.ID)
		}
	}
}

func TestNeededMaxResultsAndTouch(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := schedule.New(g, schedule.WithClock(func() time.Time { return now }))

	tiles, err := s.Needed(fullView(g, 1), cache.New(), 3)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	if got, want := len(tiles), 3; got != want {
		t.Fatalf("len(Needed) = %v, want = %v", got, want)
	}
	if got, want := tiles[0].ID, (tile.ID{}); got != want {
		t.Errorf("first tile = %v, want = %v", got, want)
	}
	for _, tl := range tiles {
		if got := tl.LastTouched(); !got.Equal(now) {
			t.Errorf("tile %v LastTouched() = %v, want = %v", tl.ID, got, now)
		}
	}
}

type renderable struct {
	ID       tile.ID
	Complete bool
}

func available(t *testing.T, s *schedule.Scheduler, q schedule.Query, c tile.Cache) []renderable {
	t.Helper()
	result, err := s.Available(q, c)
	if err != nil {
		t.Fatalf("Available failed: %v", err)
	}
	got := make([]renderable, len(result))
	for i, r := range result {
		got[i] = renderable{ID: r.Tile.ID, Complete: r.Complete}
	}
	return got
}

func TestAvailableCoarsestOnly(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	c := cache.New()
	makeReady(t, c, g, 0, 0, 0)

	// unrelated requested tiles must not be drawn
	tiles, err := s.Needed(fullView(g, 1), c, 0)
	if err != nil {
		t.Fatalf("Needed failed: %v", err)
	}
	for _, tl := range tiles {
		if err := tl.Request(1); err != nil {
			t.Fatalf("Request failed: %v", err)
		}
	}

	for _, scale := range []float64{1, 0.6, 4} {
		got := available(t, s, fullView(g, scale), c)
		want := []renderable{{ID: tile.ID{}, Complete: false}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Available(z=%v) mismatch (-want+got):\n%v", scale, diff)
		}
	}

	// at the coarsest level nothing finer is pending
	got := available(t, s, fullView(g, 0.2), c)
	want := []renderable{{ID: tile.ID{}, Complete: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Available(z=0.2) mismatch (-want+got):\n%v", diff)
	}
}

func TestAvailableFallback(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	c := cache.New()
	makeReady(t, c, g, 0, 0, 0)
	makeReady(t, c, g, 1, 0, 0)
	makeReady(t, c, g, 2, 3, 3)

	got := available(t, s, fullView(g, 1), c)
	want := []renderable{
		{ID: tile.ID{Level: 0, X: 0, Y: 0}, Complete: false},
		{ID: tile.ID{Level: 1, X: 0, Y: 0}, Complete: false},
		{ID: tile.ID{Level: 2, X: 3, Y: 3}, Complete: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Available mismatch (-want+got):\n%v", diff)
	}
}

func TestAvailableComplete(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	c := cache.New()
	makeReady(t, c, g, 0, 0, 0)
	for x, y := range g.GridBox(1).Cells() {
		makeReady(t, c, g, 1, x, y)
	}

	// target level 1: every cell has its own tile
	got := available(t, s, fullView(g, 0.5), c)
	if got, want := len(got), 4; got != want {
		t.Fatalf("len(Available) = %v, want = %v", got, want)
	}
	for _, r := range got {
		if r.ID.Level != 1 || !r.Complete {
			t.Errorf("Available returned %+v, want complete level 1 tile", r)
		}
	}
}

func TestAvailableNothingReady(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	if got := available(t, s, fullView(g, 1), cache.New()); len(got) != 0 {
		t.Errorf("Available = %v, want empty", got)
	}
}

func TestAvailableOutsideImage(t *testing.T) {
	g := mustGeometry(t, 1024, 1024, 256)
	s := schedule.New(g)
	c := cache.New()
	makeReady(t, c, g, 0, 0, 0)

	q := schedule.Query{
		Viewport:  view.Viewport{Width: 500, Height: 500},
		Transform: view.Transform{TX: 5000, TY: 5000, Scale: 1},
		Border:    3,
	}
	if got := available(t, s, q, c); len(got) != 0 {
		t.Errorf("Available = %v, want empty", got)
	}
}
