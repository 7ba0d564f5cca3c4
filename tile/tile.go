// Package tile provides the tile value object, its load state machine and
// the cache contract shared by the scheduler and fetchers.
package tile

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ID represents tile coordinates inside a pyramid: level 0 is the coarsest.
type ID struct {
	Level int
	X     int
	Y     int
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Level, id.X, id.Y)
}

// Location represents the absolute location of tile data inside a packed file.
type Location struct {
	Offset uint64
	Length uint64
}

// End returns the offset one past the last byte.
func (l Location) End() uint64 {
	return l.Offset + l.Length
}

type State uint8

const (
	Unrequested State = iota
	Requested
	PartiallyLoaded
	Ready
)

func (s State) String() string {
	switch s {
	case Unrequested:
		return "unrequested"
	case Requested:
		return "requested"
	case PartiallyLoaded:
		return "partially-loaded"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

var ErrInvalidTransition = errors.New("pyramid: invalid tile state transition")

// notRequested is the missing-channel sentinel of an Unrequested tile.
const notRequested = -1

// Tile is the load state of one grid cell. It is owned by a Cache; the
// scheduler only reads tiles and creates absent ones. All mutable fields are
// guarded by the tile's own mutex so that fetcher updates are visible to the
// next scheduling pass without holding the cache lock.
type Tile struct {
	Index int
	ID    ID

	mu          sync.Mutex
	channels    int
	missing     int
	priority    int
	lastTouched time.Time
	location    *Location
	sizeBytes   int64
}

// New creates an Unrequested tile.
func New(index int, id ID) *Tile {
	return &Tile{Index: index, ID: id, missing: notRequested}
}

func (t *Tile) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tile) stateLocked() State {
	switch {
	case t.missing == notRequested:
		return Unrequested
	case t.missing == 0:
		return Ready
	case t.missing < t.channels:
		return PartiallyLoaded
	}
	return Requested
}

// MissingChannels returns the number of pending channel loads, or -1 if the
// tile has not been requested yet.
func (t *Tile) MissingChannels() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.missing
}

// Request moves an Unrequested tile to Requested with the given number of
// pending channels.
func (t *Tile) Request(channels int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if channels <= 0 {
		return fmt.Errorf("%w: request %v with %d channels", ErrInvalidTransition, t.ID, channels)
	}
	if t.missing != notRequested {
		return fmt.Errorf("%w: request %v in state %v", ErrInvalidTransition, t.ID, t.stateLocked())
	}
	t.channels = channels
	t.missing = channels
	return nil
}

// ResolveChannel records one loaded channel of size bytes and returns the
// resulting state.
func (t *Tile) ResolveChannel(size int64) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.missing <= 0 {
		return t.stateLocked(), fmt.Errorf("%w: resolve %v in state %v", ErrInvalidTransition, t.ID, t.stateLocked())
	}
	t.missing--
	t.sizeBytes += size
	return t.stateLocked(), nil
}

func (t *Tile) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

func (t *Tile) SetPriority(priority int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.priority = priority
}

func (t *Tile) LastTouched() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTouched
}

func (t *Tile) Touch(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTouched = now
}

// Location returns the byte range of the tile in a packed file, if known.
func (t *Tile) Location() (Location, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.location == nil {
		return Location{}, false
	}
	return *t.location, true
}

func (t *Tile) SetLocation(location Location) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = &location
}

// SizeBytes returns the number of bytes loaded so far.
func (t *Tile) SizeBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sizeBytes
}

// Cache is the tile map consumed by the scheduler. Implementations own the
// tiles; the scheduler never deletes entries.
type Cache interface {
	Has(index int) bool
	Get(index int) (*Tile, bool)

	// GetOrCreate returns the tile stored under index, storing the result
	// of create first if there is none.
	GetOrCreate(index int, create func() *Tile) *Tile
}
