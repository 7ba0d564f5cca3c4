// Package fetch loads scheduled tiles with bounded concurrency and feeds
// their load state back into the tile cache.
package fetch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eak1mov/go-pyramid/tile"
	"golang.org/x/sync/semaphore"
)

const DefaultConcurrency = 8

// Cache is the tile cache a Fetcher reports to. Tiles that fail to load
// are deleted so that the next scheduling pass recreates them Unrequested.
type Cache interface {
	tile.Cache
	Delete(index int) bool
}

// Store persists loaded tile channels. Get returns an empty slice for
// channels that are not stored.
type Store interface {
	Get(id tile.ID, channel int) ([]byte, error)
	Put(id tile.ID, channel int, data []byte) error
}

// DeliverFunc receives the data of every loaded channel.
type DeliverFunc func(t *tile.Tile, channel int, data []byte)

type Fetcher struct {
	loader   Loader
	cache    Cache
	channels int
	sem      *semaphore.Weighted
	store    Store
	deliver  DeliverFunc
	logger   *slog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[int]job
}

type job struct {
	tile   *tile.Tile
	cancel context.CancelFunc
}

type config struct {
	Concurrency int64
	Store       Store
	Deliver     DeliverFunc
	Logger      *slog.Logger
}

type Option func(*config)

// WithConcurrency bounds the number of tiles loading at the same time.
func WithConcurrency(n int) Option {
	return func(c *config) { c.Concurrency = int64(max(n, 1)) }
}

// WithStore reads channels from s before falling back to the loader, and
// writes loaded channels back.
func WithStore(s Store) Option {
	return func(c *config) { c.Store = s }
}

func WithDeliver(deliver DeliverFunc) Option {
	return func(c *config) { c.Deliver = deliver }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

func New(loader Loader, cache Cache, channels int, opts ...Option) *Fetcher {
	config := config{
		Concurrency: DefaultConcurrency,
		Deliver:     func(*tile.Tile, int, []byte) {},
		Logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Fetcher{
		loader:   loader,
		cache:    cache,
		channels: max(channels, 1),
		sem:      semaphore.NewWeighted(config.Concurrency),
		store:    config.Store,
		deliver:  config.Deliver,
		logger:   config.Logger,
		inflight: make(map[int]job),
	}
}

// Schedule reconciles in-flight work with the latest scheduling tick: loads
// of tiles whose index is neither in wanted nor in tiles are cancelled, and
// Unrequested tiles are requested and started in list order. Pass
// Scheduler.Wanted as wanted so that requested tiles still covering the view
// keep loading. It returns the number of started tiles.
func (f *Fetcher) Schedule(ctx context.Context, tiles []*tile.Tile, wanted []int) int {
	keep := make(map[int]struct{}, len(tiles)+len(wanted))
	for _, index := range wanted {
		keep[index] = struct{}{}
	}
	for _, t := range tiles {
		keep[t.Index] = struct{}{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for index, j := range f.inflight {
		if _, ok := keep[index]; !ok {
			j.cancel()
		}
	}

	started := 0
	for _, t := range tiles {
		if _, ok := f.inflight[t.Index]; ok {
			continue
		}
		if err := t.Request(f.channels); err != nil {
			continue
		}
		jobCtx, cancel := context.WithCancel(ctx)
		f.inflight[t.Index] = job{tile: t, cancel: cancel}
		f.wg.Add(1)
		go f.load(jobCtx, t)
		started++
	}
	if started > 0 {
		f.logger.Debug("pyramid: scheduled tiles", "started", started, "inflight", len(f.inflight))
	}
	return started
}

// InFlight returns the number of tiles being loaded.
func (f *Fetcher) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

// Cancel cancels all in-flight loads.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.inflight {
		j.cancel()
	}
}

// Wait blocks until all started loads have finished.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

func (f *Fetcher) load(ctx context.Context, t *tile.Tile) {
	defer f.wg.Done()
	defer f.finish(t)

	if err := f.sem.Acquire(ctx, 1); err != nil {
		f.fail(t, err)
		return
	}
	defer f.sem.Release(1)

	for channel := range f.channels {
		data, err := f.loadChannel(ctx, channel, t)
		if err != nil {
			f.fail(t, err)
			return
		}
		state, err := t.ResolveChannel(int64(len(data)))
		if err != nil {
			f.fail(t, err)
			return
		}
		f.deliver(t, channel, data)
		if state == tile.Ready {
			f.logger.Debug("pyramid: tile ready", "tile", t.ID, "bytes", t.SizeBytes())
		}
	}
}

func (f *Fetcher) loadChannel(ctx context.Context, channel int, t *tile.Tile) ([]byte, error) {
	if f.store != nil {
		data, err := f.store.Get(t.ID, channel)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			return data, nil
		}
	}

	data, err := f.loader.Load(ctx, channel, t)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.Put(t.ID, channel, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// fail drops t from the cache. Tile state never moves backwards, so the
// next scheduling pass starts over with a fresh Unrequested tile.
func (f *Fetcher) fail(t *tile.Tile, err error) {
	if cached, ok := f.cache.Get(t.Index); ok && cached == t {
		f.cache.Delete(t.Index)
	}
	f.logger.Debug("pyramid: tile load failed", "tile", t.ID, "err", err)
}

func (f *Fetcher) finish(t *tile.Tile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.inflight[t.Index]; ok && j.tile == t {
		j.cancel()
		delete(f.inflight, t.Index)
	}
}
