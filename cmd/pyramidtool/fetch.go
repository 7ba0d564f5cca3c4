package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/eak1mov/go-pyramid/cache"
	"github.com/eak1mov/go-pyramid/fetch"
	"github.com/eak1mov/go-pyramid/schedule"
	"github.com/eak1mov/go-pyramid/store"
	"github.com/eak1mov/go-pyramid/tile"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type fetchCmd struct {
	configPath string
	outputPath string
	timeout    time.Duration
	passes     int
}

func (c *fetchCmd) Name() string     { return "fetch" }
func (c *fetchCmd) Synopsis() string { return "load all tiles of a view into a tile store" }
func (c *fetchCmd) Usage() string {
	return "pyramidtool fetch -c <view.yaml> -o <tiles.db> [-timeout <duration>]\n"
}
func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "c", "", "View config file path")
	f.StringVar(&c.outputPath, "o", "", "Output tile store path")
	f.DurationVar(&c.timeout, "timeout", 10*time.Minute, "Overall timeout")
	f.IntVar(&c.passes, "passes", 16, "Maximum number of scheduling passes")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if c.outputPath == "" {
		log.Println("output path is not set")
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := &http.Client{}
	adapter, err := openAdapter(ctx, client, cfg.Source)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	s, err := store.Open(c.outputPath,
		store.WithMetadata(map[string]string{"source": cfg.Source.URL, "type": cfg.Source.Type}),
		store.WithLogger(slog.Default()),
	)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	tiles := cache.New(cache.WithCapacity(cfg.Fetch.Capacity), cache.WithLogger(slog.Default()))
	scheduler := schedule.New(adapter.Geometry(),
		schedule.WithCacheLevels(cfg.Schedule.CacheLevels),
		schedule.WithLogger(slog.Default()),
	)
	fetcher := fetch.New(
		newLoader(cfg.Source, adapter, client, cfg.Fetch.UserAgent),
		tiles,
		adapter.Channels(),
		fetch.WithConcurrency(cfg.Fetch.Concurrency),
		fetch.WithStore(s),
		fetch.WithLogger(slog.Default()),
		fetch.WithDeliver(func(*tile.Tile, int, []byte) { bar.Add(1) }),
	)

	q := cfg.View.query()
	for range c.passes {
		needed, err := scheduler.Needed(q, tiles, 0)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		if len(needed) == 0 {
			break
		}
		wanted, err := scheduler.Wanted(q)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		fetcher.Schedule(ctx, needed, wanted)
		fetcher.Wait()
		tiles.Evict()
		if ctx.Err() != nil {
			break
		}
	}
	bar.Finish()
	fmt.Println()

	available, err := scheduler.Available(q, tiles)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	complete := 0
	for _, r := range available {
		if r.Complete {
			complete++
		}
	}
	stats := tiles.Stats()
	log.Printf("%d tiles drawable, %d complete, %d cached (%d bytes)", len(available), complete, stats.Len, stats.SizeBytes)

	if ctx.Err() != nil || complete < len(available) {
		log.Println("view is not fully loaded")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
