package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/eak1mov/go-pyramid/cache"
	"github.com/eak1mov/go-pyramid/schedule"
	"github.com/google/subcommands"
)

type planCmd struct {
	configPath string
	maxResults int
}

func (c *planCmd) Name() string     { return "plan" }
func (c *planCmd) Synopsis() string { return "print tiles needed for a view" }
func (c *planCmd) Usage() string {
	return "pyramidtool plan -c <view.yaml> [-n <max tiles>]\n"
}
func (c *planCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "c", "", "View config file path")
	f.IntVar(&c.maxResults, "n", 0, "Maximum number of needed tiles to print (0 means all)")
}

func (c *planCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	adapter, err := openAdapter(ctx, http.DefaultClient, cfg.Source)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	g := adapter.Geometry()
	s := schedule.New(g, schedule.WithCacheLevels(cfg.Schedule.CacheLevels), schedule.WithLogger(slog.Default()))
	q := cfg.View.query()

	needed, err := s.NeededBox(q)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	fmt.Printf("image %dx%d, %d levels, %d tiles, target level %d\n",
		g.Width(), g.Height(), g.LevelCount(), g.TileCount(), needed.Level)
	for level, box := range needed.Pyramid {
		fmt.Printf("level %d: grid %v, box %v\n", level, g.GridExtent(level), box)
	}

	tiles, err := s.Needed(q, cache.New(), c.maxResults)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	for _, t := range tiles {
		for channel := range adapter.Channels() {
			resource, err := adapter.Locate(channel, t)
			if err != nil {
				log.Println(err)
				return subcommands.ExitFailure
			}
			if resource.Range != nil {
				fmt.Printf("%v\tpriority %d\t%v [%d, %d)\n", t.ID, t.Priority(), resource.URL, resource.Range.Offset, resource.Range.End())
			} else {
				fmt.Printf("%v\tpriority %d\t%v\n", t.ID, t.Priority(), resource.URL)
			}
		}
	}

	return subcommands.ExitSuccess
}
