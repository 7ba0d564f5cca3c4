package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/eak1mov/go-pyramid/tarzoom"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type tarzoomCmd struct {
	inputPath string
}

func (c *tarzoomCmd) Name() string     { return "tarzoom" }
func (c *tarzoomCmd) Synopsis() string { return "pack a DeepZoom tree into a tarzoom pack" }
func (c *tarzoomCmd) Usage() string {
	return "pyramidtool tarzoom -i <path/image.dzi>\n"
}
func (c *tarzoomCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input DeepZoom descriptor path, with or without .dzi")
}

func (c *tarzoomCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	basename := strings.TrimSuffix(c.inputPath, ".dzi")
	if basename == "" {
		log.Println("input path is not set")
		return subcommands.ExitFailure
	}

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	builder := tarzoom.NewBuilder(
		tarzoom.WithLogger(slog.Default()),
		tarzoom.WithProgress(func(done, total int) {
			if done == 1 {
				bar.ChangeMax(total)
			}
			bar.Set(done)
		}),
	)
	index, err := builder.Build(basename)
	bar.Finish()
	fmt.Println()

	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	log.Printf("%v%v: %d levels, %d bytes", basename, tarzoom.DataExt, index.Levels, index.Offsets[len(index.Offsets)-1])
	return subcommands.ExitSuccess
}
