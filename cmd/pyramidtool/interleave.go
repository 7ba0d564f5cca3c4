package main

import (
	"context"
	"flag"
	"log"

	"github.com/eak1mov/go-pyramid/tarzoom"
	"github.com/google/subcommands"
)

type interleaveCmd struct {
	outputPath string
}

func (c *interleaveCmd) Name() string     { return "interleave" }
func (c *interleaveCmd) Synopsis() string { return "merge per-channel tarzoom packs into one interleaved pack" }
func (c *interleaveCmd) Usage() string {
	return "pyramidtool interleave -o <path/output> <plane_0.tzi> <plane_1.tzi> ...\n"
}
func (c *interleaveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outputPath, "o", "", "Output pack path, without extension")
}

func (c *interleaveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.outputPath == "" || f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	index, err := tarzoom.Interleave(f.Args(), c.outputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	log.Printf("%v%v: %d channels, %d bytes", c.outputPath, tarzoom.DataExt, index.Stride, index.Offsets[len(index.Offsets)-1])
	return subcommands.ExitSuccess
}
