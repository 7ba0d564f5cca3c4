package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&planCmd{}, "")
	subcommands.Register(&fetchCmd{}, "")
	subcommands.Register(&tarzoomCmd{}, "")
	subcommands.Register(&interleaveCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
