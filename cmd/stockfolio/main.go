package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/zenrsr/capx-stockfolio/internal/config"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err := config.Defaults()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.RegisterFlags(flag.CommandLine)

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{cfg: &cfg}, "")
	commander.Register(&quoteCmd{cfg: &cfg}, "prices")
	commander.Register(&historyCmd{cfg: &cfg}, "prices")
	commander.Register(&insightsCmd{cfg: &cfg}, "prices")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
