package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/zenrsr/capx-stockfolio/internal/config"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

type quoteCmd struct {
	cfg      *config.Config
	fallback float64
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "resolve the current price of a symbol" }
func (*quoteCmd) Usage() string {
	return `quote [-fallback <price>] <symbol>

  Prints the resolved current price as JSON. Known crypto symbols are priced
  by the crypto provider, everything else as an equity.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.fallback, "fallback", 0, "price reported when the provider fails")
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one symbol is required")
		return subcommands.ExitUsageError
	}
	a, err := newApp(*c.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	symbol := models.NormalizeTicker(f.Arg(0))
	res := a.current.Resolve(ctx, symbol, models.Classify(symbol), c.fallback)
	if err := printJSON(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return subcommands.ExitFailure
	}
	if res.Err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
