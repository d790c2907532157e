package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/zenrsr/capx-stockfolio/internal/config"
)

type insightsCmd struct {
	cfg *config.Config
}

func (*insightsCmd) Name() string     { return "insights" }
func (*insightsCmd) Synopsis() string { return "show an equity's quote and analyst recommendations" }
func (*insightsCmd) Usage() string {
	return `insights <symbol>

  Prints the intraday quote and the last six months of recommendation
  trends as JSON. Requires FINNHUB_API_KEY.
`
}

func (c *insightsCmd) SetFlags(*flag.FlagSet) {}

func (c *insightsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	if a.insights == nil {
		fmt.Fprintln(os.Stderr, "FINNHUB_API_KEY is not set")
		return subcommands.ExitFailure
	}
	res := a.insights.Lookup(ctx, f.Arg(0))
	if err := printJSON(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return subcommands.ExitFailure
	}
	if res.QuoteError != "" && res.TrendsError != "" {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
