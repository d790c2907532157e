package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/zenrsr/capx-stockfolio/internal/config"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

type historyCmd struct {
	cfg *config.Config
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "display the merged one-year value curve" }
func (*historyCmd) Usage() string {
	return `history <symbol>:<quantity>...

  Fetches one year of daily prices for each holding and prints the merged
  portfolio value curve as JSON, for example:

    history AAPL:2 BTC:0.01
`
}

func (c *historyCmd) SetFlags(*flag.FlagSet) {}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	list, err := parseHoldings(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	a, err := newApp(*c.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	res := a.history.Resolve(ctx, list)
	if res.Error != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", res.Error)
	}
	if err := printJSON(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseHoldings reads SYMBOL:QUANTITY arguments.
func parseHoldings(args []string) ([]models.Holding, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one <symbol>:<quantity> is required")
	}
	out := make([]models.Holding, 0, len(args))
	for _, arg := range args {
		symbol, qty, ok := strings.Cut(arg, ":")
		if !ok || strings.TrimSpace(symbol) == "" {
			return nil, fmt.Errorf("invalid holding %q, want <symbol>:<quantity>", arg)
		}
		q, err := strconv.ParseFloat(qty, 64)
		if err != nil || q <= 0 {
			return nil, fmt.Errorf("invalid quantity in %q", arg)
		}
		out = append(out, models.Holding{Ticker: symbol, Quantity: q}.Normalize())
	}
	return out, nil
}
