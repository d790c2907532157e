package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/zenrsr/capx-stockfolio/internal/api"
	"github.com/zenrsr/capx-stockfolio/internal/config"
	"github.com/zenrsr/capx-stockfolio/internal/dashboard"
	"github.com/zenrsr/capx-stockfolio/internal/holdings"
)

type serveCmd struct {
	cfg      *config.Config
	currency string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the dashboard HTTP server" }
func (*serveCmd) Usage() string {
	return `serve [-currency USD]

  Serves the holdings CRUD pass-through and the dashboard JSON endpoints,
  refreshing prices in the background.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "USD", "ISO code used to format dashboard amounts")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(*c.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	hs := holdings.NewStore(a.repo, a.logger.Named("holdings"))
	dash := dashboard.NewService(hs, a.current, a.history,
		dashboard.WithAlerts(a.local),
		dashboard.WithCurrency(c.currency),
		dashboard.WithLogger(a.logger.Named("dashboard")))
	apiServer := api.NewServer(api.Deps{
		Holdings:  hs,
		Dashboard: dash,
		Current:   a.current,
		History:   a.history,
		Reference: a.reference,
		Insights:  a.insights,
		Alerts:    a.local,
		Logger:    a.logger.Named("http"),
	})

	httpServer := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go dash.StartPolling(ctx, a.cfg.PollInterval)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown error", zap.Error(err))
		}
	}()

	a.logger.Info("stockfolio listening",
		zap.String("addr", a.cfg.Addr),
		zap.Bool("remoteBackend", a.cfg.BackendURL != ""),
		zap.Duration("poll", a.cfg.PollInterval))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("server failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
