package main

import (
	"database/sql"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/zenrsr/capx-stockfolio/internal/backend"
	"github.com/zenrsr/capx-stockfolio/internal/cache"
	"github.com/zenrsr/capx-stockfolio/internal/config"
	"github.com/zenrsr/capx-stockfolio/internal/db"
	"github.com/zenrsr/capx-stockfolio/internal/fetch"
	"github.com/zenrsr/capx-stockfolio/internal/insights"
	"github.com/zenrsr/capx-stockfolio/internal/market"
	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/pricing"
	"github.com/zenrsr/capx-stockfolio/internal/store"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	sqlDB  *sql.DB

	local     *store.SQLiteStore
	repo      store.HoldingRepository
	reference *market.ReferencePrices
	current   *pricing.CurrentResolver
	history   *pricing.HistoricalResolver
	insights  *insights.Service
}

func newApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	local := store.NewSQLiteStore(sqlDB)

	var repo store.HoldingRepository = local
	if cfg.BackendURL != "" {
		repo = backend.NewClient(cfg.BackendURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger.Named("backend"))
	}

	getter := fetch.NewClient(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		fetch.WithRetries(cfg.RetryMax, cfg.RetryDelay),
		fetch.WithLogger(logger.Named("fetch")),
	)
	providers := market.NewProviders(
		market.NewEquityProvider(getter, cfg.YahooBaseURL, cfg.ProxyURL),
		market.NewCryptoProvider(getter, cfg.DIABaseURL, cfg.BinanceBaseURL, cfg.QuoteCurrency),
	)
	reference := market.NewReferencePrices(getter, cfg.BinanceBaseURL, cfg.QuoteCurrency, cfg.ReferencePriceTTL, cache.NewMemory[float64]())

	pricingLog := logger.Named("pricing")
	current := pricing.NewCurrentResolver(providers, cache.NewMemory[float64](),
		pricing.WithCurrentTTL(cfg.CurrentPriceTTL),
		pricing.WithCryptoMirror(reference.Store()),
		pricing.WithCurrentLogger(pricingLog))
	history := pricing.NewHistoricalResolver(providers,
		cache.NewDurable[[]models.PricePoint](local, pricingLog), pricingLog)

	// insights stay off without an API key
	var insightSvc *insights.Service
	if cfg.FinnhubAPIKey != "" {
		finnhubGetter := fetch.NewClient(
			fetch.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			fetch.WithRetries(cfg.RetryMax, cfg.RetryDelay),
			fetch.WithHeader(market.FinnhubTokenHeader, cfg.FinnhubAPIKey),
			fetch.WithLogger(logger.Named("finnhub")))
		insightSvc = insights.NewService(market.NewFinnhub(finnhubGetter, cfg.FinnhubBaseURL),
			cfg.InsightsTTL, logger.Named("insights"))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		sqlDB:     sqlDB,
		local:     local,
		repo:      repo,
		reference: reference,
		current:   current,
		history:   history,
		insights:  insightSvc,
	}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	if err := a.sqlDB.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}
