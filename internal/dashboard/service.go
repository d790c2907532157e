// Package dashboard turns the holdings list into the snapshot the UI renders:
// per-holding prices, totals, sector allocation, the valuation curve and any
// alerts that fired.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zenrsr/capx-stockfolio/internal/holdings"
	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/portfolio"
	"github.com/zenrsr/capx-stockfolio/internal/pricing"
	"github.com/zenrsr/capx-stockfolio/internal/store"
)

type Status string

const (
	StatusLoading Status = "loading"
	StatusEmpty   Status = "empty"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

const ErrorLoadingData = "error loading data"

type HoldingView struct {
	models.Holding
	Price        pricing.PriceResult `json:"price"`
	Value        float64             `json:"value"`
	ValueDisplay string              `json:"valueDisplay"`
}

type Snapshot struct {
	Status            Status                    `json:"status"`
	Message           string                    `json:"message,omitempty"`
	Fetching          bool                      `json:"isFetching"`
	Generation        uint64                    `json:"generation"`
	Holdings          []HoldingView             `json:"holdings"`
	Summary           portfolio.Summary         `json:"summary"`
	TotalDisplay      string                    `json:"totalDisplay"`
	ProfitLoss        float64                   `json:"profitLoss"`
	ProfitLossDisplay string                    `json:"profitLossDisplay"`
	Diversification   portfolio.Diversification `json:"diversification"`
	History           pricing.SeriesResult      `json:"history"`
	AlertsFired       []models.PriceAlert       `json:"alertsFired,omitempty"`
	Warnings          []string                  `json:"warnings,omitempty"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

type Service struct {
	holdings *holdings.Store
	current  *pricing.CurrentResolver
	history  *pricing.HistoricalResolver
	alerts   store.AlertRepository
	currency string
	logger   *zap.Logger
	now      func() time.Time

	kick chan struct{}

	mu         sync.RWMutex
	snapshot   Snapshot
	refreshing int
}

type Option func(*Service)

// WithAlerts evaluates the stored price alerts on every refresh.
func WithAlerts(repo store.AlertRepository) Option {
	return func(s *Service) { s.alerts = repo }
}

// WithCurrency sets the ISO code used for formatted amounts.
func WithCurrency(code string) Option {
	return func(s *Service) {
		if code != "" {
			s.currency = code
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(h *holdings.Store, current *pricing.CurrentResolver, history *pricing.HistoricalResolver, opts ...Option) *Service {
	s := &Service{
		holdings: h,
		current:  current,
		history:  history,
		currency: "USD",
		logger:   zap.NewNop(),
		now:      time.Now,
		kick:     make(chan struct{}, 1),
		snapshot: Snapshot{Status: StatusLoading, Holdings: []HoldingView{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the last committed snapshot.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snapshot
	out.Fetching = s.refreshing > 0
	return out
}

// Refresh reloads the holdings, resolves their prices and history and commits
// the result. A refresh whose holdings list was replaced while it ran is
// discarded and the previous snapshot is returned.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	s.setRefreshing(1)
	defer s.setRefreshing(-1)

	list, gen, err := s.holdings.Fetch(ctx)
	if err != nil {
		s.logger.Error("dashboard refresh failed", zap.Error(err))
		s.commitFailure(err)
		return s.Snapshot(), err
	}

	if len(list) == 0 {
		snap := Snapshot{
			Status:          StatusEmpty,
			Generation:      gen,
			Holdings:        []HoldingView{},
			Summary:         portfolio.Aggregate(nil, nil),
			TotalDisplay:    FormatMoney(0, s.currency),
			Diversification: portfolio.Diversify(nil, nil),
			History:         s.history.Resolve(ctx, nil),
			UpdatedAt:       s.now().UTC(),
		}
		snap.ProfitLossDisplay = snap.TotalDisplay
		s.commit(gen, snap)
		return s.Snapshot(), nil
	}

	results := s.resolvePrices(ctx, list)
	prices := make(map[string]float64, len(results))
	var warnings []string
	for i, r := range results {
		if r.Err != nil {
			warnings = append(warnings, r.Symbol+": "+r.Error)
			continue
		}
		// a zero quote is no quote; the holding keeps its last price
		if r.Price <= 0 {
			warnings = append(warnings, r.Symbol+": provider returned no usable price")
			results[i].Price = list[i].CurrentPrice
			continue
		}
		prices[r.Symbol] = r.Price
	}

	if !s.holdings.ApplyPrices(gen, prices) {
		s.logger.Debug("refresh superseded before prices applied", zap.Uint64("generation", gen))
		return s.Snapshot(), nil
	}
	for i, h := range list {
		if p, ok := prices[h.Ticker]; ok {
			h.CurrentPrice = p
			list[i] = h.Normalize()
		}
	}

	history := s.history.Resolve(ctx, list)
	if history.Error != "" {
		warnings = append(warnings, "history: "+history.Error)
	}

	summary := portfolio.Aggregate(list, prices)
	views := make([]HoldingView, len(list))
	var pnl float64
	for i, h := range list {
		views[i] = HoldingView{
			Holding:      h,
			Price:        results[i],
			Value:        summary.PerAssetValue[i].Value,
			ValueDisplay: FormatMoney(summary.PerAssetValue[i].Value, s.currency),
		}
		pnl += h.ProfitLoss
	}

	snap := Snapshot{
		Status:            StatusReady,
		Generation:        gen,
		Holdings:          views,
		Summary:           summary,
		TotalDisplay:      FormatMoney(summary.TotalValue, s.currency),
		ProfitLoss:        pnl,
		ProfitLossDisplay: FormatMoney(pnl, s.currency),
		Diversification:   portfolio.Diversify(list, prices),
		History:           history,
		AlertsFired:       s.evaluateAlerts(ctx, prices),
		Warnings:          warnings,
		UpdatedAt:         s.now().UTC(),
	}
	if len(prices) == 0 && history.Synthetic {
		snap.Status = StatusError
		snap.Message = ErrorLoadingData
	}

	s.commit(gen, snap)
	return s.Snapshot(), nil
}

func (s *Service) resolvePrices(ctx context.Context, list []models.Holding) []pricing.PriceResult {
	results := make([]pricing.PriceResult, len(list))
	var wg sync.WaitGroup
	for i, h := range list {
		i, h := i, h
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.current.Resolve(ctx, h.Ticker, h.AssetClass, h.CurrentPrice)
		}()
	}
	wg.Wait()
	return results
}

func (s *Service) evaluateAlerts(ctx context.Context, prices map[string]float64) []models.PriceAlert {
	if s.alerts == nil {
		return nil
	}
	alerts, err := s.alerts.ListAlerts(ctx)
	if err != nil {
		s.logger.Warn("list alerts", zap.Error(err))
		return nil
	}

	var fired []models.PriceAlert
	for _, alert := range alerts {
		if alert.Triggered {
			continue
		}
		price, ok := prices[models.NormalizeTicker(alert.Ticker)]
		if !ok || !alert.Crossed(price) {
			continue
		}
		now := s.now().UTC()
		if err := s.alerts.MarkAlertTriggered(ctx, alert.ID, now); err != nil {
			s.logger.Warn("mark alert triggered", zap.Int64("alert", alert.ID), zap.Error(err))
			continue
		}
		alert.Triggered = true
		alert.TriggeredAt = &now
		fired = append(fired, alert)
		s.logger.Info("price alert fired",
			zap.String("ticker", alert.Ticker),
			zap.Float64("price", price),
			zap.Float64("upper", alert.UpperThreshold),
			zap.Float64("lower", alert.LowerThreshold))
	}
	return fired
}

func (s *Service) commit(gen uint64, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.holdings.Generation() || gen < s.snapshot.Generation {
		s.logger.Debug("discarding stale snapshot", zap.Uint64("generation", gen))
		return
	}
	s.snapshot = snap
}

func (s *Service) commitFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Status = StatusError
	s.snapshot.Message = ErrorLoadingData
	s.snapshot.Warnings = []string{err.Error()}
	s.snapshot.UpdatedAt = s.now().UTC()
}

func (s *Service) setRefreshing(delta int) {
	s.mu.Lock()
	s.refreshing += delta
	s.mu.Unlock()
}

// Trigger asks a running poller for an immediate refresh. It never blocks.
func (s *Service) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// StartPolling refreshes once, then on every tick of interval and on every
// Trigger, until ctx is done.
func (s *Service) StartPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		case <-s.kick:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("polling refresh failed", zap.Error(err))
	}
}
