package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/zenrsr/capx-stockfolio/internal/dashboard"
	"github.com/zenrsr/capx-stockfolio/internal/holdings"
	"github.com/zenrsr/capx-stockfolio/internal/insights"
	"github.com/zenrsr/capx-stockfolio/internal/market"
	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/pricing"
	"github.com/zenrsr/capx-stockfolio/internal/store"
)

type Server struct {
	holdings  *holdings.Store
	dashboard *dashboard.Service
	current   *pricing.CurrentResolver
	history   *pricing.HistoricalResolver
	reference *market.ReferencePrices
	insights  *insights.Service
	alerts    store.AlertRepository
	logger    *zap.Logger
	router    *mux.Router
}

type Deps struct {
	Holdings  *holdings.Store
	Dashboard *dashboard.Service
	Current   *pricing.CurrentResolver
	History   *pricing.HistoricalResolver
	Reference *market.ReferencePrices
	// Insights is optional; without it /api/insights answers 503.
	Insights *insights.Service
	Alerts   store.AlertRepository
	Logger   *zap.Logger
}

func NewServer(d Deps) *Server {
	server := &Server{
		holdings:  d.Holdings,
		dashboard: d.Dashboard,
		current:   d.Current,
		history:   d.History,
		reference: d.Reference,
		insights:  d.Insights,
		alerts:    d.Alerts,
		logger:    d.Logger,
	}
	if server.logger == nil {
		server.logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(requestLogger(server.logger))
	r.Use(corsMiddleware)

	r.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/stocks", server.handleListHoldings).Methods(http.MethodGet)
	r.HandleFunc("/stocks", server.handleCreateHolding).Methods(http.MethodPost)
	r.HandleFunc("/stocks/{id}", server.handleGetHolding).Methods(http.MethodGet)
	r.HandleFunc("/stocks/{id}", server.handleUpdateHolding).Methods(http.MethodPut)
	r.HandleFunc("/stocks/{id}", server.handleDeleteHolding).Methods(http.MethodDelete)

	r.HandleFunc("/api/dashboard", server.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard/refresh", server.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/prices/{symbol}", server.handleCurrentPrice).Methods(http.MethodGet)
	r.HandleFunc("/api/history", server.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/market/{symbol}", server.handleMarket).Methods(http.MethodGet)
	r.HandleFunc("/api/insights/{symbol}", server.handleInsights).Methods(http.MethodGet)

	r.HandleFunc("/api/alerts", server.handleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", server.handleCreateAlert).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/{id}", server.handleDeleteAlert).Methods(http.MethodDelete)

	// Preflight for every route above.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server.router = r
	return server
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentHoldings serves the session list, loading it on first use.
func (s *Server) currentHoldings(ctx context.Context) ([]models.Holding, error) {
	if s.holdings.Loaded() {
		list, _ := s.holdings.List()
		return list, nil
	}
	list, _, err := s.holdings.Fetch(ctx)
	return list, err
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	list, err := s.currentHoldings(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetHolding(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h, err := s.holdings.Get(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleCreateHolding(w http.ResponseWriter, r *http.Request) {
	var req models.Holding
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := s.holdings.Add(r.Context(), req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	s.dashboard.Trigger()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateHolding(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req models.Holding
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.ID = id

	updated, err := s.holdings.Edit(r.Context(), req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	s.dashboard.Trigger()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.holdings.Delete(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	s.dashboard.Trigger()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dashboard.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dashboard.Refresh(r.Context())
	if err != nil {
		s.logger.Warn("manual refresh failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCurrentPrice(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeTicker(mux.Vars(r)["symbol"])
	fallback := 0.0
	if raw := r.URL.Query().Get("fallback"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fallback must be a non-negative number"})
			return
		}
		fallback = v
	}
	writeJSON(w, http.StatusOK, s.current.Resolve(r.Context(), symbol, models.Classify(symbol), fallback))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.currentHoldings(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.history.Resolve(r.Context(), list))
}

type marketResponse struct {
	Symbol     string              `json:"symbol"`
	TodayPrice float64             `json:"todayPrice"`
	Error      string              `json:"error,omitempty"`
	Series     []models.PricePoint `json:"series,omitempty"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeTicker(mux.Vars(r)["symbol"])
	series, static := market.StaticMonthly(symbol)
	if models.Classify(symbol) != models.AssetCrypto && !static {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": symbol + " is not a known crypto symbol"})
		return
	}

	out := marketResponse{Symbol: symbol, Series: series}
	price, err := s.reference.Get(r.Context(), symbol)
	if err != nil {
		out.Error = pricing.Describe(err)
	} else {
		out.TodayPrice = price
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.insights == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "insights are disabled: FINNHUB_API_KEY is not set"})
		return
	}
	symbol := models.NormalizeTicker(mux.Vars(r)["symbol"])
	if models.Classify(symbol) == models.AssetCrypto {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": symbol + " is not an equity"})
		return
	}
	writeJSON(w, http.StatusOK, s.insights.Lookup(r.Context(), symbol))
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.ListAlerts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker         string  `json:"ticker"`
		UpperThreshold float64 `json:"upperThreshold"`
		LowerThreshold float64 `json:"lowerThreshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req.Ticker = models.NormalizeTicker(req.Ticker)
	switch {
	case req.Ticker == "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticker is required"})
		return
	case req.UpperThreshold < 0 || req.LowerThreshold < 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "thresholds cannot be negative"})
		return
	case req.UpperThreshold == 0 && req.LowerThreshold == 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "set an upper or a lower threshold"})
		return
	case req.UpperThreshold > 0 && req.LowerThreshold >= req.UpperThreshold:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lower threshold must be below upper threshold"})
		return
	}

	created, err := s.alerts.CreateAlert(r.Context(), models.PriceAlert{
		Ticker:         req.Ticker,
		AssetClass:     models.Classify(req.Ticker),
		UpperThreshold: req.UpperThreshold,
		LowerThreshold: req.LowerThreshold,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.dashboard.Trigger()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.alerts.DeleteAlert(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, holdings.ErrInvalidHolding), errors.Is(err, holdings.ErrTickerImmutable):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		}, ","))
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
