package models

import (
	"strings"
	"time"
)

type AssetClass string

const (
	AssetEquity AssetClass = "EQUITY"
	AssetCrypto AssetClass = "CRYPTO"
)

// knownCryptoSymbols is the static set that decides the asset class of a ticker.
var knownCryptoSymbols = map[string]struct{}{
	"BTC": {}, "ETH": {}, "BNB": {}, "XRP": {}, "SOL": {},
	"ADA": {}, "DOGE": {}, "DOT": {}, "AVAX": {}, "LTC": {},
	"LINK": {}, "UNI": {}, "MATIC": {}, "ATOM": {}, "XLM": {},
	"TRX": {}, "SHIB": {}, "FIL": {}, "ICP": {}, "ALGO": {},
	"VET": {}, "APE": {}, "FTM": {}, "NEAR": {}, "HBAR": {},
}

// NormalizeTicker returns the canonical uppercase form of a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Classify returns the asset class of ticker by membership in the known crypto set.
func Classify(ticker string) AssetClass {
	if _, ok := knownCryptoSymbols[NormalizeTicker(ticker)]; ok {
		return AssetCrypto
	}
	return AssetEquity
}

func (c AssetClass) Valid() bool {
	return c == AssetEquity || c == AssetCrypto
}

type Holding struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Ticker       string     `json:"ticker"`
	AssetClass   AssetClass `json:"assetClass"`
	IsCrypto     bool       `json:"isCrypto"`
	Category     string     `json:"cat"`
	Quantity     float64    `json:"quantity"`
	BuyPrice     float64    `json:"buyPrice"`
	CurrentPrice float64    `json:"currentPrice"`
	ProfitLoss   float64    `json:"profitLoss"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Normalize canonicalizes the ticker, derives the asset class when it is
// missing and recomputes the profit/loss.
func (h Holding) Normalize() Holding {
	h.Ticker = NormalizeTicker(h.Ticker)
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		h.Name = h.Ticker
	}
	if !h.AssetClass.Valid() {
		h.AssetClass = Classify(h.Ticker)
	}
	h.IsCrypto = h.AssetClass == AssetCrypto
	h.ProfitLoss = (h.CurrentPrice - h.BuyPrice) * h.Quantity
	return h
}

type PricePoint struct {
	Date  Date    `json:"date"`
	Price float64 `json:"price"`
}

type ValuationPoint struct {
	Date  Date    `json:"date"`
	Value float64 `json:"value"`
}

type PriceAlert struct {
	ID             int64      `json:"id"`
	Ticker         string     `json:"ticker"`
	AssetClass     AssetClass `json:"assetClass"`
	UpperThreshold float64    `json:"upperThreshold"`
	LowerThreshold float64    `json:"lowerThreshold"`
	CreatedAt      time.Time  `json:"createdAt"`
	Triggered      bool       `json:"triggered"`
	TriggeredAt    *time.Time `json:"triggeredAt,omitempty"`
}

// Crossed reports whether price breaches one of the alert thresholds.
// A zero threshold is disabled.
func (a PriceAlert) Crossed(price float64) bool {
	if price <= 0 {
		return false
	}
	if a.UpperThreshold > 0 && price >= a.UpperThreshold {
		return true
	}
	return a.LowerThreshold > 0 && price <= a.LowerThreshold
}
