// Package portfolio holds the side-effect free valuation math: current totals,
// the merged historical curve and the sector breakdown. Nothing here touches
// the network or a cache.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/zenrsr/capx-stockfolio/internal/models"
)

// NoTopAsset is reported when there are no holdings.
const NoTopAsset = "N/A"

type AssetValue struct {
	Symbol   string  `json:"symbol"`
	Value    float64 `json:"value"`
	IsCrypto bool    `json:"isCrypto"`
}

type Summary struct {
	TotalValue    float64      `json:"totalValue"`
	PerAssetValue []AssetValue `json:"perAssetValue"`
	TopAsset      string       `json:"topAsset"`
}

// PriceOf returns the price to value h with: the entry in prices for its
// ticker, or the holding's last known price.
func PriceOf(h models.Holding, prices map[string]float64) float64 {
	if p, ok := prices[models.NormalizeTicker(h.Ticker)]; ok {
		return p
	}
	return h.CurrentPrice
}

// Aggregate values every holding at its current price. The top asset is the
// first holding, in input order, with the largest value.
func Aggregate(holdings []models.Holding, prices map[string]float64) Summary {
	out := Summary{
		PerAssetValue: make([]AssetValue, 0, len(holdings)),
		TopAsset:      NoTopAsset,
	}

	total := decimal.Zero
	var top decimal.Decimal
	for i, h := range holdings {
		value := decimal.NewFromFloat(h.Quantity).Mul(decimal.NewFromFloat(PriceOf(h, prices)))
		total = total.Add(value)

		out.PerAssetValue = append(out.PerAssetValue, AssetValue{
			Symbol:   models.NormalizeTicker(h.Ticker),
			Value:    value.InexactFloat64(),
			IsCrypto: h.AssetClass == models.AssetCrypto,
		})
		if i == 0 || value.GreaterThan(top) {
			top = value
			out.TopAsset = models.NormalizeTicker(h.Ticker)
		}
	}
	out.TotalValue = total.InexactFloat64()
	return out
}
