package portfolio

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zenrsr/capx-stockfolio/internal/models"
)

var ErrNoHistoricalData = errors.New("no holding produced historical data")

// HoldingSeries is one holding's quantity and its daily prices.
type HoldingSeries struct {
	Symbol   string
	Quantity float64
	Points   []models.PricePoint
}

// Merge sums quantity × price per date across all series. A holding with no
// point on a date contributes nothing that day. The curve is in ascending
// calendar order with one entry per distinct date.
func Merge(series []HoldingSeries) ([]models.ValuationPoint, error) {
	byDate := make(map[models.Date]decimal.Decimal)
	for _, s := range series {
		qty := decimal.NewFromFloat(s.Quantity)
		for _, p := range s.Points {
			byDate[p.Date] = byDate[p.Date].Add(qty.Mul(decimal.NewFromFloat(p.Price)))
		}
	}
	if len(byDate) == 0 {
		return nil, ErrNoHistoricalData
	}

	curve := make([]models.ValuationPoint, 0, len(byDate))
	for date, value := range byDate {
		curve = append(curve, models.ValuationPoint{Date: date, Value: value.InexactFloat64()})
	}
	sort.Slice(curve, func(i, j int) bool { return curve[i].Date.Before(curve[j].Date) })
	return curve, nil
}

var fallbackPrices = []float64{100, 105, 110, 108, 115, 120}

// FallbackCurve is the synthetic six month curve shown when no history could
// be loaded. It is scaled by the first holding's quantity, or 1.
func FallbackCurve(holdings []models.Holding) []models.ValuationPoint {
	qty := 1.0
	if len(holdings) > 0 && holdings[0].Quantity != 0 {
		qty = holdings[0].Quantity
	}
	start := models.NewDate(2023, 1, 1)
	curve := make([]models.ValuationPoint, len(fallbackPrices))
	for i, p := range fallbackPrices {
		curve[i] = models.ValuationPoint{
			Date:  start.AddMonths(i),
			Value: decimal.NewFromFloat(p).Mul(decimal.NewFromFloat(qty)).InexactFloat64(),
		}
	}
	return curve
}
