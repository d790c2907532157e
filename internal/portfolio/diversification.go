package portfolio

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zenrsr/capx-stockfolio/internal/models"
)

type SectorAllocation struct {
	Sector     string  `json:"sector"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
	ProfitLoss float64 `json:"profitLoss"`
}

type Diversification struct {
	Sectors []SectorAllocation `json:"sectors"`
	// Uncategorized lists holdings left out of the breakdown. They still count
	// toward the portfolio totals.
	Uncategorized []string `json:"uncategorized,omitempty"`
}

// Diversify groups categorized holdings by sector, in order of first
// appearance. Each holding adds its value and profit/loss once; percentages
// are shares of the categorized value.
func Diversify(holdings []models.Holding, prices map[string]float64) Diversification {
	type acc struct {
		value, pnl decimal.Decimal
	}
	var order []string
	sectors := make(map[string]*acc)
	out := Diversification{Sectors: []SectorAllocation{}}

	total := decimal.Zero
	for _, h := range holdings {
		sector := strings.TrimSpace(h.Category)
		if sector == "" {
			out.Uncategorized = append(out.Uncategorized, models.NormalizeTicker(h.Ticker))
			continue
		}
		qty := decimal.NewFromFloat(h.Quantity)
		price := decimal.NewFromFloat(PriceOf(h, prices))
		value := qty.Mul(price)
		pnl := price.Sub(decimal.NewFromFloat(h.BuyPrice)).Mul(qty)

		a, ok := sectors[sector]
		if !ok {
			a = &acc{}
			sectors[sector] = a
			order = append(order, sector)
		}
		a.value = a.value.Add(value)
		a.pnl = a.pnl.Add(pnl)
		total = total.Add(value)
	}

	hundred := decimal.NewFromInt(100)
	for _, sector := range order {
		a := sectors[sector]
		pct := decimal.Zero
		if total.IsPositive() {
			pct = a.value.Div(total).Mul(hundred).Round(2)
		}
		out.Sectors = append(out.Sectors, SectorAllocation{
			Sector:     sector,
			Value:      a.value.InexactFloat64(),
			Percentage: pct.InexactFloat64(),
			ProfitLoss: a.pnl.InexactFloat64(),
		})
	}
	return out
}
