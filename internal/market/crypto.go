package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zenrsr/capx-stockfolio/internal/fetch"
	"github.com/zenrsr/capx-stockfolio/internal/models"
)

const (
	DefaultDIABaseURL     = "https://api.diadata.org"
	DefaultBinanceBaseURL = "https://api.binance.com"
	DefaultQuoteCurrency  = "USDT"
)

// CryptoProvider reads current prices from the DIA quotation endpoint and
// daily candles from Binance.
type CryptoProvider struct {
	getter     Getter
	diaBaseURL string
	binanceURL string
	quote      string
}

func NewCryptoProvider(getter Getter, diaBaseURL, binanceBaseURL, quote string) *CryptoProvider {
	if diaBaseURL == "" {
		diaBaseURL = DefaultDIABaseURL
	}
	if binanceBaseURL == "" {
		binanceBaseURL = DefaultBinanceBaseURL
	}
	if quote == "" {
		quote = DefaultQuoteCurrency
	}
	return &CryptoProvider{
		getter:     getter,
		diaBaseURL: strings.TrimRight(diaBaseURL, "/"),
		binanceURL: strings.TrimRight(binanceBaseURL, "/"),
		quote:      strings.ToUpper(quote),
	}
}

func (p *CryptoProvider) Name() string { return "DIA/Binance" }

func (p *CryptoProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	addr := fmt.Sprintf("%s/v1/quotation/%s", p.diaBaseURL, url.PathEscape(symbol))

	var jobj map[string]any
	if err := p.getter.GetJSON(ctx, addr, &jobj); err != nil {
		return 0, err
	}
	price, ok := jobj["Price"].(float64)
	if !ok {
		return 0, fetch.InvalidResponse("dia %s: Price is %T, not a number", symbol, jobj["Price"])
	}
	return price, nil
}

// HistoricalSeries reads 365 daily klines for symbol against the quote
// currency. Index 0 of a kline is the open time in milliseconds, index 4 the close.
func (p *CryptoProvider) HistoricalSeries(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	query := url.Values{
		"symbol":   {strings.ToUpper(symbol) + p.quote},
		"interval": {"1d"},
		"limit":    {"365"},
	}
	addr := p.binanceURL + "/api/v3/klines?" + query.Encode()

	var klines [][]any
	if err := p.getter.GetJSON(ctx, addr, &klines); err != nil {
		return nil, fmt.Errorf("historical data for crypto %s: %w", symbol, err)
	}
	if len(klines) == 0 {
		return nil, fetch.InvalidResponse("no historical data available for crypto %s", symbol)
	}

	points := make([]models.PricePoint, 0, len(klines))
	for i, k := range klines {
		if len(k) < 5 {
			return nil, fetch.InvalidResponse("crypto %s: kline %d has %d fields", symbol, i, len(k))
		}
		openMillis, ok := k[0].(float64)
		if !ok {
			return nil, fetch.InvalidResponse("crypto %s: kline %d open time is %T", symbol, i, k[0])
		}
		closePrice, err := decimalOf(k[4])
		if err != nil {
			return nil, fetch.InvalidResponse("crypto %s: kline %d close: %v", symbol, i, err)
		}
		points = append(points, models.PricePoint{
			Date:  models.DateOf(time.UnixMilli(int64(openMillis))),
			Price: closePrice.InexactFloat64(),
		})
	}
	return points, nil
}

// decimalOf reads a price Binance may send as a string or a number.
func decimalOf(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected %T", v)
	}
}
