// Package market talks to the third-party price providers. Each asset class
// has one PriceProvider; the class of a holding picks it once.
package market

import (
	"context"
	"fmt"

	"github.com/zenrsr/capx-stockfolio/internal/models"
)

// Getter is the retrying JSON GET every provider is built on.
type Getter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

type PriceProvider interface {
	Name() string
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	// HistoricalSeries returns one year of daily closes.
	HistoricalSeries(ctx context.Context, symbol string) ([]models.PricePoint, error)
}

type Providers struct {
	byClass map[models.AssetClass]PriceProvider
}

func NewProviders(equity, crypto PriceProvider) *Providers {
	return &Providers{byClass: map[models.AssetClass]PriceProvider{
		models.AssetEquity: equity,
		models.AssetCrypto: crypto,
	}}
}

func (p *Providers) For(class models.AssetClass) (PriceProvider, error) {
	provider, ok := p.byClass[class]
	if !ok || provider == nil {
		return nil, fmt.Errorf("no price provider for asset class %q", class)
	}
	return provider, nil
}
