package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"flowdash/internal/stream"
	"flowdash/internal/util"
)

// AlpacaPortfolio is a PortfolioSource that polls the Alpaca brokerage
// API for account equity and open positions. Polling is rate limited so
// a tight feed interval never hammers the API.
type AlpacaPortfolio struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
}

var _ PortfolioSource = (*AlpacaPortfolio)(nil)

// NewAlpacaPortfolio creates a source using the given credentials.
// baseURL may be empty for the default (live) endpoint; paper accounts
// pass the paper-api URL.
func NewAlpacaPortfolio(apiKey, apiSecret, baseURL string, pollsPerMin int) *AlpacaPortfolio {
	if pollsPerMin <= 0 {
		pollsPerMin = 30
	}
	return &AlpacaPortfolio{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewRateLimiter(pollsPerMin),
	}
}

// Snapshot fetches the current account and positions.
func (a *AlpacaPortfolio) Snapshot(ctx context.Context) (stream.PortfolioUpdate, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return stream.PortfolioUpdate{}, err
	}

	var acct *alpaca.Account
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		acct, err = a.client.GetAccount()
		return err
	})
	if err != nil {
		return stream.PortfolioUpdate{}, fmt.Errorf("fetching account: %w", err)
	}

	var positions []alpaca.Position
	err = util.Retry(ctx, 3, time.Second, func() error {
		var err error
		positions, err = a.client.GetPositions()
		return err
	})
	if err != nil {
		return stream.PortfolioUpdate{}, fmt.Errorf("fetching positions: %w", err)
	}

	upd := stream.PortfolioUpdate{
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
		Positions:   make([]stream.Position, 0, len(positions)),
		Timestamp:   time.Now().UnixMilli(),
	}
	for _, p := range positions {
		upd.Positions = append(upd.Positions, stream.Position{
			Symbol:       p.Symbol,
			Qty:          p.Qty.InexactFloat64(),
			AvgEntry:     p.AvgEntryPrice.InexactFloat64(),
			MarketValue:  decimalValue(p.MarketValue),
			UnrealizedPL: decimalValue(p.UnrealizedPL),
		})
	}
	return upd, nil
}

// decimalValue unwraps optional decimal fields, which Alpaca omits for
// some asset classes.
func decimalValue(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
