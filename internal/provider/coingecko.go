package provider

import (
	"context"
	"net/url"
	"strings"

	"milestone-bot/internal/domain"
)

const (
	coinGeckoBaseURL   = "https://api.coingecko.com/api/v3"
	coinGeckoBatchSize = 100
)

// CoinGecko reads usd_market_cap from the simple price endpoint.
// Token addresses are passed as coin ids.
type CoinGecko struct {
	baseURL string
	client  *Client
	batch   batcher
}

// NewCoinGecko creates a CoinGecko provider.
func NewCoinGecko(opts Options) *CoinGecko {
	return &CoinGecko{
		baseURL: opts.baseURL(coinGeckoBaseURL),
		client:  opts.client(),
		batch:   newBatcher("coingecko", coinGeckoBatchSize, opts.Concurrency, false, opts.Logger),
	}
}

var _ Provider = (*CoinGecko)(nil)

// Name returns the provider name.
func (p *CoinGecko) Name() string { return "CoinGecko" }

type coinGeckoPrice struct {
	USDMarketCap *float64 `json:"usd_market_cap"`
}

// Fetch returns caps for the given tokens.
func (p *CoinGecko) Fetch(ctx context.Context, tokens []domain.Token) (map[string]float64, error) {
	return p.batch.fetch(ctx, tokens, p.fetchBatch)
}

func (p *CoinGecko) fetchBatch(ctx context.Context, ids []string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_market_cap", "true")

	var resp map[string]coinGeckoPrice
	if err := p.client.GetJSON(ctx, p.baseURL+"/simple/price", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if v := firstPositive(resp[id].USDMarketCap); v > 0 {
			out[id] = v
		}
	}
	return out, nil
}

// HealthCheck calls /ping.
func (p *CoinGecko) HealthCheck(ctx context.Context) error {
	if err := p.client.GetJSON(ctx, p.baseURL+"/ping", nil, nil, nil); err != nil {
		return externalError("coingecko.health", err)
	}
	return nil
}
