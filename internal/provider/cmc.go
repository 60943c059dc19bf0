package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"milestone-bot/internal/domain"
)

const (
	cmcBaseURL   = "https://pro-api.coinmarketcap.com/v1"
	cmcBatchSize = 100
)

// CoinMarketCap reads quote.USD.market_cap from the latest quotes endpoint.
// Token addresses are passed as symbols. Requires an API key.
type CoinMarketCap struct {
	baseURL string
	apiKey  string
	client  *Client
	batch   batcher
}

// NewCoinMarketCap creates a CoinMarketCap provider.
func NewCoinMarketCap(opts Options) *CoinMarketCap {
	return &CoinMarketCap{
		baseURL: opts.baseURL(cmcBaseURL),
		apiKey:  opts.APIKey,
		client:  opts.client(),
		batch:   newBatcher("cmc", cmcBatchSize, opts.Concurrency, false, opts.Logger),
	}
}

var _ Provider = (*CoinMarketCap)(nil)

// Name returns the provider name.
func (p *CoinMarketCap) Name() string { return "CoinMarketCap" }

type cmcQuotes struct {
	Data map[string]struct {
		Quote struct {
			USD struct {
				MarketCap *float64 `json:"market_cap"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

func (p *CoinMarketCap) header() http.Header {
	h := http.Header{}
	h.Set("X-CMC_PRO_API_KEY", p.apiKey)
	return h
}

// Fetch returns caps for the given tokens.
func (p *CoinMarketCap) Fetch(ctx context.Context, tokens []domain.Token) (map[string]float64, error) {
	return p.batch.fetch(ctx, tokens, p.fetchBatch)
}

func (p *CoinMarketCap) fetchBatch(ctx context.Context, symbols []string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("symbol", strings.Join(symbols, ","))
	q.Set("convert", "USD")

	var resp cmcQuotes
	if err := p.client.GetJSON(ctx, p.baseURL+"/cryptocurrency/quotes/latest", q, p.header(), &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if d, ok := resp.Data[s]; ok {
			if v := firstPositive(d.Quote.USD.MarketCap); v > 0 {
				out[s] = v
			}
		}
	}
	return out, nil
}

// HealthCheck calls /key/info.
func (p *CoinMarketCap) HealthCheck(ctx context.Context) error {
	if err := p.client.GetJSON(ctx, p.baseURL+"/key/info", nil, p.header(), nil); err != nil {
		return externalError("cmc.health", err)
	}
	return nil
}
