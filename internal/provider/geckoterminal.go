package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"milestone-bot/internal/domain"
)

const (
	geckoTerminalBaseURL   = "https://api.geckoterminal.com/api/v2"
	geckoTerminalBatchSize = 30
	defaultGeckoNetwork    = "solana"
)

// GeckoTerminal reads market_cap_usd from the simple token price endpoint,
// asking the API to fall back to FDV when market cap is unverified.
type GeckoTerminal struct {
	baseURL string
	network string
	client  *Client
	batch   batcher
}

// NewGeckoTerminal creates a GeckoTerminal provider.
func NewGeckoTerminal(opts Options) *GeckoTerminal {
	network := opts.Network
	if network == "" {
		network = defaultGeckoNetwork
	}
	return &GeckoTerminal{
		baseURL: opts.baseURL(geckoTerminalBaseURL),
		network: network,
		client:  opts.client(),
		batch:   newBatcher("geckoterminal", geckoTerminalBatchSize, opts.Concurrency, network == defaultGeckoNetwork, opts.Logger),
	}
}

var _ Provider = (*GeckoTerminal)(nil)

// Name returns the provider name.
func (p *GeckoTerminal) Name() string { return "GeckoTerminal" }

type geckoTokenPrice struct {
	Data struct {
		Attributes struct {
			MarketCapUSD map[string]*string `json:"market_cap_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// Fetch returns caps for the given tokens.
func (p *GeckoTerminal) Fetch(ctx context.Context, tokens []domain.Token) (map[string]float64, error) {
	return p.batch.fetch(ctx, tokens, p.fetchBatch)
}

func (p *GeckoTerminal) query() url.Values {
	q := url.Values{}
	q.Set("include_market_cap", "true")
	q.Set("mcap_fdv_fallback", "true")
	return q
}

func (p *GeckoTerminal) endpoint(addresses []string) string {
	return p.baseURL + "/simple/networks/" + url.PathEscape(p.network) + "/token_price/" + strings.Join(addresses, ",")
}

func (p *GeckoTerminal) fetchBatch(ctx context.Context, addresses []string) (map[string]float64, error) {
	var resp geckoTokenPrice
	if err := p.client.GetJSON(ctx, p.endpoint(addresses), p.query(), nil, &resp); err != nil {
		return nil, err
	}

	caps := resp.Data.Attributes.MarketCapUSD
	out := make(map[string]float64, len(addresses))
	for _, addr := range addresses {
		raw, ok := caps[addr]
		if !ok {
			// EVM networks return lowercased keys
			raw, ok = caps[strings.ToLower(addr)]
		}
		if !ok || raw == nil {
			continue
		}
		d, err := decimal.NewFromString(*raw)
		if err != nil || !d.IsPositive() {
			continue
		}
		out[addr] = d.InexactFloat64()
	}
	return out, nil
}

// HealthCheck queries wrapped SOL on the configured network.
func (p *GeckoTerminal) HealthCheck(ctx context.Context) error {
	var resp geckoTokenPrice
	if err := p.client.GetJSON(ctx, p.endpoint([]string{wrappedSOL}), p.query(), nil, &resp); err != nil {
		return externalError("geckoterminal.health", err)
	}
	return nil
}
