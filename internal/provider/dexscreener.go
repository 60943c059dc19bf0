package provider

import (
	"context"
	"strings"

	"milestone-bot/internal/domain"
)

const (
	dexScreenerBaseURL   = "https://api.dexscreener.com"
	dexScreenerBatchSize = 30
	wrappedSOL           = "So11111111111111111111111111111111111111112"
)

// DexScreener reads FDV (falling back to market cap) from the tokens endpoint.
type DexScreener struct {
	baseURL string
	client  *Client
	batch   batcher
}

// NewDexScreener creates a DexScreener provider.
func NewDexScreener(opts Options) *DexScreener {
	return &DexScreener{
		baseURL: opts.baseURL(dexScreenerBaseURL),
		client:  opts.client(),
		batch:   newBatcher("dexscreener", dexScreenerBatchSize, opts.Concurrency, true, opts.Logger),
	}
}

var _ Provider = (*DexScreener)(nil)

// Name returns the provider name.
func (p *DexScreener) Name() string { return "DexScreener" }

type dexPair struct {
	BaseToken struct {
		Address string `json:"address"`
	} `json:"baseToken"`
	FDV       *float64 `json:"fdv"`
	MarketCap *float64 `json:"marketCap"`
}

// Fetch returns caps for the given tokens.
func (p *DexScreener) Fetch(ctx context.Context, tokens []domain.Token) (map[string]float64, error) {
	return p.batch.fetch(ctx, tokens, p.fetchBatch)
}

func (p *DexScreener) fetchBatch(ctx context.Context, addresses []string) (map[string]float64, error) {
	var pairs []dexPair
	endpoint := p.baseURL + "/tokens/v1/solana/" + strings.Join(addresses, ",")
	if err := p.client.GetJSON(ctx, endpoint, nil, nil, &pairs); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(addresses))
	for _, pair := range pairs {
		addr := pair.BaseToken.Address
		if addr == "" {
			continue
		}
		// Pairs come most liquid first; keep the first usable value.
		if _, done := out[addr]; done {
			continue
		}
		if v := firstPositive(pair.FDV, pair.MarketCap); v > 0 {
			out[addr] = v
		}
	}
	return out, nil
}

// HealthCheck queries wrapped SOL.
func (p *DexScreener) HealthCheck(ctx context.Context) error {
	var pairs []dexPair
	if err := p.client.GetJSON(ctx, p.baseURL+"/tokens/v1/solana/"+wrappedSOL, nil, nil, &pairs); err != nil {
		return externalError("dexscreener.health", err)
	}
	return nil
}

func firstPositive(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil && *v > 0 {
			return *v
		}
	}
	return 0
}
