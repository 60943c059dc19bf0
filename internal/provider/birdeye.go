package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"milestone-bot/internal/domain"
)

const (
	birdeyeBaseURL   = "https://public-api.birdeye.so/public"
	birdeyeBatchSize = 50
)

// Birdeye reports FDV from the token list endpoint. Requires an API key.
type Birdeye struct {
	baseURL string
	apiKey  string
	client  *Client
	batch   batcher
}

// NewBirdeye creates a Birdeye provider.
func NewBirdeye(opts Options) *Birdeye {
	return &Birdeye{
		baseURL: opts.baseURL(birdeyeBaseURL),
		apiKey:  opts.APIKey,
		client:  opts.client(),
		batch:   newBatcher("birdeye", birdeyeBatchSize, opts.Concurrency, true, opts.Logger),
	}
}

var _ Provider = (*Birdeye)(nil)

// Name returns the provider name.
func (p *Birdeye) Name() string { return "Birdeye" }

type birdeyeTokenList struct {
	Data struct {
		Tokens []struct {
			Address string   `json:"address"`
			FDV     *float64 `json:"fdv"`
		} `json:"tokens"`
	} `json:"data"`
}

func (p *Birdeye) header() http.Header {
	h := http.Header{}
	h.Set("X-API-KEY", p.apiKey)
	return h
}

// Fetch returns caps for the given tokens.
func (p *Birdeye) Fetch(ctx context.Context, tokens []domain.Token) (map[string]float64, error) {
	return p.batch.fetch(ctx, tokens, p.fetchBatch)
}

func (p *Birdeye) fetchBatch(ctx context.Context, addresses []string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("address", strings.Join(addresses, ","))

	var resp birdeyeTokenList
	if err := p.client.GetJSON(ctx, p.baseURL+"/v1/tokenlist", q, p.header(), &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(addresses))
	for _, t := range resp.Data.Tokens {
		if v := firstPositive(t.FDV); v > 0 {
			out[t.Address] = v
		}
	}
	return out, nil
}

// HealthCheck calls the health endpoint.
func (p *Birdeye) HealthCheck(ctx context.Context) error {
	if err := p.client.GetJSON(ctx, p.baseURL+"/v1/health", nil, p.header(), nil); err != nil {
		return externalError("birdeye.health", err)
	}
	return nil
}
