package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"milestone-bot/internal/domain"
)

type seedToken struct {
	ID                  int64     `json:"id"`
	TokenAddress        string    `json:"token_address"`
	Symbol              string    `json:"symbol"`
	InitialMarketCapUSD float64   `json:"initial_market_cap_usd"`
	FirstCalledAt       time.Time `json:"first_called_at"`
}

// LoadSeedTokens reads a JSON file of tokens keyed by group:
//
//	{"fsm": [{"id": 1, "token_address": "...", "symbol": "BONK",
//	          "initial_market_cap_usd": 1000000, "first_called_at": "2025-01-01T00:00:00Z"}]}
func LoadSeedTokens(path string) (map[domain.Group][]domain.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "read seed tokens", err)
	}

	var raw map[string][]seedToken
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "parse seed tokens", fmt.Errorf("%s: %w", path, err))
	}

	out := make(map[domain.Group][]domain.Token, len(raw))
	for g, tokens := range raw {
		for _, t := range tokens {
			out[domain.Group(g)] = append(out[domain.Group(g)], domain.Token{
				ID:                  t.ID,
				TokenAddress:        t.TokenAddress,
				Symbol:              t.Symbol,
				InitialMarketCapUSD: t.InitialMarketCapUSD,
				FirstCalledAt:       t.FirstCalledAt.UTC(),
			})
		}
	}
	return out, nil
}
