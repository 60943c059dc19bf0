// Package provider fetches current market caps from external data sources.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"milestone-bot/internal/domain"
)

// Provider returns market caps keyed by token address.
// Addresses missing from the result have no reading this cycle.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, tokens []domain.Token) (map[string]float64, error)
	HealthCheck(ctx context.Context) error
}

// ErrAllBatchesFailed is returned by Fetch when no batch succeeded.
var ErrAllBatchesFailed = errors.New("all provider batches failed")

// fetchFunc fetches one batch of addresses.
type fetchFunc func(ctx context.Context, addresses []string) (map[string]float64, error)

// batcher splits a token list into provider-sized requests.
type batcher struct {
	name        string
	size        int
	concurrency int
	solanaOnly  bool // skip addresses that are not base58 public keys
	logger      *slog.Logger
}

// fetch runs fn over batches. Failed batches are logged and leave their
// addresses unset; an error is returned only when every batch failed.
func (b batcher) fetch(ctx context.Context, tokens []domain.Token, fn fetchFunc) (map[string]float64, error) {
	addresses := b.addresses(tokens)
	result := make(map[string]float64, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	var chunks [][]string
	for i := 0; i < len(addresses); i += b.size {
		end := i + b.size
		if end > len(addresses) {
			end = len(addresses)
		}
		chunks = append(chunks, addresses[i:end])
	}

	var (
		mu      sync.Mutex
		failed  int
		lastErr error
		g       errgroup.Group
	)
	g.SetLimit(b.concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			caps, err := fn(ctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				lastErr = err
				b.logger.Warn("provider batch failed",
					"provider", b.name,
					"batch", i,
					"tokens", len(chunk),
					"error", err,
				)
				return nil
			}
			for addr, v := range caps {
				if v > 0 {
					result[addr] = v
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(chunks) {
		return result, domain.NewError(domain.KindExternalService, b.name+".fetch",
			fmt.Errorf("%w: %v", ErrAllBatchesFailed, lastErr))
	}
	return result, nil
}

// addresses returns unique, usable token addresses in input order.
func (b batcher) addresses(tokens []domain.Token) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		addr := t.TokenAddress
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		if b.solanaOnly && !domain.IsSolanaAddress(addr) {
			b.logger.Debug("skipping non-solana address", "provider", b.name, "token_address", addr)
			continue
		}
		out = append(out, addr)
	}
	return out
}

func newBatcher(name string, size, concurrency int, solanaOnly bool, logger *slog.Logger) batcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return batcher{
		name:        name,
		size:        size,
		concurrency: concurrency,
		solanaOnly:  solanaOnly,
		logger:      logger.With("component", "provider"),
	}
}

// externalError classifies a provider failure.
func externalError(op string, err error) error {
	return domain.NewError(domain.KindExternalService, op, err)
}
