package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milestone-bot/internal/domain"
)

// solAddr returns a distinct valid Solana address.
func solAddr(i int) string {
	b := make([]byte, 32)
	b[0] = byte(i + 1)
	b[1] = byte(i >> 8)
	b[31] = byte(i)
	return base58.Encode(b)
}

func tokensFor(addrs ...string) []domain.Token {
	out := make([]domain.Token, len(addrs))
	for i, a := range addrs {
		out[i] = domain.Token{ID: int64(i + 1), TokenAddress: a}
	}
	return out
}

func TestBatcher_SplitsAndMerges(t *testing.T) {
	b := newBatcher("test", 2, 1, false, nil)
	var batches [][]string

	caps, err := b.fetch(context.Background(), tokensFor("a", "b", "c", "a", ""), func(_ context.Context, addrs []string) (map[string]float64, error) {
		batches = append(batches, addrs)
		out := map[string]float64{}
		for _, a := range addrs {
			out[a] = 10
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, batches, "deduplicated, empty dropped")
	assert.Len(t, caps, 3)
}

func TestBatcher_PartialFailure(t *testing.T) {
	b := newBatcher("test", 1, 2, false, nil)

	caps, err := b.fetch(context.Background(), tokensFor("ok", "bad"), func(_ context.Context, addrs []string) (map[string]float64, error) {
		if addrs[0] == "bad" {
			return nil, errors.New("boom")
		}
		return map[string]float64{"ok": 5, "zero": 0}, nil
	})
	require.NoError(t, err, "partial failure is not an error")
	assert.Equal(t, map[string]float64{"ok": 5}, caps)
}

func TestBatcher_AllFailed(t *testing.T) {
	b := newBatcher("test", 1, 1, false, nil)

	_, err := b.fetch(context.Background(), tokensFor("a", "b"), func(context.Context, []string) (map[string]float64, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllBatchesFailed)
	assert.Equal(t, domain.KindExternalService, domain.KindOf(err))
	assert.True(t, domain.IsRetryable(err))
}

func TestBatcher_SolanaOnly(t *testing.T) {
	b := newBatcher("test", 10, 1, true, nil)
	valid := solAddr(1)
	var seen []string

	_, err := b.fetch(context.Background(), tokensFor(valid, "0xdeadbeef"), func(_ context.Context, addrs []string) (map[string]float64, error) {
		seen = addrs
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{valid}, seen)
}

func TestBatcher_NoTokens(t *testing.T) {
	b := newBatcher("test", 10, 1, false, nil)
	caps, err := b.fetch(context.Background(), nil, func(context.Context, []string) (map[string]float64, error) {
		t.Fatal("fetch must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestDexScreener_Fetch(t *testing.T) {
	addrs := make([]string, 31)
	for i := range addrs {
		addrs[i] = solAddr(i)
	}

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/tokens/v1/solana/"))
		batch := strings.Split(strings.TrimPrefix(r.URL.Path, "/tokens/v1/solana/"), ",")
		assert.LessOrEqual(t, len(batch), 30)

		var pairs []string
		for _, a := range batch {
			switch a {
			case addrs[0]:
				// fdv wins over marketCap, later pairs ignored
				pairs = append(pairs,
					fmt.Sprintf(`{"baseToken":{"address":%q},"fdv":2000000,"marketCap":1500000}`, a),
					fmt.Sprintf(`{"baseToken":{"address":%q},"fdv":1}`, a))
			case addrs[1]:
				pairs = append(pairs, fmt.Sprintf(`{"baseToken":{"address":%q},"fdv":0,"marketCap":750000}`, a))
			case addrs[2]:
				pairs = append(pairs, fmt.Sprintf(`{"baseToken":{"address":%q}}`, a))
			default:
				pairs = append(pairs, fmt.Sprintf(`{"baseToken":{"address":%q},"fdv":100}`, a))
			}
		}
		w.Write([]byte("[" + strings.Join(pairs, ",") + "]"))
	}))
	defer server.Close()

	p := NewDexScreener(Options{BaseURL: server.URL, Client: fastClient()})
	caps, err := p.Fetch(context.Background(), tokensFor(addrs...))
	require.NoError(t, err)

	assert.Equal(t, int32(2), requests.Load(), "31 tokens in batches of 30")
	assert.Equal(t, 2_000_000.0, caps[addrs[0]])
	assert.Equal(t, 750_000.0, caps[addrs[1]])
	_, ok := caps[addrs[2]]
	assert.False(t, ok, "no fdv or market cap means null")
	assert.Equal(t, 100.0, caps[addrs[30]])
	assert.Equal(t, "DexScreener", p.Name())
}

func TestDexScreener_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, wrappedSOL) {
			w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewDexScreener(Options{BaseURL: server.URL, Client: fastClient()})
	assert.NoError(t, p.HealthCheck(context.Background()))

	server.Close()
	err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindExternalService, domain.KindOf(err))
}

func TestGeckoTerminal_Fetch(t *testing.T) {
	a, b, c := solAddr(1), solAddr(2), solAddr(3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/simple/networks/solana/token_price/"))
		assert.Equal(t, "true", r.URL.Query().Get("include_market_cap"))
		assert.Equal(t, "true", r.URL.Query().Get("mcap_fdv_fallback"))
		fmt.Fprintf(w, `{"data":{"attributes":{"market_cap_usd":{%q:"1234567.89",%q:null,%q:"nope"}}}}`, a, b, c)
	}))
	defer server.Close()

	p := NewGeckoTerminal(Options{BaseURL: server.URL, Client: fastClient()})
	caps, err := p.Fetch(context.Background(), tokensFor(a, b, c))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{a: 1234567.89}, caps)
}

func TestBirdeye_Fetch(t *testing.T) {
	a, b := solAddr(1), solAddr(2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokenlist", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-API-KEY"))
		assert.Equal(t, a+","+b, r.URL.Query().Get("address"))
		fmt.Fprintf(w, `{"data":{"tokens":[{"address":%q,"fdv":42000}]}}`, a)
	}))
	defer server.Close()

	p := NewBirdeye(Options{BaseURL: server.URL, APIKey: "key-1", Client: fastClient()})
	caps, err := p.Fetch(context.Background(), tokensFor(a, b))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{a: 42000}, caps)
}

func TestCoinGecko_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/price":
			assert.Equal(t, "bonk,wif", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			w.Write([]byte(`{"bonk":{"usd":0.00002,"usd_market_cap":1500000000},"wif":{"usd":2}}`))
		case "/ping":
			w.Write([]byte(`{"gecko_says":"(V3) To the Moon!"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := NewCoinGecko(Options{BaseURL: server.URL, Client: fastClient()})
	caps, err := p.Fetch(context.Background(), tokensFor("bonk", "wif"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"bonk": 1_500_000_000}, caps)
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestCoinMarketCap_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cmc-key", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "BONK", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"data":{"BONK":{"quote":{"USD":{"market_cap":987654321}}}}}`))
	}))
	defer server.Close()

	p := NewCoinMarketCap(Options{BaseURL: server.URL, APIKey: "cmc-key", Client: fastClient()})
	caps, err := p.Fetch(context.Background(), tokensFor("BONK"))
	require.NoError(t, err)
	assert.Equal(t, 987654321.0, caps["BONK"])
}

func TestNew_Factory(t *testing.T) {
	cases := map[string]string{
		"dexscreener":   "DexScreener",
		"GeckoTerminal": "GeckoTerminal",
		"birdeye":       "Birdeye",
		"coingecko":     "CoinGecko",
		"cmc":           "CoinMarketCap",
		"unknown":       "DexScreener",
		"":              "DexScreener",
	}
	for name, want := range cases {
		assert.Equal(t, want, New(name, Options{}).Name(), "provider %q", name)
	}
	assert.True(t, Known("CMC"))
	assert.False(t, Known("unknown"))
}
