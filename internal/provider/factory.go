package provider

import "strings"

// Provider names accepted by New.
const (
	NameDexScreener   = "dexscreener"
	NameGeckoTerminal = "geckoterminal"
	NameBirdeye       = "birdeye"
	NameCoinGecko     = "coingecko"
	NameCMC           = "cmc"
)

// Names lists the accepted provider names.
var Names = []string{NameDexScreener, NameGeckoTerminal, NameBirdeye, NameCoinGecko, NameCMC}

// New returns the provider for name. Unknown names fall back to DexScreener.
func New(name string, opts Options) Provider {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameGeckoTerminal:
		return NewGeckoTerminal(opts)
	case NameBirdeye:
		return NewBirdeye(opts)
	case NameCoinGecko:
		return NewCoinGecko(opts)
	case NameCMC:
		return NewCoinMarketCap(opts)
	default:
		return NewDexScreener(opts)
	}
}

// Known reports whether name is an accepted provider name.
func Known(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range Names {
		if k == n {
			return true
		}
	}
	return false
}
