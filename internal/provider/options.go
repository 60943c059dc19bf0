package provider

import (
	"log/slog"
	"strings"
)

// Options configures a provider adapter.
type Options struct {
	BaseURL     string // overrides the public endpoint, mainly for tests
	APIKey      string
	Network     string // GeckoTerminal network id
	Client      *Client
	Concurrency int // parallel batch requests, default 1
	Logger      *slog.Logger
}

func (o Options) baseURL(def string) string {
	if o.BaseURL != "" {
		return strings.TrimRight(o.BaseURL, "/")
	}
	return def
}

func (o Options) client() *Client {
	if o.Client != nil {
		return o.Client
	}
	return NewClient()
}
