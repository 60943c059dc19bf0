// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/provider"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Notifier kinds.
const (
	NotifierTelegram = "telegram"
	NotifierLog      = "log"
)

// Config is the full service configuration.
type Config struct {
	Polling    PollingConfig
	Provider   ProviderConfig
	Storage    StorageConfig
	Groups     GroupsConfig
	Telegram   TelegramConfig
	Milestones MilestonesConfig
	Server     ServerConfig
	Log        LogConfig
}

// PollingConfig drives the cycle and crossing logic.
type PollingConfig struct {
	IntervalSeconds      int     `envconfig:"POLL_INTERVAL_SECONDS" default:"60"`
	ConsecutiveThreshold int     `envconfig:"CONSECUTIVE_THRESHOLD" default:"3"`
	MaxCapChangeRatio    float64 `envconfig:"MAX_CAP_CHANGE_RATIO" default:"3"`
	AlertCooldownSeconds int     `envconfig:"ALERT_COOLDOWN_SECONDS" default:"300"`
	RunOnStart           bool    `envconfig:"RUN_ON_START" default:"true"`
}

// ProviderConfig selects and tunes the market cap provider.
type ProviderConfig struct {
	Name            string  `envconfig:"MARKET_CAP_PROVIDER" default:"dexscreener"`
	BaseURL         string  `envconfig:"PROVIDER_BASE_URL"`
	CMCAPIKey       string  `envconfig:"CMC_API_KEY"`
	BirdeyeAPIKey   string  `envconfig:"BIRDEYE_API_KEY"`
	CoinGeckoAPIKey string  `envconfig:"COINGECKO_API_KEY"`
	Network         string  `envconfig:"GECKOTERMINAL_NETWORK" default:"solana"`
	RateLimitRPS    float64 `envconfig:"PROVIDER_RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst  int     `envconfig:"PROVIDER_RATE_LIMIT_BURST" default:"5"`
	TimeoutSeconds  int     `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"10"`
	MaxRetries      int     `envconfig:"PROVIDER_MAX_RETRIES" default:"3"`
	Concurrency     int     `envconfig:"PROVIDER_CONCURRENCY" default:"2"`
}

// StorageConfig selects token, milestone and ledger storage.
type StorageConfig struct {
	Backend        string `envconfig:"STORAGE_BACKEND" default:"memory"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN"`
	ClickHouseDSN  string `envconfig:"CLICKHOUSE_DSN"` // optional analytics
	RunMigrations  bool   `envconfig:"RUN_MIGRATIONS" default:"true"`
	TokenLimit     int    `envconfig:"TOKEN_LIMIT" default:"100"`
	SeedTokensFile string `envconfig:"SEED_TOKENS_FILE"` // memory backend only
}

// GroupsConfig holds per-group tables and channels.
type GroupsConfig struct {
	TableFSM      string `envconfig:"TABLE_FSM" default:"tokens_fsm"`
	TableIssam    string `envconfig:"TABLE_ISSAM" default:"tokens_issam"`
	ChatIDFSM     string `envconfig:"TG_CHAT_ID_FSM"`
	ChatIDIssam   string `envconfig:"TG_CHAT_ID_ISSAM"`
	ThreadIDFSM   int    `envconfig:"TG_THREAD_ID_FSM"`
	ThreadIDIssam int    `envconfig:"TG_THREAD_ID_ISSAM"`
	TemplateFSM   string `envconfig:"TEMPLATE_FSM"`
	TemplateIssam string `envconfig:"TEMPLATE_ISSAM"`
}

// TelegramConfig configures the notification sink.
type TelegramConfig struct {
	Notifier string `envconfig:"NOTIFIER" default:"telegram"`
	BotToken string `envconfig:"TG_BOT_TOKEN"`
	Endpoint string `envconfig:"TG_API_ENDPOINT"`
}

// MilestonesConfig seeds milestone definitions.
type MilestonesConfig struct {
	// List is "value:label" pairs, e.g. "2:2x,5:5x,10:10x".
	List string `envconfig:"MILESTONES" default:"2:2x,5:5x,10:10x"`
	// Seed inserts List into postgres for groups without active milestones.
	// The memory backend is always seeded.
	Seed bool `envconfig:"SEED_MILESTONES" default:"false"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `envconfig:"PORT" default:"3000"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and the environment, then validates.
// Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	p := c.Polling
	check(p.IntervalSeconds >= 1, "POLL_INTERVAL_SECONDS must be >= 1, got %d", p.IntervalSeconds)
	check(p.ConsecutiveThreshold >= 1, "CONSECUTIVE_THRESHOLD must be >= 1, got %d", p.ConsecutiveThreshold)
	check(p.MaxCapChangeRatio > 1, "MAX_CAP_CHANGE_RATIO must be > 1, got %g", p.MaxCapChangeRatio)
	check(p.AlertCooldownSeconds >= 0, "ALERT_COOLDOWN_SECONDS must be >= 0, got %d", p.AlertCooldownSeconds)

	pr := c.Provider
	check(provider.Known(pr.Name), "MARKET_CAP_PROVIDER %q is not one of %s", pr.Name, strings.Join(provider.Names, ", "))
	switch strings.ToLower(pr.Name) {
	case provider.NameCMC:
		check(pr.CMCAPIKey != "", "CMC_API_KEY is required for provider cmc")
	case provider.NameBirdeye:
		check(pr.BirdeyeAPIKey != "", "BIRDEYE_API_KEY is required for provider birdeye")
	}
	check(pr.RateLimitRPS >= 0, "PROVIDER_RATE_LIMIT_RPS must be >= 0")
	check(pr.TimeoutSeconds >= 1, "PROVIDER_TIMEOUT_SECONDS must be >= 1")
	check(pr.MaxRetries >= 0, "PROVIDER_MAX_RETRIES must be >= 0")

	s := c.Storage
	switch s.Backend {
	case BackendMemory:
	case BackendPostgres:
		check(s.PostgresDSN != "", "POSTGRES_DSN is required for STORAGE_BACKEND=postgres")
		check(c.Groups.TableFSM != "" && c.Groups.TableIssam != "", "TABLE_FSM and TABLE_ISSAM must be set")
	default:
		check(false, "STORAGE_BACKEND %q is not memory or postgres", s.Backend)
	}
	check(s.TokenLimit >= 1, "TOKEN_LIMIT must be >= 1")

	switch c.Telegram.Notifier {
	case NotifierLog:
	case NotifierTelegram:
		check(c.Telegram.BotToken != "", "TG_BOT_TOKEN is required for NOTIFIER=telegram")
		check(c.Groups.ChatIDFSM != "", "TG_CHAT_ID_FSM is required for NOTIFIER=telegram")
		check(c.Groups.ChatIDIssam != "", "TG_CHAT_ID_ISSAM is required for NOTIFIER=telegram")
	default:
		check(false, "NOTIFIER %q is not telegram or log", c.Telegram.Notifier)
	}

	if _, err := ParseMilestones(c.Milestones.List); err != nil {
		errs = append(errs, err)
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "PORT %d out of range", c.Server.Port)
	f := strings.ToLower(c.Log.Format)
	check(f == "text" || f == "json", "LOG_FORMAT %q is not text or json", c.Log.Format)

	if len(errs) > 0 {
		return domain.NewError(domain.KindConfiguration, "validate config", errors.Join(errs...))
	}
	return nil
}

// GroupRegistry builds the group lookup table in processing order.
func (c *Config) GroupRegistry() *domain.GroupRegistry {
	g := c.Groups
	return domain.NewGroupRegistry(
		domain.GroupSettings{
			Group:      domain.GroupFSM,
			TokenTable: g.TableFSM,
			ChatID:     g.ChatIDFSM,
			ThreadID:   g.ThreadIDFSM,
			Template:   g.TemplateFSM,
		},
		domain.GroupSettings{
			Group:      domain.GroupIssam,
			TokenTable: g.TableIssam,
			ChatID:     g.ChatIDIssam,
			ThreadID:   g.ThreadIDIssam,
			Template:   g.TemplateIssam,
		},
	)
}

// PollInterval returns the poll interval.
func (p PollingConfig) PollInterval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// AlertCooldown returns the per-token alert cooldown.
func (p PollingConfig) AlertCooldown() time.Duration {
	return time.Duration(p.AlertCooldownSeconds) * time.Second
}

// Timeout returns the provider request timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// APIKey returns the key for the selected provider.
func (p ProviderConfig) APIKey() string {
	switch strings.ToLower(p.Name) {
	case provider.NameCMC:
		return p.CMCAPIKey
	case provider.NameBirdeye:
		return p.BirdeyeAPIKey
	case provider.NameCoinGecko:
		return p.CoinGeckoAPIKey
	default:
		return ""
	}
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
