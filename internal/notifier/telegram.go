package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"milestone-bot/internal/domain"
)

// Telegram defaults.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultParseMode   = tgbotapi.ModeMarkdown
)

// TelegramOptions configures the Telegram notifier.
type TelegramOptions struct {
	Token       string
	Endpoint    string // tgbotapi endpoint format, default tgbotapi.APIEndpoint
	HTTPClient  *http.Client
	Groups      *domain.GroupRegistry
	MaxAttempts int
	RetryDelay  time.Duration
	ParseMode   string
	Logger      *slog.Logger
}

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	bot         *tgbotapi.BotAPI
	groups      *domain.GroupRegistry
	maxAttempts int
	retryDelay  time.Duration
	parseMode   string
	logger      *slog.Logger
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram creates the notifier and verifies the token with getMe.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if opts.Token == "" {
		return nil, domain.NewError(domain.KindConfiguration, "telegram", errors.New("bot token is required"))
	}
	if opts.Groups == nil {
		return nil, domain.NewError(domain.KindConfiguration, "telegram", errors.New("group registry is required"))
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, client)
	if err != nil {
		return nil, domain.NewError(domain.KindExternalService, "telegram.getMe", err)
	}

	t := &Telegram{
		bot:         bot,
		groups:      opts.Groups,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		parseMode:   opts.ParseMode,
		logger:      opts.Logger,
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = DefaultMaxAttempts
	}
	if t.retryDelay <= 0 {
		t.retryDelay = DefaultRetryDelay
	}
	if t.parseMode == "" {
		t.parseMode = DefaultParseMode
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "telegram")
	return t, nil
}

// BotName returns the bot username reported by getMe.
func (t *Telegram) BotName() string {
	return t.bot.Self.UserName
}

// Send posts text to the group's chat, retrying with exponential backoff.
func (t *Telegram) Send(ctx context.Context, group domain.Group, text string) (string, error) {
	settings, ok := t.groups.Lookup(group)
	if !ok || settings.ChatID == "" {
		return "", domain.NewError(domain.KindConfiguration, "telegram.send",
			fmt.Errorf("no chat configured for group %q", group))
	}

	params := tgbotapi.Params{}
	params["chat_id"] = settings.ChatID
	params["text"] = text
	params.AddNonEmpty("parse_mode", t.parseMode)
	params.AddNonZero("message_thread_id", settings.ThreadID)

	delay := t.retryDelay
	var lastErr error

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		id, err := t.sendMessage(params)
		if err == nil {
			return id, nil
		}
		lastErr = err
		t.logger.Warn("telegram send attempt failed",
			"attempt", attempt,
			"group", group,
			"chat_id", settings.ChatID,
			"error", err,
		)

		if permanent(err) || attempt == t.maxAttempts {
			break
		}

		wait := delay
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}

	return "", domain.NewError(domain.KindExternalService, "telegram.send",
		fmt.Errorf("failed after %d attempts: %w", t.maxAttempts, lastErr))
}

func (t *Telegram) sendMessage(params tgbotapi.Params) (string, error) {
	resp, err := t.bot.MakeRequest("sendMessage", params)
	if err != nil {
		return "", err
	}

	var msg tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return "", fmt.Errorf("decode sendMessage result: %w", err)
	}
	return strconv.Itoa(msg.MessageID), nil
}

// permanent reports errors that retrying cannot fix (bad chat, blocked bot).
func permanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// HealthCheck calls getMe.
func (t *Telegram) HealthCheck(context.Context) error {
	if _, err := t.bot.GetMe(); err != nil {
		return domain.NewError(domain.KindExternalService, "telegram.getMe", err)
	}
	return nil
}
