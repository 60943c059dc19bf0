// Package main runs the milestone alert service:
// - Scheduler (periodic): polling cycle over every group
// - HTTP: health, stats, manual trigger, milestones, metrics, live feed
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"milestone-bot/internal/config"
	"milestone-bot/internal/domain"
	"milestone-bot/internal/health"
	"milestone-bot/internal/message"
	"milestone-bot/internal/notifier"
	"milestone-bot/internal/observability"
	"milestone-bot/internal/orchestrator"
	"milestone-bot/internal/provider"
	"milestone-bot/internal/scheduler"
	"milestone-bot/internal/stream"
)

const (
	appName = "milestone-bot"
	version = "1.0.0"

	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("server error", "error", err, "kind", domain.KindOf(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *slog.Logger) error {
	groups := cfg.GroupRegistry()

	stores, cleanup, err := createStores(ctx, cfg, groups, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	prov := newProvider(cfg, logger)
	notif, err := newNotifier(cfg, groups, logger)
	if err != nil {
		return err
	}
	messages, err := message.NewBuilder(groups)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, "")

	orch := orchestrator.New(orchestrator.Options{
		Groups:               groups.Groups(),
		Tokens:               stores.tokens,
		Milestones:           stores.milestones,
		Ledger:               stores.ledger,
		Provider:             prov,
		Notifier:             notif,
		Messages:             messages,
		Observations:         stores.observations,
		ConsecutiveThreshold: cfg.Polling.ConsecutiveThreshold,
		MaxCapChangeRatio:    cfg.Polling.MaxCapChangeRatio,
		AlertCooldown:        cfg.Polling.AlertCooldown(),
		Logger:               logger,
		Metrics:              metrics,
	})

	checker := health.NewChecker(health.Options{
		Components: map[string]health.HealthChecker{
			"provider": prov,
			"tokens":   stores.tokens,
			"notifier": notif,
		},
		Stats:    orch,
		Provider: prov.Name(),
	})

	hub := stream.NewHub(logger)
	listeners := []scheduler.CycleListener{hub}
	if stores.cycles != nil {
		listeners = append(listeners, scheduler.PersistRuns(stores.cycles, logger))
	}

	sched := scheduler.New(scheduler.Options{
		Runner:           orch,
		Interval:         cfg.Polling.PollInterval(),
		WaitForFirstTick: !cfg.Polling.RunOnStart,
		Health:           checker,
		Listeners:        listeners,
		Metrics:          metrics,
		Logger:           logger,
	})

	srv := &Server{
		provider:   prov.Name(),
		stats:      orch,
		trigger:    sched,
		health:     checker,
		milestones: stores.milestones,
		groups:     groups,
		cycles:     stores.cycles,
		metrics:    metrics,
		stream:     hub,
		logger:     logger.With("component", "http"),
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go handleSignals(cancel, done, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info("service started",
		"provider", prov.Name(),
		"groups", groups.Groups(),
		"interval", cfg.Polling.PollInterval(),
		"threshold", cfg.Polling.ConsecutiveThreshold,
		"backend", cfg.Storage.Backend)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	sched.Stop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	close(done)
	return runErr
}

// handleSignals cancels on the first SIGINT/SIGTERM and exits on the second.
func handleSignals(cancel context.CancelFunc, done <-chan struct{}, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Error("received second signal, forcing immediate shutdown", "signal", sig.String())
		os.Exit(1)
	case <-time.After(shutdownTimeout):
		logger.Error("graceful shutdown timed out, forcing exit", "timeout", shutdownTimeout)
		os.Exit(1)
	case <-done:
	}
}

func newProvider(cfg *config.Config, logger *slog.Logger) provider.Provider {
	p := cfg.Provider
	client := provider.NewClient(
		provider.WithTimeout(p.Timeout()),
		provider.WithMaxRetries(p.MaxRetries),
		provider.WithRateLimit(p.RateLimitRPS, p.RateLimitBurst),
	)
	return provider.New(p.Name, provider.Options{
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey(),
		Network:     p.Network,
		Client:      client,
		Concurrency: p.Concurrency,
		Logger:      logger,
	})
}

func newNotifier(cfg *config.Config, groups *domain.GroupRegistry, logger *slog.Logger) (notifier.Notifier, error) {
	if cfg.Telegram.Notifier == config.NotifierLog {
		return notifier.NewLog(logger), nil
	}
	tg, err := notifier.NewTelegram(notifier.TelegramOptions{
		Token:    cfg.Telegram.BotToken,
		Endpoint: cfg.Telegram.Endpoint,
		Groups:   groups,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram notifier: %w", err)
	}
	logger.Info("telegram notifier ready", "bot", tg.BotName())
	return tg, nil
}
