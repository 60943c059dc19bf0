package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"milestone-bot/internal/config"
	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
	chstore "milestone-bot/internal/storage/clickhouse"
	"milestone-bot/internal/storage/memory"
	"milestone-bot/internal/storage/migrations"
	pgstore "milestone-bot/internal/storage/postgres"
)

// allStores holds the storage implementations used by the service.
type allStores struct {
	tokens       storage.TokenStore
	milestones   storage.MilestoneConfigStore
	ledger       storage.NotificationLedger
	observations storage.ObservationStore // nil without ClickHouse
	cycles       storage.CycleRunStore
}

// createStores builds the configured backend. The returned cleanup closes
// every opened connection.
func createStores(ctx context.Context, cfg *config.Config, groups *domain.GroupRegistry, logger *slog.Logger) (*allStores, func(), error) {
	seeds, err := config.ParseMilestones(cfg.Milestones.List)
	if err != nil {
		return nil, nil, err
	}

	var (
		stores  *allStores
		closers []func()
		cleanup = func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	)

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		stores, err = postgresStores(ctx, cfg, groups, logger, &closers)
		if err == nil && cfg.Milestones.Seed {
			err = seedMilestones(ctx, stores.milestones, groups, seeds, logger)
		}
	default:
		stores, err = memoryStores(ctx, cfg, groups, seeds)
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := openClickHouse(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		stores.observations = chstore.NewObservationStore(conn)
		stores.cycles = chstore.NewCycleRunStore(conn)
		logger.Info("clickhouse analytics enabled")
	}

	return stores, cleanup, nil
}

func memoryStores(ctx context.Context, cfg *config.Config, groups *domain.GroupRegistry, seeds []config.MilestoneSeed) (*allStores, error) {
	tokens := memory.NewTokenStore(cfg.Storage.TokenLimit)
	if path := cfg.Storage.SeedTokensFile; path != "" {
		byGroup, err := config.LoadSeedTokens(path)
		if err != nil {
			return nil, err
		}
		for g, list := range byGroup {
			if err := tokens.Add(ctx, g, list...); err != nil {
				return nil, domain.NewError(domain.KindConfiguration, "seed tokens", fmt.Errorf("group %s: %w", g, err))
			}
		}
	}

	milestones := memory.NewMilestoneConfigStore()
	for _, g := range groups.Groups() {
		for _, m := range config.MilestoneConfigs(g, seeds) {
			if _, err := milestones.Create(ctx, &m); err != nil {
				return nil, fmt.Errorf("seed milestone %s %g: %w", g, m.Value, err)
			}
		}
	}

	return &allStores{
		tokens:     tokens,
		milestones: milestones,
		ledger:     memory.NewNotificationLedger(),
		cycles:     memory.NewCycleRunStore(),
	}, nil
}

func postgresStores(ctx context.Context, cfg *config.Config, groups *domain.GroupRegistry, logger *slog.Logger, closers *[]func()) (*allStores, error) {
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, domain.NewError(domain.KindDataSource, "connect postgres", err)
	}
	*closers = append(*closers, pool.Close)

	if cfg.Storage.RunMigrations {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied", "files", applied)
	}

	tables := make(map[domain.Group]string)
	for _, g := range groups.Groups() {
		s, _ := groups.Lookup(g)
		tables[g] = s.TokenTable
	}

	return &allStores{
		tokens:     pgstore.NewTokenStore(pool, tables, cfg.Storage.TokenLimit),
		milestones: pgstore.NewMilestoneConfigStore(pool),
		ledger:     pgstore.NewNotificationLedger(pool),
	}, nil
}

// seedMilestones inserts seeds for groups that have no active milestones.
func seedMilestones(ctx context.Context, store storage.MilestoneConfigStore, groups *domain.GroupRegistry, seeds []config.MilestoneSeed, logger *slog.Logger) error {
	for _, g := range groups.Groups() {
		active, err := store.ListActive(ctx, g)
		if err != nil {
			return fmt.Errorf("list milestones %s: %w", g, err)
		}
		if len(active) > 0 {
			continue
		}
		for _, m := range config.MilestoneConfigs(g, seeds) {
			if _, err := store.Create(ctx, &m); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("seed milestone %s %g: %w", g, m.Value, err)
			}
		}
		logger.Info("milestones seeded", "group", g, "count", len(seeds))
	}
	return nil
}

func openClickHouse(ctx context.Context, cfg *config.Config) (*chstore.Conn, error) {
	var (
		conn *chstore.Conn
		err  error
	)
	if cfg.Storage.RunMigrations {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindDataSource, "connect clickhouse", err)
	}
	return conn, nil
}
