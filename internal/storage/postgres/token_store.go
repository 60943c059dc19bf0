package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// DefaultTokenLimit bounds ListActive results.
const DefaultTokenLimit = 100

// TokenStore implements storage.TokenStore over one table per group.
type TokenStore struct {
	pool   *Pool
	tables map[domain.Group]string
	limit  int
}

// NewTokenStore creates a token store. tables maps each group to its table name.
func NewTokenStore(pool *Pool, tables map[domain.Group]string, limit int) *TokenStore {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}
	t := make(map[domain.Group]string, len(tables))
	for g, name := range tables {
		t[g] = name
	}
	return &TokenStore{pool: pool, tables: t, limit: limit}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// ListActive returns the group's tokens, most recently called first.
func (s *TokenStore) ListActive(ctx context.Context, group domain.Group) ([]domain.Token, error) {
	table, ok := s.tables[group]
	if !ok || table == "" {
		return nil, domain.NewError(domain.KindConfiguration, "list tokens",
			fmt.Errorf("no token table for group %q: %w", group, storage.ErrInvalidInput))
	}

	query := fmt.Sprintf(`
		SELECT id, token_address, symbol, initial_market_cap_usd, first_called_at_utc
		FROM %s
		ORDER BY first_called_at_utc DESC
		LIMIT $1
	`, pgx.Identifier{table}.Sanitize())

	rows, err := s.pool.Query(ctx, query, s.limit)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, domain.NewError(domain.KindConfiguration, "list tokens", err)
		}
		return nil, dataSourceError("list tokens", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(&t.ID, &t.TokenAddress, &t.Symbol, &t.InitialMarketCapUSD, &t.FirstCalledAt); err != nil {
			return nil, dataSourceError("scan token", err)
		}
		t.FirstCalledAt = t.FirstCalledAt.UTC()
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dataSourceError("iterate tokens", err)
	}
	return tokens, nil
}

// HealthCheck pings the database.
func (s *TokenStore) HealthCheck(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// Insert adds a token to a group's table and returns its id.
// Used for seeding; the token tables are normally written by the caller bot.
func (s *TokenStore) Insert(ctx context.Context, group domain.Group, t domain.Token) (int64, error) {
	table, ok := s.tables[group]
	if !ok || table == "" {
		return 0, storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (token_address, symbol, initial_market_cap_usd, first_called_at_utc)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, pgx.Identifier{table}.Sanitize())

	var id int64
	err := s.pool.QueryRow(ctx, query, t.TokenAddress, t.Symbol, t.InitialMarketCapUSD, t.FirstCalledAt).Scan(&id)
	if err != nil {
		return 0, dataSourceError("insert token", err)
	}
	return id, nil
}
