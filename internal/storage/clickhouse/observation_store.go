package clickhouse

import (
	"context"
	"fmt"
	"time"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// ObservationStore implements storage.ObservationStore using ClickHouse.
type ObservationStore struct {
	conn *Conn
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(conn *Conn) *ObservationStore {
	return &ObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// InsertBulk appends observations in one batch.
func (s *ObservationStore) InsertBulk(ctx context.Context, obs []domain.MarketCapObservation) error {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if o.TokenAddress == "" || o.CycleID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_cap_observations (
			cycle_id, group_name, token_id, token_address, observed_at,
			market_cap_usd, multiple, accepted
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		var accepted uint8
		if o.Accepted {
			accepted = 1
		}
		err = batch.Append(
			o.CycleID, string(o.Group), o.TokenID, o.TokenAddress, o.ObservedAt.UTC(),
			o.MarketCapUSD, o.Multiple, accepted,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return domain.NewError(domain.KindDataSource, "send observations", err)
	}
	return nil
}

// GetByToken returns an address's observations within [start, end], ordered by observed_at ASC.
func (s *ObservationStore) GetByToken(ctx context.Context, tokenAddress string, start, end time.Time) ([]domain.MarketCapObservation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT cycle_id, group_name, token_id, token_address, observed_at,
			market_cap_usd, multiple, accepted
		FROM market_cap_observations
		WHERE token_address = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, tokenAddress, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows chRows) ([]domain.MarketCapObservation, error) {
	var out []domain.MarketCapObservation
	for rows.Next() {
		var (
			o        domain.MarketCapObservation
			group    string
			accepted uint8
		)
		err := rows.Scan(&o.CycleID, &group, &o.TokenID, &o.TokenAddress, &o.ObservedAt,
			&o.MarketCapUSD, &o.Multiple, &accepted)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Group = domain.Group(group)
		o.Accepted = accepted == 1
		o.ObservedAt = o.ObservedAt.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}
