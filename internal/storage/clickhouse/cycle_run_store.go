package clickhouse

import (
	"context"
	"fmt"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// CycleRunStore implements storage.CycleRunStore using ClickHouse.
type CycleRunStore struct {
	conn *Conn
}

// NewCycleRunStore creates a new CycleRunStore.
func NewCycleRunStore(conn *Conn) *CycleRunStore {
	return &CycleRunStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CycleRunStore = (*CycleRunStore)(nil)

// Insert appends a finished cycle. Returns ErrDuplicateKey if cycle_id exists.
// ReplacingMergeTree does not enforce uniqueness, so the key is checked first.
func (s *CycleRunStore) Insert(ctx context.Context, run domain.CycleRun) error {
	if run.CycleID == "" {
		return storage.ErrInvalidInput
	}

	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM cycle_runs WHERE cycle_id = ?`, run.CycleID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO cycle_runs (
			cycle_id, started_at, ended_at, duration_ms, processed, alerts_sent, skipped, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.CycleID, run.StartedAt.UTC(), run.EndedAt.UTC(), run.DurationMs,
		uint32(run.Processed), uint32(run.AlertsSent), uint32(run.Skipped), uint32(run.Errors),
	)
	if err != nil {
		return domain.NewError(domain.KindDataSource, "insert cycle run", err)
	}
	return nil
}

// ListRecent returns up to limit runs, newest first.
func (s *CycleRunStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.conn.Query(ctx, `
		SELECT cycle_id, started_at, ended_at, duration_ms, processed, alerts_sent, skipped, errors
		FROM cycle_runs FINAL
		ORDER BY started_at DESC
		LIMIT ?
	`, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query cycle runs: %w", err)
	}
	defer rows.Close()

	return scanCycleRuns(rows)
}

func scanCycleRuns(rows chRows) ([]domain.CycleRun, error) {
	var out []domain.CycleRun
	for rows.Next() {
		var (
			r                                   domain.CycleRun
			processed, alerts, skipped, errsCnt uint32
		)
		err := rows.Scan(&r.CycleID, &r.StartedAt, &r.EndedAt, &r.DurationMs,
			&processed, &alerts, &skipped, &errsCnt)
		if err != nil {
			return nil, fmt.Errorf("scan cycle run: %w", err)
		}
		r.Processed = int(processed)
		r.AlertsSent = int(alerts)
		r.Skipped = int(skipped)
		r.Errors = int(errsCnt)
		r.StartedAt = r.StartedAt.UTC()
		r.EndedAt = r.EndedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle runs: %w", err)
	}
	return out, nil
}
