package migrations

import (
	"context"
	"fmt"

	"milestone-bot/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order
// and returns the names of the files that were executed.
// Files run whole (the simple protocol accepts several statements) and
// are expected to be idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	migs, err := load(PostgresFS, "postgres", false)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migs {
		if _, err := pool.Exec(ctx, m.statements[0]); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		applied = append(applied, m.name)
	}
	return applied, nil
}
