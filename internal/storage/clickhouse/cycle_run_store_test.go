package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

func TestCycleRunStore_InsertAndListRecent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCycleRunStore(conn)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		start := t0.Add(time.Duration(i) * time.Minute)
		err := store.Insert(ctx, domain.CycleRun{
			CycleID:    fmt.Sprintf("cycle-%d", i),
			StartedAt:  start,
			EndedAt:    start.Add(1500 * time.Millisecond),
			DurationMs: 1500,
			Processed:  10 + i,
			AlertsSent: i,
			Skipped:    1,
			Errors:     0,
		})
		require.NoError(t, err)
	}

	runs, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "cycle-2", runs[0].CycleID)
	assert.Equal(t, "cycle-1", runs[1].CycleID)
	assert.Equal(t, 12, runs[0].Processed)
	assert.Equal(t, int64(1500), runs[0].DurationMs)
	assert.Equal(t, t0.Add(2*time.Minute), runs[0].StartedAt)

	err = store.Insert(ctx, domain.CycleRun{CycleID: "cycle-0", StartedAt: t0, EndedAt: t0})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
