package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickler/internal/db"
	"tickler/internal/domain"
	"tickler/internal/events"
)

func TestAppendAndLatest(t *testing.T) {
	conn, err := db.OpenMigrated(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	w := events.Writer{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }}

	require.NoError(t, w.Append(ctx, "log", domain.Alert{TaskID: "a", Title: "Task due", Body: "first"}))
	require.NoError(t, w.Append(ctx, "log", domain.Alert{TaskID: "b", Title: "Task due", Body: "second",
		FiredAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}))

	all, err := w.Latest(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Body)
	assert.Equal(t, "2024-01-01T10:00:00Z", all[0].TS)
	assert.Equal(t, "2024-01-01T09:00:00Z", all[1].TS)

	onlyA, err := w.Latest(ctx, 10, "a")
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "log", onlyA[0].Platform)

	none, err := w.Latest(ctx, 0, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
