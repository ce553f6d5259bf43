package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "whoten/pkg/logx"
)

func sampleRuns(base time.Time) []RunRecord {
	return []RunRecord{
		{ID: "a", Task: "sync", Trigger: "schedule", StartedAt: base, FinishedAt: base.Add(time.Second), OK: true},
		{ID: "b", Task: "scan", Trigger: "manual", StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second), OK: false, Detail: "boom"},
		{ID: "c", Task: "report", Trigger: "cli", StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2*time.Minute + time.Second), OK: true},
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}

func TestStoresRoundTrip(t *testing.T) {
	t.Parallel()
	base := time.UnixMilli(time.Now().UnixMilli())

	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "runs."+driver)
			st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			require.NoError(t, err)
			require.NotNil(t, st)

			ctx := context.Background()
			for _, r := range sampleRuns(base) {
				require.NoError(t, st.AppendRun(ctx, r))
			}

			got, err := st.RecentRuns(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "c", got[0].ID)
			assert.Equal(t, "b", got[1].ID)
			assert.False(t, got[1].OK)
			assert.Equal(t, "boom", got[1].Detail)
			assert.Equal(t, "manual", got[1].Trigger)
			assert.Equal(t, time.Second, got[0].Duration())
			require.NoError(t, st.Close())

			// Reopen: history survives restarts.
			st, err = Open(Config{Driver: driver, Path: path}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()
			got, err = st.RecentRuns(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, got, 3)
		})
	}
}
