// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func summaryAt(id string, started time.Time) types.RunSummary {
	return types.RunSummary{
		ID:              id,
		SpreadsheetPath: "uploads/" + id + ".xlsx",
		Source:          types.SourceUnpaywall,
		State:           types.RunCompleted,
		Total:           2,
		Processed:       2,
		Downloaded:      1,
		ReportPath:      "downloads/download_report.xlsx",
		StartedAt:       started,
		FinishedAt:      started.Add(time.Minute),
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	outcomes := []types.Outcome{
		{Identifier: "10.1000/a", Status: types.Status{Kind: types.StatusDownloaded}, Source: types.SourceUnpaywall},
		{Identifier: "10.1000/b", Status: types.ErrorStatus("timeout"), Source: types.SourceUnpaywall},
	}
	require.NoError(t, store.RecordRun(ctx, summaryAt("run-1", started), outcomes))

	got, err := store.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, summaryAt("run-1", started), got)

	gotOutcomes, err := store.Outcomes(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, outcomes, gotOutcomes)
	assert.Equal(t, "Error: timeout", gotOutcomes[1].Status.String())
}

func TestRecordRun_ReplacesEarlierRecord(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := summaryAt("run-1", started)
	first.State = types.RunRunning
	require.NoError(t, store.RecordRun(ctx, first, []types.Outcome{
		{Identifier: "10.1000/a", Status: types.Status{Kind: types.StatusDownloaded}, Source: types.SourceMirror},
		{Identifier: "10.1000/b", Status: types.Status{Kind: types.StatusNotFound}, Source: types.SourceMirror},
	}))

	second := summaryAt("run-1", started)
	second.State = types.RunInterrupted
	require.NoError(t, store.RecordRun(ctx, second, []types.Outcome{
		{Identifier: "10.1000/a", Status: types.Status{Kind: types.StatusInterrupted}, Source: types.SourceMirror},
	}))

	got, err := store.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunInterrupted, got.State)

	outcomes, err := store.Outcomes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.StatusInterrupted, outcomes[0].Status.Kind)
}

func TestListRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordRun(ctx, summaryAt(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour)), nil))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "newest first within limit", limit: 2, want: []string{"run-4", "run-3"}},
		{name: "default limit returns all", limit: 0, want: []string{"run-4", "run-3", "run-2", "run-1", "run-0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.limit)
			require.NoError(t, err)
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRun_NotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordRun_FailedRunWithoutFinish(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	s := types.RunSummary{
		ID:              "run-x",
		SpreadsheetPath: "uploads/x.csv",
		Source:          types.SourceMirror,
		State:           types.RunFailed,
		Error:           `Error: column "DOI" not found in the file.`,
		StartedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.RecordRun(ctx, s, nil))

	got, err := store.Run(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.True(t, got.FinishedAt.IsZero())

	outcomes, err := store.Outcomes(ctx, "run-x")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
