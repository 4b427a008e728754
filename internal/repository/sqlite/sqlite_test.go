package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conflux/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBatchSaveGetUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &repository.BatchRecord{
		ID:        "b1",
		RequestID: "r1",
		State:     "DISPATCHED",
		Outcomes:  []byte(`{}`),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveBatch(ctx, rec))

	got, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "DISPATCHED", got.State)
	assert.Equal(t, "r1", got.RequestID)
	assert.True(t, got.SettledAt.IsZero(), "unsettled batch must have no SettledAt")

	// Saving again with the same id updates in place.
	rec.State = "DONE"
	rec.Outcomes = []byte(`{"d1":{"status":"success"}}`)
	rec.SettledAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveBatch(ctx, rec))

	got, err = s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "DONE", got.State)
	assert.False(t, got.SettledAt.IsZero(), "settled batch lost its SettledAt")
	assert.JSONEq(t, `{"d1":{"status":"success"}}`, string(got.Outcomes))
}

func TestGetBatchUnknown(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetBatch(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListBatchesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"old", "mid", "new"} {
		rec := &repository.BatchRecord{
			ID:        id,
			RequestID: "r",
			State:     "DONE",
			Outcomes:  []byte(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveBatch(ctx, rec))
	}

	recs, err := s.ListBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)
	assert.Equal(t, "mid", recs[1].ID)

	// A non-positive limit falls back to the default window.
	all, err := s.ListBatches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestManifestUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &repository.ManifestRecord{
		RequestID:   "r1",
		ViewVersion: 4,
		Manifest:    []byte(`{"placements":{"fn1":"i1"}}`),
	}
	require.NoError(t, s.SaveManifest(ctx, rec))

	got, err := s.GetManifest(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(4), got.ViewVersion)

	rec.ViewVersion = 9
	require.NoError(t, s.SaveManifest(ctx, rec))
	got, err = s.GetManifest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.ViewVersion)

	missing, err := s.GetManifest(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReportJournal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for v := uint64(1); v <= 3; v++ {
		entry := &repository.ReportEntry{
			Domain:     "d1",
			Version:    v,
			Discipline: "replace",
			Graph:      []byte(`{"id":"d1"}`),
		}
		require.NoError(t, s.JournalReport(ctx, entry))
	}
	require.NoError(t, s.JournalReport(ctx, &repository.ReportEntry{
		Domain: "d2", Version: 4, Discipline: "remerge", Graph: []byte(`{"id":"d2"}`),
	}))

	entries, err := s.ListReports(ctx, "d1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(3), entries[0].Version)
	assert.Equal(t, uint64(2), entries[1].Version)
	for _, e := range entries {
		assert.Equal(t, "d1", e.Domain)
		assert.False(t, e.ReceivedAt.IsZero(), "journal entry must carry a received timestamp")
	}
}
