package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

const (
	testTableID = types.TableID("tbl-tasks")
	fieldTitle  = types.FieldID("fld-title")
	fieldStatus = types.FieldID("fld-status")
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "grid.db"), testTableID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInsertAndFetchFields(t *testing.T) {
	b := openTestBackend(t)

	created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	id, err := b.InsertRecord("", created, map[types.FieldID]types.CellValue{
		fieldTitle:  "write report",
		fieldStatus: "open",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := b.FetchAndSubscribeFields(context.Background(), testTableID, []types.FieldID{fieldTitle})
	require.NoError(t, err)
	require.Contains(t, snap.RecordsByID, id)

	rec := snap.RecordsByID[id]
	assert.True(t, rec.CreatedTime.Equal(created))
	assert.Equal(t, "write report", rec.CellValuesByFieldID[fieldTitle])
	// Snapshot is restricted to the requested fields.
	assert.NotContains(t, rec.CellValuesByFieldID, fieldStatus)
}

func TestFetchMetadataOnly(t *testing.T) {
	b := openTestBackend(t)
	id, err := b.InsertRecord("", time.Time{}, map[types.FieldID]types.CellValue{fieldTitle: "x"})
	require.NoError(t, err)

	snap, err := b.FetchAndSubscribeFields(context.Background(), testTableID, nil)
	require.NoError(t, err)
	require.Contains(t, snap.RecordsByID, id)
	assert.Empty(t, snap.RecordsByID[id].CellValuesByFieldID)
}

func TestFetchWrongTable(t *testing.T) {
	b := openTestBackend(t)

	_, err := b.FetchAndSubscribeTable(context.Background(), types.TableID("tbl-other"))
	assert.ErrorIs(t, err, types.ErrTableUnknown)
}

func TestSetCellEmitsDiffForSubscribedField(t *testing.T) {
	b := openTestBackend(t)
	id, err := b.InsertRecord("", time.Time{}, map[types.FieldID]types.CellValue{fieldStatus: "open"})
	require.NoError(t, err)

	_, err = b.FetchAndSubscribeFields(context.Background(), testTableID, []types.FieldID{fieldStatus})
	require.NoError(t, err)

	require.NoError(t, b.SetCell(id, fieldStatus, "done"))

	select {
	case diff := <-b.Diffs():
		entry, ok := diff.RecordsByID[id]
		require.True(t, ok)
		assert.False(t, entry.Structural)
		assert.Equal(t, "done", entry.CellValuesByFieldID[fieldStatus])
	case <-time.After(time.Second):
		t.Fatal("no diff emitted")
	}
}

func TestSetCellUnsubscribedFieldEmitsNothing(t *testing.T) {
	b := openTestBackend(t)
	id, err := b.InsertRecord("", time.Time{}, map[types.FieldID]types.CellValue{fieldStatus: "open"})
	require.NoError(t, err)

	_, err = b.FetchAndSubscribeFields(context.Background(), testTableID, []types.FieldID{fieldTitle})
	require.NoError(t, err)

	require.NoError(t, b.SetCell(id, fieldStatus, "done"))

	select {
	case diff := <-b.Diffs():
		t.Fatalf("unexpected diff: %+v", diff)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeleteRecordEmitsStructuralDiff(t *testing.T) {
	b := openTestBackend(t)
	id, err := b.InsertRecord("", time.Time{}, nil)
	require.NoError(t, err)

	_, err = b.FetchAndSubscribeFields(context.Background(), testTableID, nil)
	require.NoError(t, err)

	require.NoError(t, b.DeleteRecord(id))
	select {
	case diff := <-b.Diffs():
		entry, ok := diff.RecordsByID[id]
		require.True(t, ok)
		assert.True(t, entry.Structural)
		assert.Nil(t, entry.Record)
	case <-time.After(time.Second):
		t.Fatal("no diff emitted")
	}

	assert.ErrorIs(t, b.DeleteRecord(id), types.ErrNotFound)
}

func TestSetCellUnknownRecord(t *testing.T) {
	b := openTestBackend(t)
	err := b.SetCell(types.RecordID("rec-missing"), fieldTitle, "x")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSeedJSONL(t *testing.T) {
	b := openTestBackend(t)

	seed := `{"id":"rec-1","createdTime":"2026-04-01T12:00:00Z","commentCount":1,"cellValuesByFieldId":{"fld-title":"seeded"}}
not json at all
{"id":"rec-2","createdTime":"2026-04-02T12:00:00Z","cellValuesByFieldId":{"fld-status":"open","future":"ignored by readers"}}
`
	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	require.NoError(t, b.SeedJSONL(path))

	snap, err := b.FetchAndSubscribeTable(context.Background(), testTableID)
	require.NoError(t, err)
	require.Len(t, snap.RecordsByID, 2)
	assert.Equal(t, "seeded", snap.RecordsByID["rec-1"].CellValuesByFieldID[fieldTitle])
	assert.Equal(t, 1, snap.RecordsByID["rec-1"].CommentCount)
}
