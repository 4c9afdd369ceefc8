package store

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mesh-intelligence/gridcache/internal/notify"
	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// row is the memoized presentation wrapper for one record. It holds no data
// of its own: every read goes through the store's record map, so unloading a
// field never invalidates the wrapper. The wrapper dies only with the record
// itself (structural removal or full unload).
type row struct {
	store *TableStore
	id    types.RecordID

	deleted  atomic.Bool
	notifier *notify.Notifier[types.Change]
}

var _ types.Row = (*row)(nil)

// RecordIDs returns the known record ids in unspecified order.
func (s *TableStore) RecordIDs() []types.RecordID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireMetadataLoadedLocked("RecordIDs")

	ids := make([]types.RecordID, 0, len(s.recordsByID))
	for id := range s.recordsByID {
		ids = append(ids, id)
	}
	return ids
}

// Rows returns a row wrapper per known record in unspecified order.
func (s *TableStore) Rows() []types.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireMetadataLoadedLocked("Rows")

	rows := make([]types.Row, 0, len(s.recordsByID))
	for id := range s.recordsByID {
		rows = append(rows, s.rowLocked(id))
	}
	return rows
}

// RowByID returns the memoized row wrapper for the given record id, or nil
// when the id is unknown.
func (s *TableStore) RowByID(id types.RecordID) types.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireMetadataLoadedLocked("RowByID")

	if _, known := s.recordsByID[id]; !known {
		return nil
	}
	return s.rowLocked(id)
}

// rowLocked returns the existing wrapper for id or constructs and caches
// one. Caller holds s.mu and has checked that the record exists.
func (s *TableStore) rowLocked(id types.RecordID) *row {
	if r, ok := s.rowsByID[id]; ok {
		return r
	}
	r := &row{
		store:    s,
		id:       id,
		notifier: notify.New[types.Change](),
	}
	s.rowsByID[id] = r
	return r
}

func (r *row) ID() types.RecordID {
	return r.id
}

// record returns the backing record state, panicking when the record has
// been removed. A wrapper outliving its record is only reachable through a
// stale consumer reference; reads through it are a contract breach.
func (r *row) record() *record {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, known := r.store.recordsByID[r.id]
	if r.deleted.Load() || !known {
		panic(fmt.Sprintf("gridcache: record %s has been deleted", r.id))
	}
	return rec
}

func (r *row) CreatedTime() time.Time {
	return r.record().createdTime
}

func (r *row) CommentCount() int {
	return r.record().commentCount
}

// CellValue returns the cell value for the given field, or nil when the
// cell is empty or the field is not loaded.
func (r *row) CellValue(fieldID types.FieldID) types.CellValue {
	return r.record().cells[fieldID]
}

// Watch registers fn for this record's own cell changes, fed by forwarded
// in-place diffs. Only the cell-value key variants are meaningful on a row.
func (r *row) Watch(keys []types.WatchKey, fn func(types.Change)) types.Watcher {
	canonical := make([]string, 0, len(keys))
	for _, key := range keys {
		switch key.(type) {
		case types.AllCellValues, types.CellValuesInField:
		default:
			panic(fmt.Sprintf("gridcache: watch key %q is not a row-level key", key.Key()))
		}
		canonical = append(canonical, key.Key())
	}
	reg := r.notifier.Watch(canonical, fn)
	return &rowWatcher{keys: cloneKeys(keys), reg: reg}
}

// Unwatch removes a row-level registration.
func (r *row) Unwatch(w types.Watcher) {
	rw, ok := w.(*rowWatcher)
	if !ok {
		panic("gridcache: Unwatch called with a watcher from a different surface")
	}
	r.notifier.Unwatch(rw.reg)
}

// noteCellChanges fires the row's own watchers for a forwarded in-place
// diff: the union key first, then one per-field key in stable order.
func (r *row) noteCellChanges(cells map[types.FieldID]types.CellValue) {
	if len(cells) == 0 {
		return
	}
	fieldIDs := sortedIDs(cells)
	recordIDs := []types.RecordID{r.id}

	union := types.Change{Key: types.AllCellValues{}, RecordIDs: recordIDs, FieldIDs: fieldIDs}
	r.notifier.Notify(union.Key.Key(), union)
	for _, fieldID := range fieldIDs {
		change := types.Change{
			Key:       types.CellValuesInField{FieldID: fieldID},
			RecordIDs: recordIDs,
			FieldIDs:  []types.FieldID{fieldID},
		}
		r.notifier.Notify(change.Key.Key(), change)
	}
}

// rowWatcher is the registration handle for row-level watches.
type rowWatcher struct {
	keys []types.WatchKey
	reg  *notify.Registration
}

func (w *rowWatcher) Keys() []types.WatchKey {
	return cloneKeys(w.keys)
}

func cloneKeys(keys []types.WatchKey) []types.WatchKey {
	out := make([]types.WatchKey, len(keys))
	copy(out, keys)
	return out
}
