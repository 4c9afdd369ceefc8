package store

import (
	"slices"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// rowDelivery carries one record's in-place cell diff to its existing row
// wrapper, delivered after the store lock is released.
type rowDelivery struct {
	row   *row
	cells map[types.FieldID]types.CellValue
}

// ApplyDiff folds a backend push diff into the record map and translates it
// into watch-key notifications. Nothing happens while record metadata is not
// loaded: there is no resident state to diff against.
//
// Structural entries are applied first. An id that ends up absent from the
// record map is a removal (its row wrapper, if any, is evicted); an id that
// ends up present is an addition. In-place entries overwrite cell values and
// are forwarded to existing row wrappers; a wrapper is never created just to
// deliver a diff. Notifications fire structural-first: "all records" and
// "all record ids" once each with the added/removed lists, then one "all
// cell values" with the touched record and field sets, then one per-field
// notification in stable order.
func (s *TableStore) ApplyDiff(diff types.TableDiff) {
	if diff.IsEmpty() {
		return
	}

	s.mu.Lock()
	if s.closed || !s.metadataLoadedLocked() {
		s.mu.Unlock()
		return
	}

	ids := sortedIDs(diff.RecordsByID)

	// Structural pass: mutate the record map so membership below reflects
	// the post-diff state.
	for _, id := range ids {
		entry := diff.RecordsByID[id]
		if !entry.Structural {
			continue
		}
		if entry.Record == nil {
			delete(s.recordsByID, id)
			continue
		}
		if _, known := s.recordsByID[id]; known {
			// Re-added over an existing record: keep the resident entry,
			// the backend snapshot layer owns reconciliation.
			continue
		}
		rec := &record{
			createdTime:  entry.Record.CreatedTime,
			commentCount: entry.Record.CommentCount,
			cells:        make(map[types.FieldID]types.CellValue, len(entry.Record.CellValuesByFieldID)),
		}
		for fieldID, value := range entry.Record.CellValuesByFieldID {
			rec.cells[fieldID] = value
		}
		s.recordsByID[id] = rec
	}

	var added, removed, cellRecords []types.RecordID
	var cellFields []types.FieldID
	var deliveries []rowDelivery

	for _, id := range ids {
		entry := diff.RecordsByID[id]
		if entry.Structural {
			if _, known := s.recordsByID[id]; known {
				added = append(added, id)
			} else {
				removed = append(removed, id)
				if r, ok := s.rowsByID[id]; ok {
					r.deleted.Store(true)
					delete(s.rowsByID, id)
				}
			}
			continue
		}

		rec, known := s.recordsByID[id]
		if !known {
			// Changed and deleted in the same push, or deleted while a load
			// was in flight. Nothing to notify for an absent entity.
			continue
		}
		if len(entry.CellValuesByFieldID) == 0 {
			continue
		}
		for _, fieldID := range sortedIDs(entry.CellValuesByFieldID) {
			rec.cells[fieldID] = entry.CellValuesByFieldID[fieldID]
			if !slices.Contains(cellFields, fieldID) {
				cellFields = append(cellFields, fieldID)
			}
		}
		cellRecords = append(cellRecords, id)
		if r, ok := s.rowsByID[id]; ok {
			deliveries = append(deliveries, rowDelivery{row: r, cells: entry.CellValuesByFieldID})
		}
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.row.noteCellChanges(d.cells)
	}
	for _, change := range buildChanges(added, removed, cellRecords, cellFields) {
		s.notifier.Notify(change.Key.Key(), change)
	}
}
