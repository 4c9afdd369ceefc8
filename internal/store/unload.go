package store

import (
	"time"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// UnloadFields releases the given fields. Fields whose retain count reaches
// zero are scheduled for a debounced unload; releasing an already-unloaded
// field is logged and ignored.
func (s *TableStore) UnloadFields(fieldIDs ...types.FieldID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked(dedupFields(fieldIDs))
}

// UnloadMetadata releases the record-metadata layer.
func (s *TableStore) UnloadMetadata() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked([]types.FieldID{metadataFieldID})
}

// UnloadTable releases the whole-table subscription.
func (s *TableStore) UnloadTable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked([]types.FieldID{wholeTableFieldID})
}

func (s *TableStore) unloadLocked(fieldIDs []types.FieldID) {
	if s.closed {
		return
	}
	for _, fieldID := range s.releaseLocked(fieldIDs) {
		s.scheduleUnloadLocked(fieldID)
	}
}

// scheduleUnloadLocked arms the debounce timer for a field whose retain
// count just reached zero. The field stays resident for the whole window; a
// retain during the window disarms the timer (retention.go). Caller holds
// s.mu.
func (s *TableStore) scheduleUnloadLocked(fieldID types.FieldID) {
	if _, armed := s.pendingUnloads[fieldID]; armed {
		return
	}
	s.pendingUnloads[fieldID] = time.AfterFunc(s.debounce, func() {
		s.finishUnload(fieldID)
	})
}

// finishUnload runs at debounce expiry. It re-checks that the field is still
// unretained (a re-watch may have occurred during the delay) and only then
// unsubscribes from the backend, clears the loaded flag, and evicts the
// field's cell values. When the last loaded field goes away the entire
// record map and row wrapper cache are dropped, not just the field's values.
func (s *TableStore) finishUnload(fieldID types.FieldID) {
	s.mu.Lock()
	delete(s.pendingUnloads, fieldID)

	if s.closed || s.retainCounts[fieldID] > 0 {
		s.mu.Unlock()
		return
	}
	if _, inFlight := s.pendingLoads[fieldID]; inFlight {
		// A load raced the debounce window. Let it complete; its result
		// stays resident until a later release runs the unload over again.
		s.mu.Unlock()
		return
	}
	if !s.loadedFields[fieldID] {
		// Never loaded, or a failed load was abandoned. No subscription to
		// release.
		s.mu.Unlock()
		return
	}

	delete(s.loadedFields, fieldID)
	tableLoaded := s.loadedFields[wholeTableFieldID]

	switch fieldID {
	case metadataFieldID:
		// The metadata layer owns no cell values.
	case wholeTableFieldID:
		// Keep only the cells of fields still individually loaded.
		for _, rec := range s.recordsByID {
			for cellFieldID := range rec.cells {
				if !s.loadedFields[cellFieldID] {
					delete(rec.cells, cellFieldID)
				}
			}
		}
	default:
		// Per-field clearing is meaningless while the whole table stays
		// loaded.
		if !tableLoaded {
			for _, rec := range s.recordsByID {
				delete(rec.cells, fieldID)
			}
		}
	}

	if len(s.loadedFields) == 0 {
		s.dropAllLocked()
	}

	// The unsubscribe runs outside the lock, but a reload of the same field
	// must not issue its subscribe until this one has reached the backend;
	// the marker makes new load batches wait (loader.go).
	unsubDone := make(chan struct{})
	s.pendingUnsubs[fieldID] = unsubDone
	s.mu.Unlock()

	var err error
	switch fieldID {
	case metadataFieldID:
		err = s.backend.UnsubscribeFields(s.schema.TableID, nil)
	case wholeTableFieldID:
		err = s.backend.UnsubscribeTable(s.schema.TableID)
	default:
		err = s.backend.UnsubscribeFields(s.schema.TableID, []types.FieldID{fieldID})
	}

	s.mu.Lock()
	if s.pendingUnsubs[fieldID] == unsubDone {
		delete(s.pendingUnsubs, fieldID)
	}
	s.mu.Unlock()
	close(unsubDone)

	if err != nil {
		s.logger.Warn("backend unsubscribe failed", "field", fieldID, "error", err)
	}
}

// dropAllLocked discards the record map and every row wrapper. Rows already
// handed out are marked deleted so later use fails loudly. Caller holds s.mu.
func (s *TableStore) dropAllLocked() {
	for id, r := range s.rowsByID {
		r.deleted.Store(true)
		delete(s.rowsByID, id)
	}
	s.recordsByID = make(map[types.RecordID]*record)
}
