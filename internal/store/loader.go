package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// loadBatch is the shared handle for one backend fetch. Every requester of a
// field whose fetch is covered by the batch waits on done; err is set before
// done is closed and never written afterwards. waits holds in-flight backend
// unsubscribes for the batch's fields; the fetch must not start until they
// complete, or the backend could process subscribe and unsubscribe out of
// order and leave a loaded field without a subscription.
type loadBatch struct {
	fieldIDs []types.FieldID
	waits    []chan struct{}
	done     chan struct{}
	err      error
}

// LoadFields loads cell values for the given fields and retains them.
func (s *TableStore) LoadFields(ctx context.Context, fieldIDs ...types.FieldID) error {
	for _, fieldID := range fieldIDs {
		if !s.schema.HasField(fieldID) {
			return fmt.Errorf("%w: %q", types.ErrFieldUnknown, fieldID)
		}
	}
	return s.loadAndRetain(ctx, dedupFields(fieldIDs))
}

// LoadMetadata loads the record-metadata layer and retains it.
func (s *TableStore) LoadMetadata(ctx context.Context) error {
	return s.loadAndRetain(ctx, []types.FieldID{metadataFieldID})
}

// LoadTable loads every field of the table in one fetch and retains the
// whole-table subscription.
func (s *TableStore) LoadTable(ctx context.Context) error {
	return s.loadAndRetain(ctx, []types.FieldID{wholeTableFieldID})
}

// loadAndRetain retains the fields, starts whatever fetches are needed, and
// blocks until every requested field is settled: already-loaded fields
// resolve immediately, in-flight fields join the existing shared batch, and
// cold fields ride a new batch. The first error among the joined batches is
// returned.
func (s *TableStore) loadAndRetain(ctx context.Context, fieldIDs []types.FieldID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrCacheClosed
	}
	s.retainLocked(fieldIDs)
	joins, started := s.ensureLoadedLocked(fieldIDs)
	s.mu.Unlock()

	// The caller's own first batch runs on the calling goroutine so merge
	// invariant failures surface to the caller that triggered them; any
	// further batches (a metadata sentinel alongside cold fields) run
	// concurrently.
	for _, batch := range started[min(1, len(started)):] {
		go s.runLoad(batch)
	}
	if len(started) > 0 {
		s.runLoad(started[0])
	}
	return awaitBatches(ctx, joins)
}

// ensureLoadedLocked partitions the requested fields into already-loaded
// (nothing to do), in-flight (join the existing batch), and cold. Cold
// regular fields are coalesced into a single new batch; the metadata and
// whole-table sentinels each get their own batch because they map to a
// different backend call. Caller holds s.mu and is responsible for running
// the started batches.
func (s *TableStore) ensureLoadedLocked(fieldIDs []types.FieldID) (joins, started []*loadBatch) {
	join := func(b *loadBatch) {
		if !slices.Contains(joins, b) {
			joins = append(joins, b)
		}
	}

	var cold []types.FieldID
	for _, fieldID := range fieldIDs {
		if batch := s.pendingLoads[fieldID]; batch != nil {
			join(batch)
			continue
		}
		if s.loadedFields[fieldID] {
			continue
		}
		if fieldID != wholeTableFieldID && s.loadedFields[wholeTableFieldID] {
			// The whole-table subscription already covers its data, so no
			// fetch is needed; mark it loaded in its own right so that a
			// later whole-table unload keeps it resident while it is still
			// retained, and so its eventual unload runs its own release.
			s.loadedFields[fieldID] = true
			continue
		}
		if fieldID == metadataFieldID || fieldID == wholeTableFieldID {
			batch := &loadBatch{fieldIDs: []types.FieldID{fieldID}, done: make(chan struct{})}
			if unsub, ok := s.pendingUnsubs[fieldID]; ok {
				batch.waits = append(batch.waits, unsub)
			}
			s.pendingLoads[fieldID] = batch
			join(batch)
			started = append(started, batch)
			continue
		}
		cold = append(cold, fieldID)
	}

	if len(cold) > 0 {
		batch := &loadBatch{fieldIDs: cold, done: make(chan struct{})}
		for _, fieldID := range cold {
			if unsub, ok := s.pendingUnsubs[fieldID]; ok {
				batch.waits = append(batch.waits, unsub)
			}
			s.pendingLoads[fieldID] = batch
		}
		join(batch)
		started = append(started, batch)
	}
	return joins, started
}

// runLoad performs the backend fetch for one batch, merges the snapshot,
// marks the batch fields loaded, and broadcasts the changed watch keys. The
// in-flight markers are cleared on failure as well as success so a later
// load can retry. Completion does not re-check retain counts: a field whose
// watchers vanished mid-flight is still marked loaded and unloads later
// through the debounce path.
func (s *TableStore) runLoad(batch *loadBatch) {
	// Hold the fetch until pending unsubscribes for the batch's fields have
	// reached the backend, so subscription ops stay ordered per field.
	for _, wait := range batch.waits {
		select {
		case <-wait:
		case <-s.ctx.Done():
		}
	}

	var snap *types.Snapshot
	var err error
	switch batch.fieldIDs[0] {
	case wholeTableFieldID:
		snap, err = s.backend.FetchAndSubscribeTable(s.ctx, s.schema.TableID)
		if err != nil {
			err = fmt.Errorf("fetching table %s: %w", s.schema.TableID, err)
		}
	case metadataFieldID:
		snap, err = s.backend.FetchAndSubscribeFields(s.ctx, s.schema.TableID, nil)
		if err != nil {
			err = fmt.Errorf("fetching record metadata for table %s: %w", s.schema.TableID, err)
		}
	default:
		snap, err = s.backend.FetchAndSubscribeFields(s.ctx, s.schema.TableID, batch.fieldIDs)
		if err != nil {
			err = fmt.Errorf("fetching fields %v for table %s: %w", batch.fieldIDs, s.schema.TableID, err)
		}
	}

	changes := func() []types.Change {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, fieldID := range batch.fieldIDs {
			if s.pendingLoads[fieldID] == batch {
				delete(s.pendingLoads, fieldID)
			}
		}
		if s.closed {
			// The table went away while the fetch was in flight; drop the
			// result (or the cancellation error it produced) rather than
			// resurrect state.
			batch.err = types.ErrCacheClosed
			return nil
		}
		if err != nil {
			batch.err = err
			return nil
		}

		merged := s.mergeLocked(snap, batch.fieldIDs)
		for _, fieldID := range batch.fieldIDs {
			s.loadedFields[fieldID] = true
		}
		return merged
	}()

	close(batch.done)
	for _, change := range changes {
		s.notifier.Notify(change.Key.Key(), change)
	}
}

// mergeLocked folds a fetched snapshot into the record map. Existing records
// are preserved; new record ids are inserted wholesale. For known records,
// cell values of exactly the requested fields are overwritten (absence in
// the snapshot means empty) and other fields are left untouched. A
// created-time or comment-count divergence on a known record is a fatal
// consistency violation. Returns the changed watch-key notifications to
// broadcast. Caller holds s.mu.
func (s *TableStore) mergeLocked(snap *types.Snapshot, batchFieldIDs []types.FieldID) []types.Change {
	wholeTable := batchFieldIDs[0] == wholeTableFieldID
	metaOnly := batchFieldIDs[0] == metadataFieldID

	var added, cellRecords []types.RecordID
	var cellFields []types.FieldID
	if !metaOnly && !wholeTable {
		cellFields = slices.Clone(batchFieldIDs)
		slices.Sort(cellFields)
	}

	for _, id := range sortedIDs(snap.RecordsByID) {
		in := snap.RecordsByID[id]
		rec, known := s.recordsByID[id]
		if !known {
			rec = &record{
				createdTime:  in.CreatedTime,
				commentCount: in.CommentCount,
				cells:        make(map[types.FieldID]types.CellValue, len(in.CellValuesByFieldID)),
			}
			for fieldID, value := range in.CellValuesByFieldID {
				rec.cells[fieldID] = value
			}
			s.recordsByID[id] = rec
			added = append(added, id)
			continue
		}

		if !rec.createdTime.Equal(in.CreatedTime) || rec.commentCount != in.CommentCount {
			panic(fmt.Sprintf(
				"gridcache: record %s metadata diverged across loads (createdTime %v vs %v, commentCount %d vs %d)",
				id, rec.createdTime, in.CreatedTime, rec.commentCount, in.CommentCount))
		}
		if metaOnly {
			continue
		}
		if wholeTable {
			for fieldID, value := range in.CellValuesByFieldID {
				rec.cells[fieldID] = value
				if !slices.Contains(cellFields, fieldID) {
					cellFields = append(cellFields, fieldID)
				}
			}
		} else {
			for _, fieldID := range batchFieldIDs {
				if value, ok := in.CellValuesByFieldID[fieldID]; ok {
					rec.cells[fieldID] = value
				} else {
					delete(rec.cells, fieldID)
				}
			}
		}
		cellRecords = append(cellRecords, id)
	}
	if wholeTable {
		slices.Sort(cellFields)
	}

	return buildChanges(added, nil, cellRecords, cellFields)
}

// buildChanges assembles the notification set for one mutation: the
// structural pair first (fired once each, carrying the added and removed id
// lists), then the cell-value fan-out (the union notification followed by
// one per touched field, in stable order).
func buildChanges(added, removed, cellRecords []types.RecordID, cellFields []types.FieldID) []types.Change {
	var changes []types.Change
	if len(added) > 0 || len(removed) > 0 {
		changes = append(changes,
			types.Change{Key: types.AllRecords{}, AddedRecordIDs: added, RemovedRecordIDs: removed},
			types.Change{Key: types.AllRecordIDs{}, AddedRecordIDs: added, RemovedRecordIDs: removed},
		)
	}
	if len(cellRecords) > 0 && len(cellFields) > 0 {
		changes = append(changes, types.Change{
			Key:       types.AllCellValues{},
			RecordIDs: cellRecords,
			FieldIDs:  cellFields,
		})
		for _, fieldID := range cellFields {
			changes = append(changes, types.Change{
				Key:       types.CellValuesInField{FieldID: fieldID},
				RecordIDs: cellRecords,
				FieldIDs:  []types.FieldID{fieldID},
			})
		}
	}
	return changes
}

// awaitBatches blocks until every batch settles or the context is done, and
// returns the first batch error encountered.
func awaitBatches(ctx context.Context, batches []*loadBatch) error {
	for _, batch := range batches {
		select {
		case <-batch.done:
			if batch.err != nil {
				return batch.err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dedupFields returns the unique field ids in first-seen order.
func dedupFields(fieldIDs []types.FieldID) []types.FieldID {
	var unique []types.FieldID
	for _, fieldID := range fieldIDs {
		if !slices.Contains(unique, fieldID) {
			unique = append(unique, fieldID)
		}
	}
	return unique
}

// sortedIDs returns the map keys in sorted order, for deterministic merge
// and notification payloads.
func sortedIDs[K ~string, V any](m map[K]V) []K {
	ids := make([]K, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
