package store

import (
	"fmt"
	"sync/atomic"

	"github.com/mesh-intelligence/gridcache/internal/notify"
	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// watcher is the registration handle for store-level watches. released
// guards the retention mirror: a second Unwatch must not decrement counts
// another watcher still owns.
type watcher struct {
	keys     []types.WatchKey
	reg      *notify.Registration
	released atomic.Bool
}

var _ types.Watcher = (*watcher)(nil)

func (w *watcher) Keys() []types.WatchKey {
	return cloneKeys(w.keys)
}

// Watch registers fn for the given keys and kicks off the loads the keys
// imply. Watchers do not block on the initial load: the fetch runs in the
// background and failures are logged, leaving the retention in place so a
// later load can retry.
func (s *TableStore) Watch(keys []types.WatchKey, fn func(types.Change)) types.Watcher {
	canonical := make([]string, 0, len(keys))
	for _, key := range keys {
		if k, ok := key.(types.CellValuesInField); ok && !s.schema.HasField(k.FieldID) {
			panic(fmt.Sprintf("gridcache: watch key names field %q not in schema of table %s", k.FieldID, s.schema.TableID))
		}
		canonical = append(canonical, key.Key())
	}

	reg := s.notifier.Watch(canonical, fn)
	w := &watcher{keys: cloneKeys(keys), reg: reg}

	fieldIDs := s.watchFieldIDs(keys)
	if len(fieldIDs) == 0 {
		return w
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return w
	}
	s.retainLocked(fieldIDs)
	joins, started := s.ensureLoadedLocked(fieldIDs)
	s.mu.Unlock()

	for _, batch := range started {
		go s.runLoad(batch)
	}
	go func() {
		if err := awaitBatches(s.ctx, joins); err != nil {
			s.logger.Warn("watch-triggered load failed", "error", err)
		}
	}()
	return w
}

// Unwatch removes a registration and releases the fields its keys retained,
// scheduling debounced unloads where retention reached zero.
func (s *TableStore) Unwatch(watch types.Watcher) {
	w, ok := watch.(*watcher)
	if !ok {
		panic("gridcache: Unwatch called with a watcher from a different surface")
	}
	if !w.released.CompareAndSwap(false, true) {
		s.logger.Warn("watcher unwatched more than once")
		return
	}

	s.notifier.Unwatch(w.reg)

	fieldIDs := s.watchFieldIDs(w.keys)
	if len(fieldIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked(fieldIDs)
}

// watchFieldIDs translates watch keys to the fields they require resident:
// a field-scoped key needs its field, the structural keys need the primary
// field as the cheapest metadata proxy (record existence requires at least
// one field loaded), and the table-wide cell key needs every field. The
// result is deduplicated so Watch/Unwatch retain and release symmetrically.
func (s *TableStore) watchFieldIDs(keys []types.WatchKey) []types.FieldID {
	var fieldIDs []types.FieldID
	for _, key := range keys {
		switch k := key.(type) {
		case types.CellValuesInField:
			fieldIDs = append(fieldIDs, k.FieldID)
		case types.AllRecords, types.AllRecordIDs:
			fieldIDs = append(fieldIDs, s.schema.PrimaryFieldID)
		case types.AllCellValues:
			fieldIDs = append(fieldIDs, s.schema.FieldIDs...)
		}
	}
	return dedupFields(fieldIDs)
}
