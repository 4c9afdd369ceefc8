// Package store implements the per-table record cache: watch-driven field
// activation, deduplicated async loads, retain-count-gated unloading with a
// debounce window, and translation of backend push diffs into watch-key
// notifications.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/gridcache/internal/notify"
	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// Reserved sentinel field ids. The record-metadata layer and the whole-table
// subscription ride the same per-field retention, load-dedup, and debounced
// unload machinery as regular fields; these ids key their bookkeeping. They
// never collide with schema field ids, which come from the backing store.
const (
	metadataFieldID   = types.FieldID("\x00recordMetadata")
	wholeTableFieldID = types.FieldID("\x00wholeTable")
)

// record is the cached state of one record. cells holds values only for
// loaded fields; absence of a key is not observable to consumers of a field
// that is not loaded.
type record struct {
	createdTime  time.Time
	commentCount int
	cells        map[types.FieldID]types.CellValue
}

// TableStore is the cache instance for one table. All shared mutable state
// (the record map, per-field flags and counts, the pending-load map) is
// owned by the instance and guarded by mu; consumers only see it through the
// accessor contracts.
type TableStore struct {
	schema   types.TableSchema
	backend  types.Backend
	logger   *slog.Logger
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	retainCounts   map[types.FieldID]int
	loadedFields   map[types.FieldID]bool
	pendingLoads   map[types.FieldID]*loadBatch
	pendingUnloads map[types.FieldID]*time.Timer
	pendingUnsubs  map[types.FieldID]chan struct{}
	recordsByID    map[types.RecordID]*record
	rowsByID       map[types.RecordID]*row
	viewsByID      map[types.ViewID]*viewIndex

	notifier *notify.Notifier[types.Change]
}

var _ types.TableCache = (*TableStore)(nil)

// New creates the cache for one table and starts consuming the backend's
// push diffs. The logger may be nil; slog.Default is used then.
func New(backend types.Backend, schema types.TableSchema, cfg types.Config, logger *slog.Logger) (*TableStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &TableStore{
		schema:   schema,
		backend:  backend,
		logger:   logger.With("table", schema.TableID),
		debounce: cfg.EffectiveUnloadDebounce(),

		ctx:    ctx,
		cancel: cancel,

		retainCounts:   make(map[types.FieldID]int),
		loadedFields:   make(map[types.FieldID]bool),
		pendingLoads:   make(map[types.FieldID]*loadBatch),
		pendingUnloads: make(map[types.FieldID]*time.Timer),
		pendingUnsubs:  make(map[types.FieldID]chan struct{}),
		recordsByID:    make(map[types.RecordID]*record),
		rowsByID:       make(map[types.RecordID]*row),
		viewsByID:      make(map[types.ViewID]*viewIndex),

		notifier: notify.New[types.Change](),
	}

	go s.runDiffLoop()
	return s, nil
}

// Schema returns the table schema the store was created with.
func (s *TableStore) Schema() types.TableSchema {
	return s.schema
}

// runDiffLoop applies backend push diffs until the backend channel closes or
// the store is closed.
func (s *TableStore) runDiffLoop() {
	for {
		select {
		case diff, ok := <-s.backend.Diffs():
			if !ok {
				return
			}
			s.ApplyDiff(diff)
		case <-s.ctx.Done():
			return
		}
	}
}

// Close stops the diff run loop and cancels pending debounced unloads. It
// does not unsubscribe from the backend: the table is going away with the
// store, and the backend owns its own shutdown.
func (s *TableStore) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for fieldID, timer := range s.pendingUnloads {
		timer.Stop()
		delete(s.pendingUnloads, fieldID)
	}
}

// MetadataLoaded reports whether record metadata is resident. Metadata
// arrives with any completed load: a metadata-only fetch, a field fetch, or
// a whole-table fetch.
func (s *TableStore) MetadataLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataLoadedLocked()
}

func (s *TableStore) metadataLoadedLocked() bool {
	return len(s.loadedFields) > 0
}

// FieldValuesLoaded reports whether the given field's cell values are
// resident, either through a field load or a whole-table load.
func (s *TableStore) FieldValuesLoaded(fieldID types.FieldID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedFields[fieldID] || s.loadedFields[wholeTableFieldID]
}

// requireMetadataLoadedLocked panics when record metadata is not resident.
// Accessors that need the record map document this contract; breaching it is
// a programming error in the consumer.
func (s *TableStore) requireMetadataLoadedLocked(op string) {
	if !s.metadataLoadedLocked() {
		panic(fmt.Sprintf("gridcache: %s called before record metadata was loaded (table %s)", op, s.schema.TableID))
	}
}
