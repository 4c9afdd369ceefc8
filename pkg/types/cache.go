package types

import (
	"context"
	"time"
)

// TableCache is the per-table, field-granular record cache. One instance is
// created per table and lives for the table's lifetime. All methods are safe
// for concurrent use.
//
// Load methods retain the requested fields and block until every requested
// field is settled; concurrent overlapping loads share at most one
// outstanding backend fetch per field. Every Load call retains exactly one
// unit per field, successful or not: a failed load leaves the caller's
// retain contribution in place, so the caller either pairs it with the
// matching Unload to abandon, or retries with a fresh Load call (holding one
// extra unit per attempt, each balanced by its own Unload). Unload methods
// release; actual eviction is debounced and re-checked, so rapid load/unload
// churn does not cause backend subscribe/unsubscribe churn.
//
// Accessors that require record metadata panic when metadata is not loaded:
// calling them early is a consumer contract breach, not a runtime condition.
type TableCache interface {
	// LoadMetadata loads the record-metadata layer (ids, creation times,
	// comment counts) and retains it.
	LoadMetadata(ctx context.Context) error

	// UnloadMetadata releases the metadata layer.
	UnloadMetadata()

	// LoadFields loads cell values for the given fields and retains them.
	// Fields not present in the schema are rejected with ErrFieldUnknown.
	LoadFields(ctx context.Context, fieldIDs ...FieldID) error

	// UnloadFields releases the given fields. Releasing more than was
	// loaded is logged and ignored.
	UnloadFields(fieldIDs ...FieldID)

	// LoadTable loads every field of the table in one fetch and retains
	// the whole-table subscription.
	LoadTable(ctx context.Context) error

	// UnloadTable releases the whole-table subscription.
	UnloadTable()

	// MetadataLoaded reports whether record metadata is resident.
	MetadataLoaded() bool

	// FieldValuesLoaded reports whether the given field's cell values are
	// resident.
	FieldValuesLoaded(fieldID FieldID) bool

	// RecordIDs returns the known record ids in unspecified order.
	// Panics when metadata is not loaded.
	RecordIDs() []RecordID

	// Rows returns a row wrapper per known record in unspecified order.
	// Panics when metadata is not loaded.
	Rows() []Row

	// RowByID returns the memoized row wrapper for the given record id, or
	// nil when the id is unknown. Panics when metadata is not loaded.
	RowByID(id RecordID) Row

	// ViewIndex returns the memoized per-view index for the given view.
	// Panics when the view is not in the schema.
	ViewIndex(viewID ViewID) ViewIndex

	// Watch registers the callback for the given keys and kicks off the
	// loads the keys imply; watchers do not block on the initial load.
	Watch(keys []WatchKey, fn func(Change)) Watcher

	// Unwatch removes a registration and releases the fields its keys
	// retained.
	Unwatch(w Watcher)

	// Close stops the diff run loop and cancels pending debounced unloads.
	Close()
}

// Row is the memoized presentation wrapper for one record. A row is unique
// for the lifetime of its record and is evicted only on structural removal;
// using a row after its record was removed panics.
type Row interface {
	ID() RecordID

	// CreatedTime returns the record's immutable creation time.
	CreatedTime() time.Time

	// CommentCount returns the record's externally maintained comment count.
	CommentCount() int

	// CellValue returns the cell value for the given field, or nil when the
	// cell is empty or the field is not loaded.
	CellValue(fieldID FieldID) CellValue

	// Watch registers the callback for this record's own cell changes.
	// Supported keys are AllCellValues and CellValuesInField.
	Watch(keys []WatchKey, fn func(Change)) Watcher

	// Unwatch removes a row-level registration.
	Unwatch(w Watcher)
}

// ViewIndex is the per-view read surface. Ordering is owned by the view
// layer; outside it the order of returned ids is unspecified.
type ViewIndex interface {
	ViewID() ViewID

	// RecordIDs returns the known record ids. Panics when metadata is not
	// loaded.
	RecordIDs() []RecordID

	// Rows returns a row wrapper per known record. Panics when metadata is
	// not loaded.
	Rows() []Row
}
