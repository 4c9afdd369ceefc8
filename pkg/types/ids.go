package types

import "github.com/google/uuid"

// Opaque identifiers for the entities managed by the cache. Ids are assigned
// by the backing store; the cache never interprets their contents.
type (
	// TableID identifies one table.
	TableID string

	// FieldID identifies one field (column) within a table. Fields are the
	// unit of lazy-load granularity for cell values.
	FieldID string

	// RecordID identifies one record (row) within a table.
	RecordID string

	// ViewID identifies one view belonging to a table.
	ViewID string
)

// NewRecordID generates a time-ordered record id. Used by backends that
// create records locally; falls back to a random UUID if the monotonic
// source fails.
func NewRecordID() RecordID {
	id, err := uuid.NewV7()
	if err != nil {
		return RecordID(uuid.New().String())
	}
	return RecordID(id.String())
}
