package types

import "time"

// CellValue is the opaque value of one (record, field) pair. A nil value can
// mean "empty" as well as "not loaded"; callers distinguish the two through
// TableCache.FieldValuesLoaded, never through the value itself.
type CellValue = any

// RecordSnapshot is the wire representation of one record as served by a
// backend: identity, immutable creation time, the externally maintained
// comment count, and cell values for whatever fields the fetch covered.
type RecordSnapshot struct {
	ID                  RecordID              `json:"id"`
	CreatedTime         time.Time             `json:"createdTime"`
	CommentCount        int                   `json:"commentCount"`
	CellValuesByFieldID map[FieldID]CellValue `json:"cellValuesByFieldId,omitempty"`
}

// Snapshot is the result of a fetch-and-subscribe call: the current contents
// of the table, restricted to the requested field set.
type Snapshot struct {
	RecordsByID map[RecordID]*RecordSnapshot `json:"recordsById"`
}
