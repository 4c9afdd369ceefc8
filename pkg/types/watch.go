package types

// WatchKey selects what a watcher wants to observe on a table. The variants
// form a closed set; consumers match on the concrete type rather than parse
// strings. Key returns the canonical form used by the notification substrate.
type WatchKey interface {
	Key() string
	watchKey()
}

// AllRecords observes structural record changes (additions and removals),
// delivered with the added and removed id lists.
type AllRecords struct{}

// AllRecordIDs observes the set of record ids. It fires together with
// AllRecords and carries the same payload; it exists so consumers that only
// mirror the id set do not have to watch full records.
type AllRecordIDs struct{}

// AllCellValues observes in-place cell changes across every field, delivered
// with the affected record and field id sets.
type AllCellValues struct{}

// CellValuesInField observes in-place cell changes within a single field.
type CellValuesInField struct {
	FieldID FieldID
}

func (AllRecords) Key() string   { return "records" }
func (AllRecords) watchKey()     {}
func (AllRecordIDs) Key() string { return "recordIds" }
func (AllRecordIDs) watchKey()   {}

func (AllCellValues) Key() string { return "cellValues" }
func (AllCellValues) watchKey()   {}

func (k CellValuesInField) Key() string { return "cellValuesInField:" + string(k.FieldID) }
func (CellValuesInField) watchKey()     {}

// Change is the payload delivered to a watch callback. Key identifies which
// watch key fired; the remaining slices are filled per key variant:
// AllRecords/AllRecordIDs carry Added/Removed, the cell-value keys carry
// RecordIDs and FieldIDs. Callbacks must not mutate the slices.
type Change struct {
	Key WatchKey

	AddedRecordIDs   []RecordID
	RemovedRecordIDs []RecordID

	RecordIDs []RecordID
	FieldIDs  []FieldID
}

// Watcher is the handle returned by a watch registration; passing it back to
// Unwatch removes the registration and releases the field retention the
// watch acquired.
type Watcher interface {
	// Keys returns the watch keys this registration covers.
	Keys() []WatchKey
}
