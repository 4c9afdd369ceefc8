package types

// TableDiff is a tree-shaped diff of one table, keyed by record id, as pushed
// by a backend after the initial snapshot. Each entry is either a structural
// marker (record added or removed) or an in-place change of cell values.
type TableDiff struct {
	RecordsByID map[RecordID]RecordDiff `json:"recordsById"`
}

// RecordDiff describes the change to one record.
//
// When Structural is true the entry is an addition (Record carries the new
// snapshot) or a removal (Record is nil). When Structural is false,
// CellValuesByFieldID holds the in-place cell changes.
type RecordDiff struct {
	Structural          bool                  `json:"structural,omitempty"`
	Record              *RecordSnapshot       `json:"record,omitempty"`
	CellValuesByFieldID map[FieldID]CellValue `json:"cellValuesByFieldId,omitempty"`
}

// IsEmpty reports whether the diff carries no entries.
func (d TableDiff) IsEmpty() bool {
	return len(d.RecordsByID) == 0
}
