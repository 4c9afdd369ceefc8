package types

import "slices"

// TableSchema is the already-loaded schema of one table. Schema loading is
// owned by an external layer; the cache only consults the field list, the
// primary field, and the set of views.
type TableSchema struct {
	TableID        TableID `json:"tableId"`
	Name           string  `json:"name"`
	PrimaryFieldID FieldID `json:"primaryFieldId"`

	FieldIDs []FieldID `json:"fieldIds"`
	ViewIDs  []ViewID  `json:"viewIds,omitempty"`
}

// HasField reports whether the schema defines the given field.
func (s TableSchema) HasField(fieldID FieldID) bool {
	return slices.Contains(s.FieldIDs, fieldID)
}

// HasView reports whether the schema defines the given view.
func (s TableSchema) HasView(viewID ViewID) bool {
	return slices.Contains(s.ViewIDs, viewID)
}
