package types

import "context"

// Backend is the contract between the cache and the remote source of truth.
// Fetch calls return the current snapshot and register a subscription for
// future push diffs; Unsubscribe calls release a prior subscription at the
// same granularity.
//
// A nil or empty field set addresses the record-metadata layer: ids,
// creation times, and comment counts without any cell values.
type Backend interface {
	// FetchAndSubscribeFields returns a snapshot of cell values for the
	// given fields and subscribes to future changes of those fields.
	FetchAndSubscribeFields(ctx context.Context, tableID TableID, fieldIDs []FieldID) (*Snapshot, error)

	// FetchAndSubscribeTable returns a whole-table snapshot (every field's
	// cell values) and subscribes to all future changes of the table.
	FetchAndSubscribeTable(ctx context.Context, tableID TableID) (*Snapshot, error)

	// UnsubscribeFields releases a field-set subscription.
	UnsubscribeFields(tableID TableID, fieldIDs []FieldID) error

	// UnsubscribeTable releases a whole-table subscription.
	UnsubscribeTable(tableID TableID) error

	// Diffs returns the channel on which the backend delivers out-of-band
	// push diffs. The channel is closed when the backend shuts down.
	Diffs() <-chan TableDiff
}
