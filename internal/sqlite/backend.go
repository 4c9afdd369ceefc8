// Package sqlite implements a reference data backend for gridcache on top
// of a local SQLite database. It serves field-restricted snapshots, tracks
// subscriptions per field set and per table, and converts local mutations
// into push diffs for subscribed fields.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// diffBuffer bounds the push channel. A consumer that stops draining loses
// diffs rather than wedging local writes; drops are logged.
const diffBuffer = 64

// Backend serves one logical table from a SQLite database.
type Backend struct {
	tableID types.TableID
	logger  *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool

	subscribedFields map[types.FieldID]bool
	metadataSubbed   bool
	tableSubbed      bool

	diffs chan types.TableDiff
}

var _ types.Backend = (*Backend)(nil)

// Open opens (creating if needed) the database at path and prepares the
// schema. The backend serves exactly the given table id. The logger may be
// nil.
func Open(path string, tableID types.TableID, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing schema: %w", err)
	}
	return &Backend{
		tableID:          tableID,
		logger:           logger.With("table", tableID),
		db:               db,
		subscribedFields: make(map[types.FieldID]bool),
		diffs:            make(chan types.TableDiff, diffBuffer),
	}, nil
}

// Close releases the database and closes the diff channel.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.diffs)
	return b.db.Close()
}

func (b *Backend) checkTable(tableID types.TableID) error {
	if tableID != b.tableID {
		return fmt.Errorf("%w: %s", types.ErrTableUnknown, tableID)
	}
	return nil
}

// FetchAndSubscribeFields returns a snapshot restricted to the given fields
// (metadata only when the field set is empty) and records the subscription.
func (b *Backend) FetchAndSubscribeFields(ctx context.Context, tableID types.TableID, fieldIDs []types.FieldID) (*types.Snapshot, error) {
	if err := b.checkTable(tableID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, types.ErrBackendClosed
	}
	if len(fieldIDs) == 0 {
		b.metadataSubbed = true
	}
	for _, fieldID := range fieldIDs {
		b.subscribedFields[fieldID] = true
	}
	b.mu.Unlock()

	return b.snapshot(ctx, fieldIDs, false)
}

// FetchAndSubscribeTable returns a whole-table snapshot and records the
// table subscription.
func (b *Backend) FetchAndSubscribeTable(ctx context.Context, tableID types.TableID) (*types.Snapshot, error) {
	if err := b.checkTable(tableID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, types.ErrBackendClosed
	}
	b.tableSubbed = true
	b.mu.Unlock()

	return b.snapshot(ctx, nil, true)
}

// UnsubscribeFields releases a field-set (or, for an empty set, the
// metadata) subscription.
func (b *Backend) UnsubscribeFields(tableID types.TableID, fieldIDs []types.FieldID) error {
	if err := b.checkTable(tableID); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(fieldIDs) == 0 {
		b.metadataSubbed = false
	}
	for _, fieldID := range fieldIDs {
		delete(b.subscribedFields, fieldID)
	}
	return nil
}

// UnsubscribeTable releases the whole-table subscription.
func (b *Backend) UnsubscribeTable(tableID types.TableID) error {
	if err := b.checkTable(tableID); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tableSubbed = false
	return nil
}

// Diffs returns the push channel. It is closed by Close.
func (b *Backend) Diffs() <-chan types.TableDiff {
	return b.diffs
}

// snapshot loads records from the database, restricted to the given fields;
// all selects every cell.
func (b *Backend) snapshot(ctx context.Context, fieldIDs []types.FieldID, all bool) (*types.Snapshot, error) {
	snap := &types.Snapshot{RecordsByID: make(map[types.RecordID]*types.RecordSnapshot)}

	rows, err := b.db.QueryContext(ctx, "SELECT record_id, created_at, comment_count FROM records")
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, createdAt string
		var commentCount int
		if err := rows.Scan(&id, &createdAt, &commentCount); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at of record %s: %w", id, err)
		}
		snap.RecordsByID[types.RecordID(id)] = &types.RecordSnapshot{
			ID:           types.RecordID(id),
			CreatedTime:  created,
			CommentCount: commentCount,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	if !all && len(fieldIDs) == 0 {
		return snap, nil
	}

	query := "SELECT record_id, field_id, value FROM cells"
	var args []any
	if !all {
		query += " WHERE field_id IN (" + placeholders(len(fieldIDs)) + ")"
		for _, fieldID := range fieldIDs {
			args = append(args, string(fieldID))
		}
	}
	cellRows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cells: %w", err)
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var recordID, fieldID, raw string
		if err := cellRows.Scan(&recordID, &fieldID, &raw); err != nil {
			return nil, fmt.Errorf("scanning cell: %w", err)
		}
		rec, ok := snap.RecordsByID[types.RecordID(recordID)]
		if !ok {
			continue
		}
		var value types.CellValue
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decoding cell (%s, %s): %w", recordID, fieldID, err)
		}
		if rec.CellValuesByFieldID == nil {
			rec.CellValuesByFieldID = make(map[types.FieldID]types.CellValue)
		}
		rec.CellValuesByFieldID[types.FieldID(fieldID)] = value
	}
	if err := cellRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cells: %w", err)
	}
	return snap, nil
}

func placeholders(n int) string {
	out := ""
	for i := range n {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}

// emit pushes a diff to the consumer without blocking local writes.
func (b *Backend) emit(diff types.TableDiff) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.diffs <- diff:
	default:
		b.logger.Warn("diff channel full, dropping diff")
	}
}

// anySubscription reports whether some consumer registered interest.
func (b *Backend) anySubscription() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tableSubbed || b.metadataSubbed || len(b.subscribedFields) > 0
}

// fieldSubscribed reports whether cell changes of the field are of interest.
func (b *Backend) fieldSubscribed(fieldID types.FieldID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tableSubbed || b.subscribedFields[fieldID]
}
