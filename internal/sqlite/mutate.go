// Local mutation surface: writes go to the database first and are then
// pushed to subscribed consumers as diffs.
package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// InsertRecord creates a record with the given cells. When id is empty a
// time-ordered id is generated. Returns the id actually used.
func (b *Backend) InsertRecord(id types.RecordID, createdAt time.Time, cells map[types.FieldID]types.CellValue) (types.RecordID, error) {
	if id == "" {
		id = types.NewRecordID()
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO records (record_id, created_at, comment_count) VALUES (?, ?, 0)",
		string(id), createdAt.Format(time.RFC3339Nano),
	); err != nil {
		return "", fmt.Errorf("inserting record %s: %w", id, err)
	}
	for fieldID, value := range cells {
		raw, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encoding cell (%s, %s): %w", id, fieldID, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO cells (record_id, field_id, value) VALUES (?, ?, ?)",
			string(id), string(fieldID), string(raw),
		); err != nil {
			return "", fmt.Errorf("inserting cell (%s, %s): %w", id, fieldID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing insert: %w", err)
	}

	if b.anySubscription() {
		b.emit(types.TableDiff{RecordsByID: map[types.RecordID]types.RecordDiff{
			id: {
				Structural: true,
				Record: &types.RecordSnapshot{
					ID:                  id,
					CreatedTime:         createdAt,
					CellValuesByFieldID: cells,
				},
			},
		}})
	}
	return id, nil
}

// DeleteRecord removes a record and its cells.
func (b *Backend) DeleteRecord(id types.RecordID) error {
	res, err := b.db.Exec("DELETE FROM records WHERE record_id = ?", string(id))
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	if n == 0 {
		return types.ErrNotFound
	}

	if b.anySubscription() {
		b.emit(types.TableDiff{RecordsByID: map[types.RecordID]types.RecordDiff{
			id: {Structural: true},
		}})
	}
	return nil
}

// SetCell writes one cell value.
func (b *Backend) SetCell(id types.RecordID, fieldID types.FieldID, value types.CellValue) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cell (%s, %s): %w", id, fieldID, err)
	}

	var exists int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM records WHERE record_id = ?", string(id)).Scan(&exists); err != nil {
		return fmt.Errorf("checking record %s: %w", id, err)
	}
	if exists == 0 {
		return types.ErrNotFound
	}

	if _, err := b.db.Exec(
		"INSERT INTO cells (record_id, field_id, value) VALUES (?, ?, ?) "+
			"ON CONFLICT(record_id, field_id) DO UPDATE SET value = excluded.value",
		string(id), string(fieldID), string(raw),
	); err != nil {
		return fmt.Errorf("writing cell (%s, %s): %w", id, fieldID, err)
	}

	if b.fieldSubscribed(fieldID) {
		b.emit(types.TableDiff{RecordsByID: map[types.RecordID]types.RecordDiff{
			id: {CellValuesByFieldID: map[types.FieldID]types.CellValue{fieldID: value}},
		}})
	}
	return nil
}
