// JSONL seeding for the reference backend: one record per line, tolerant of
// malformed lines and unknown fields so dumps from newer generations still
// load.
package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// seedRecord is the JSONL line format.
type seedRecord struct {
	ID           types.RecordID                    `json:"id"`
	CreatedTime  time.Time                         `json:"createdTime"`
	CommentCount int                               `json:"commentCount"`
	CellValues   map[types.FieldID]types.CellValue `json:"cellValuesByFieldId"`
}

// SeedJSONL loads records from a JSONL file into the database. Malformed
// lines are skipped with a warning. Seeding is transactional: all lines
// load or none do. Existing rows with the same id are replaced.
func (b *Backend) SeedJSONL(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec seedRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == "" {
			b.logger.Warn("skipping malformed seed line", "path", path, "line", line)
			continue
		}
		createdAt := rec.CreatedTime
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO records (record_id, created_at, comment_count) VALUES (?, ?, ?)",
			string(rec.ID), createdAt.Format(time.RFC3339Nano), rec.CommentCount,
		); err != nil {
			return fmt.Errorf("seeding record %s: %w", rec.ID, err)
		}
		for fieldID, value := range rec.CellValues {
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encoding cell (%s, %s): %w", rec.ID, fieldID, err)
			}
			if _, err := tx.Exec(
				"INSERT OR REPLACE INTO cells (record_id, field_id, value) VALUES (?, ?, ?)",
				string(rec.ID), string(fieldID), string(encoded),
			); err != nil {
				return fmt.Errorf("seeding cell (%s, %s): %w", rec.ID, fieldID, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}
