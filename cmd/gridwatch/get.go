// Get command: load a record's cells and print them.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

var getCmd = &cobra.Command{
	Use:   "get <record-id> [field-id...]",
	Short: "Load a record and print its cells as JSON",
	Long: `Get loads the named fields (every schema field when none are given),
looks up the record, and prints its metadata and loaded cells as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	recordID := types.RecordID(args[0])
	fieldIDs := cliConfig.schema.FieldIDs
	if len(args) > 1 {
		fieldIDs = nil
		for _, arg := range args[1:] {
			fieldIDs = append(fieldIDs, types.FieldID(arg))
		}
	}

	ctx := cmd.Context()
	cache, closer, err := openCache(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := cache.LoadFields(ctx, fieldIDs...); err != nil {
		return fmt.Errorf("loading fields: %w", err)
	}
	defer cache.UnloadFields(fieldIDs...)

	row := cache.RowByID(recordID)
	if row == nil {
		return fmt.Errorf("record %s: %w", recordID, types.ErrNotFound)
	}

	out := types.RecordSnapshot{
		ID:                  row.ID(),
		CreatedTime:         row.CreatedTime(),
		CommentCount:        row.CommentCount(),
		CellValuesByFieldID: make(map[types.FieldID]types.CellValue, len(fieldIDs)),
	}
	for _, fieldID := range fieldIDs {
		if value := row.CellValue(fieldID); value != nil {
			out.CellValuesByFieldID[fieldID] = value
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
