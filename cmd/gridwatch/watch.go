// Watch command: subscribe to table watch keys and stream notifications.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch [key...]",
	Short: "Watch table keys and print each notification as JSON",
	Long: `Watch subscribes to the given watch keys and prints one JSON line per
notification until interrupted. Supported keys:

  records                  record additions and removals
  recordIds                the record id set (same payload as records)
  cellValues               cell changes in any field
  cellValuesInField:<id>   cell changes in one field

With no keys, records and cellValues are watched.`,
	RunE: runWatch,
}

// watchEvent is the JSON line printed per notification.
type watchEvent struct {
	Key       string           `json:"key"`
	Added     []types.RecordID `json:"added,omitempty"`
	Removed   []types.RecordID `json:"removed,omitempty"`
	RecordIDs []types.RecordID `json:"recordIds,omitempty"`
	FieldIDs  []types.FieldID  `json:"fieldIds,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{types.AllRecords{}.Key(), types.AllCellValues{}.Key()}
	}
	keys := make([]types.WatchKey, 0, len(args))
	for _, arg := range args {
		key, err := parseWatchKey(arg)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	ctx := cmd.Context()
	cache, closer, err := openCache(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	enc := json.NewEncoder(os.Stdout)
	w := cache.Watch(keys, func(change types.Change) {
		event := watchEvent{
			Key:       change.Key.Key(),
			Added:     change.AddedRecordIDs,
			Removed:   change.RemovedRecordIDs,
			RecordIDs: change.RecordIDs,
			FieldIDs:  change.FieldIDs,
		}
		if err := enc.Encode(event); err != nil {
			logger.Warn("writing event", "err", err)
		}
	})
	defer cache.Unwatch(w)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	return nil
}

// parseWatchKey maps a command-line key name onto its typed watch key.
func parseWatchKey(arg string) (types.WatchKey, error) {
	switch {
	case arg == types.AllRecords{}.Key():
		return types.AllRecords{}, nil
	case arg == types.AllRecordIDs{}.Key():
		return types.AllRecordIDs{}, nil
	case arg == types.AllCellValues{}.Key():
		return types.AllCellValues{}, nil
	case strings.HasPrefix(arg, "cellValuesInField:"):
		fieldID := types.FieldID(strings.TrimPrefix(arg, "cellValuesInField:"))
		if fieldID == "" {
			return nil, fmt.Errorf("key %q: missing field id", arg)
		}
		if !cliConfig.schema.HasField(fieldID) {
			return nil, fmt.Errorf("key %q: field not in configured schema", arg)
		}
		return types.CellValuesInField{FieldID: fieldID}, nil
	default:
		return nil, fmt.Errorf("unknown watch key %q", arg)
	}
}
