package store

import "github.com/mesh-intelligence/gridcache/pkg/types"

// Per-field residency is an explicit state machine: unwatched (no count, no
// timer), retained (count > 0), pending-release (count == 0, debounce timer
// armed). retainLocked and releaseLocked drive the first two transitions;
// unload.go owns the timer.

// retainLocked increments each field's retain count by one, initializing at
// one, and disarms a pending-release timer for fields that become retained
// again. Caller holds s.mu.
func (s *TableStore) retainLocked(fieldIDs []types.FieldID) {
	for _, fieldID := range fieldIDs {
		s.retainCounts[fieldID]++
		if timer, ok := s.pendingUnloads[fieldID]; ok {
			timer.Stop()
			delete(s.pendingUnloads, fieldID)
		}
	}
}

// releaseLocked decrements each field's retain count by one and returns the
// fields whose count reached exactly zero. A release below zero is clamped
// and logged; an already-zero field is never reported as newly zero, so a
// double release cannot double-schedule an unload. Caller holds s.mu.
func (s *TableStore) releaseLocked(fieldIDs []types.FieldID) []types.FieldID {
	var zeroed []types.FieldID
	for _, fieldID := range fieldIDs {
		count, ok := s.retainCounts[fieldID]
		if !ok || count == 0 {
			s.logger.Warn("release without matching retain", "field", fieldID)
			continue
		}
		count--
		if count == 0 {
			delete(s.retainCounts, fieldID)
			zeroed = append(zeroed, fieldID)
		} else {
			s.retainCounts[fieldID] = count
		}
	}
	return zeroed
}
