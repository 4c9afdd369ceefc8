package store

import (
	"fmt"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// viewIndex is the per-view read surface. Ordering is owned by the view
// presentation layer; this index only scopes reads to a schema-known view
// and is memoized per view id for the store's lifetime.
type viewIndex struct {
	store  *TableStore
	viewID types.ViewID
}

var _ types.ViewIndex = (*viewIndex)(nil)

// ViewIndex returns the memoized index for the given view, constructing it
// lazily. A view id the schema does not define is a consumer contract
// breach.
func (s *TableStore) ViewIndex(viewID types.ViewID) types.ViewIndex {
	if !s.schema.HasView(viewID) {
		panic(fmt.Sprintf("gridcache: view %s does not exist in table %s", viewID, s.schema.TableID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.viewsByID[viewID]; ok {
		return v
	}
	v := &viewIndex{store: s, viewID: viewID}
	s.viewsByID[viewID] = v
	return v
}

func (v *viewIndex) ViewID() types.ViewID {
	return v.viewID
}

func (v *viewIndex) RecordIDs() []types.RecordID {
	return v.store.RecordIDs()
}

func (v *viewIndex) Rows() []types.Row {
	return v.store.Rows()
}
