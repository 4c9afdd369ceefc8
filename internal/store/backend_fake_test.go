package store

import (
	"context"
	"sync"
	"time"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

const (
	testTableID = types.TableID("tbl-main")
	fieldName   = types.FieldID("fld-name")
	fieldNotes  = types.FieldID("fld-notes")
	fieldScore  = types.FieldID("fld-score")
	viewMain    = types.ViewID("viw-main")
	recAlpha    = types.RecordID("rec-alpha")
	recBeta     = types.RecordID("rec-beta")
)

func testSchema() types.TableSchema {
	return types.TableSchema{
		TableID:        testTableID,
		Name:           "main",
		PrimaryFieldID: fieldName,
		FieldIDs:       []types.FieldID{fieldName, fieldNotes, fieldScore},
		ViewIDs:        []types.ViewID{viewMain},
	}
}

// fakeBackend serves snapshots from an in-memory record set and counts every
// subscribe/unsubscribe call. A gate channel, when set, blocks fetches until
// it is closed; a configured error fails fetches until cleared.
type fakeBackend struct {
	mu      sync.Mutex
	records map[types.RecordID]*types.RecordSnapshot

	fetchErr  error
	gate      chan struct{}
	unsubGate chan struct{}

	fieldFetches    map[types.FieldID]int
	metadataFetches int
	tableFetches    int

	fieldUnsubStarts map[types.FieldID]int
	fieldUnsubs      map[types.FieldID]int
	metadataUnsubs   int
	tableUnsubs      int

	diffs chan types.TableDiff
}

var _ types.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	createdAlpha := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	createdBeta := time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)
	return &fakeBackend{
		records: map[types.RecordID]*types.RecordSnapshot{
			recAlpha: {
				ID:           recAlpha,
				CreatedTime:  createdAlpha,
				CommentCount: 2,
				CellValuesByFieldID: map[types.FieldID]types.CellValue{
					fieldName:  "alpha",
					fieldNotes: "first",
					fieldScore: 10,
				},
			},
			recBeta: {
				ID:           recBeta,
				CreatedTime:  createdBeta,
				CommentCount: 0,
				CellValuesByFieldID: map[types.FieldID]types.CellValue{
					fieldName:  "beta",
					fieldScore: 20,
				},
			},
		},
		fieldFetches:     make(map[types.FieldID]int),
		fieldUnsubStarts: make(map[types.FieldID]int),
		fieldUnsubs:      make(map[types.FieldID]int),
		diffs:            make(chan types.TableDiff),
	}
}

// openGate makes fetches block until the returned function is called.
func (b *fakeBackend) openGate() func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.gate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// openUnsubGate makes field unsubscribes block until the returned function
// is called. Starts are still counted while blocked.
func (b *fakeBackend) openUnsubGate() func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.unsubGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.unsubGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	b.fetchErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) await(ctx context.Context) error {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshot copies the backing records restricted to the given fields; nil
// means metadata only, the all flag means every field.
func (b *fakeBackend) snapshot(fieldIDs []types.FieldID, all bool) *types.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := &types.Snapshot{RecordsByID: make(map[types.RecordID]*types.RecordSnapshot, len(b.records))}
	for id, rec := range b.records {
		out := &types.RecordSnapshot{
			ID:           id,
			CreatedTime:  rec.CreatedTime,
			CommentCount: rec.CommentCount,
		}
		if all {
			out.CellValuesByFieldID = make(map[types.FieldID]types.CellValue, len(rec.CellValuesByFieldID))
			for fieldID, value := range rec.CellValuesByFieldID {
				out.CellValuesByFieldID[fieldID] = value
			}
		} else if len(fieldIDs) > 0 {
			out.CellValuesByFieldID = make(map[types.FieldID]types.CellValue, len(fieldIDs))
			for _, fieldID := range fieldIDs {
				if value, ok := rec.CellValuesByFieldID[fieldID]; ok {
					out.CellValuesByFieldID[fieldID] = value
				}
			}
		}
		snap.RecordsByID[id] = out
	}
	return snap
}

func (b *fakeBackend) FetchAndSubscribeFields(ctx context.Context, tableID types.TableID, fieldIDs []types.FieldID) (*types.Snapshot, error) {
	if err := b.await(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if len(fieldIDs) == 0 {
		b.metadataFetches++
	}
	for _, fieldID := range fieldIDs {
		b.fieldFetches[fieldID]++
	}
	err := b.fetchErr
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return b.snapshot(fieldIDs, false), nil
}

func (b *fakeBackend) FetchAndSubscribeTable(ctx context.Context, tableID types.TableID) (*types.Snapshot, error) {
	if err := b.await(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.tableFetches++
	err := b.fetchErr
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return b.snapshot(nil, true), nil
}

func (b *fakeBackend) UnsubscribeFields(tableID types.TableID, fieldIDs []types.FieldID) error {
	b.mu.Lock()
	for _, fieldID := range fieldIDs {
		b.fieldUnsubStarts[fieldID]++
	}
	gate := b.unsubGate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(fieldIDs) == 0 {
		b.metadataUnsubs++
	}
	for _, fieldID := range fieldIDs {
		b.fieldUnsubs[fieldID]++
	}
	return nil
}

func (b *fakeBackend) UnsubscribeTable(tableID types.TableID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tableUnsubs++
	return nil
}

func (b *fakeBackend) Diffs() <-chan types.TableDiff {
	return b.diffs
}

func (b *fakeBackend) fetchCount(fieldID types.FieldID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fieldFetches[fieldID]
}

func (b *fakeBackend) unsubCount(fieldID types.FieldID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fieldUnsubs[fieldID]
}

func (b *fakeBackend) unsubStartCount(fieldID types.FieldID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fieldUnsubStarts[fieldID]
}

// newTestStore builds a store over a fresh fake backend with a short
// debounce window suitable for timer tests.
func newTestStore(t interface{ Cleanup(func()) }) (*TableStore, *fakeBackend) {
	backend := newFakeBackend()
	s, err := New(backend, testSchema(), types.Config{UnloadDebounce: 20 * time.Millisecond}, nil)
	if err != nil {
		panic(err)
	}
	t.Cleanup(s.Close)
	return s, backend
}
