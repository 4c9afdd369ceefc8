// Package wsbackend implements a websocket data backend client for
// gridcache. It speaks a small JSON envelope protocol: fetch and unsubscribe
// requests flow to the server, snapshot responses are matched back to their
// request by id, and diff pushes arrive out of band.
package wsbackend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// diffBuffer bounds the push channel. A consumer that stops draining loses
// diffs rather than wedging the read loop; drops are logged.
const diffBuffer = 64

// Envelope types on the wire.
const (
	msgFetchFields       = "fetchFields"
	msgFetchTable        = "fetchTable"
	msgUnsubscribeFields = "unsubscribeFields"
	msgUnsubscribeTable  = "unsubscribeTable"
	msgSnapshot          = "snapshot"
	msgDiff              = "diff"
	msgError             = "error"
)

// envelope is the single wire frame. Requests carry a non-zero id when a
// response is expected; the server echoes the id on the matching snapshot or
// error frame. Diff frames carry no id.
type envelope struct {
	Type     string           `json:"type"`
	ID       uint64           `json:"id,omitempty"`
	TableID  types.TableID    `json:"tableId,omitempty"`
	FieldIDs []types.FieldID  `json:"fieldIds,omitempty"`
	Snapshot *types.Snapshot  `json:"snapshot,omitempty"`
	Diff     *types.TableDiff `json:"diff,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Backend is a websocket client serving the Backend contract for one
// connection. One read-loop goroutine owns all reads; writes are serialized
// by writeMu.
type Backend struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]chan envelope

	diffs chan types.TableDiff
	done  chan struct{}
}

var _ types.Backend = (*Backend)(nil)

// Dial connects to the given websocket URL and starts the read loop. The
// logger may be nil.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	b := &Backend{
		conn:    conn,
		logger:  logger.With("url", url),
		pending: make(map[uint64]chan envelope),
		diffs:   make(chan types.TableDiff, diffBuffer),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

// Close tears down the connection. Pending requests fail with
// ErrBackendClosed and the diff channel is closed once the read loop exits.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.conn.Close()
}

// Diffs returns the push channel. It is closed when the connection drops.
func (b *Backend) Diffs() <-chan types.TableDiff {
	return b.diffs
}

// FetchAndSubscribeFields requests a snapshot restricted to the given fields
// (metadata only when the field set is empty) and subscribes to them.
func (b *Backend) FetchAndSubscribeFields(ctx context.Context, tableID types.TableID, fieldIDs []types.FieldID) (*types.Snapshot, error) {
	return b.request(ctx, envelope{Type: msgFetchFields, TableID: tableID, FieldIDs: fieldIDs})
}

// FetchAndSubscribeTable requests a whole-table snapshot and subscribes to
// every field.
func (b *Backend) FetchAndSubscribeTable(ctx context.Context, tableID types.TableID) (*types.Snapshot, error) {
	return b.request(ctx, envelope{Type: msgFetchTable, TableID: tableID})
}

// UnsubscribeFields stops diff pushes for the given fields. Unsubscribes are
// not acknowledged by the server.
func (b *Backend) UnsubscribeFields(tableID types.TableID, fieldIDs []types.FieldID) error {
	return b.send(envelope{Type: msgUnsubscribeFields, TableID: tableID, FieldIDs: fieldIDs})
}

// UnsubscribeTable stops whole-table diff pushes.
func (b *Backend) UnsubscribeTable(tableID types.TableID) error {
	return b.send(envelope{Type: msgUnsubscribeTable, TableID: tableID})
}

// request sends an envelope expecting a matched response and blocks until
// the response, the context, or connection teardown.
func (b *Backend) request(ctx context.Context, env envelope) (*types.Snapshot, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, types.ErrBackendClosed
	}
	b.nextID++
	env.ID = b.nextID
	ch := make(chan envelope, 1)
	b.pending[env.ID] = ch
	b.mu.Unlock()

	if err := b.send(env); err != nil {
		b.mu.Lock()
		delete(b.pending, env.ID)
		b.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Type == msgError {
			return nil, decodeError(resp.Error)
		}
		if resp.Snapshot == nil {
			return nil, fmt.Errorf("response %d: missing snapshot", env.ID)
		}
		return resp.Snapshot, nil
	case <-b.done:
		return nil, types.ErrBackendClosed
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, env.ID)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (b *Backend) send(env envelope) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("sending %s: %w", env.Type, err)
	}
	return nil
}

// readLoop owns all reads from the connection: responses are routed to their
// waiting request, diffs to the push channel. It exits on the first read
// error and releases everything still waiting.
func (b *Backend) readLoop() {
	defer func() {
		close(b.done)
		close(b.diffs)
	}()

	for {
		var env envelope
		if err := b.conn.ReadJSON(&env); err != nil {
			b.mu.Lock()
			quiet := b.closed
			b.pending = make(map[uint64]chan envelope)
			b.mu.Unlock()
			if !quiet {
				b.logger.Warn("connection lost", "err", err)
			}
			return
		}

		switch env.Type {
		case msgSnapshot, msgError:
			b.mu.Lock()
			ch, ok := b.pending[env.ID]
			delete(b.pending, env.ID)
			b.mu.Unlock()
			if !ok {
				b.logger.Warn("response for unknown request", "id", env.ID)
				continue
			}
			ch <- env
		case msgDiff:
			if env.Diff == nil {
				continue
			}
			select {
			case b.diffs <- *env.Diff:
			default:
				b.logger.Warn("diff dropped, consumer not draining")
			}
		default:
			b.logger.Warn("unknown frame", "type", env.Type)
		}
	}
}

// decodeError maps wire error strings back onto the sentinel errors shared
// with in-process backends, so callers can test with errors.Is either way.
func decodeError(msg string) error {
	switch msg {
	case types.ErrTableUnknown.Error():
		return types.ErrTableUnknown
	case types.ErrFieldUnknown.Error():
		return types.ErrFieldUnknown
	default:
		return fmt.Errorf("backend error: %s", msg)
	}
}
