package engine

import (
	"context"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// Workload is the pluggable session behavior spec.md §5 describes as
// two concrete implementations (ephemeral-sequential creator,
// children-watch re-armer) sharing one engine, injected at
// construction so engine.go stays agnostic of which workload is
// running.
type Workload interface {
	// NewContext allocates a fresh WorkloadContext for a slot. Called
	// once per slot when the engine is built (engine.New); never called
	// again for the life of the engine, including across reconnects
	// (Reset is used instead, per spec.md §4.7 invariant 4).
	NewContext(slot int) WorkloadContext

	// OnConnected runs once a session transitions into the connected
	// state, starting the workload's first asynchronous call
	// (spec.md §4.2/§4.3's "issue the first op on connect").
	OnConnected(ctx context.Context, rec *Record)

	// OnWatchEvent runs for every non-session watch event delivered to
	// this slot (node created/deleted/data-changed/children-changed),
	// re-arming or reacting per the workload's own policy.
	OnWatchEvent(ctx context.Context, rec *Record, evType zkconn.EventType, path string)
}

// Trampoline builds the zkconn.Watcher callback for one slot. It is
// the single point where asynchronous ZooKeeper events cross back into
// engine control flow, translating session-state transitions into
// reconnect signals and forwarding everything else to the workload,
// per spec.md §4.7.
type Trampoline struct {
	table    *Table
	workload Workload
	log      *Logger

	onExpired func(slot int)
}

// NewTrampoline builds a Trampoline. onExpired is called whenever a
// session transitions to StateExpired, so engine.go can drive
// reconnection (spec.md §4.6); like every Dispatch call it runs inside
// Conn.Process, under the slot's record lock (see Watcher).
func NewTrampoline(table *Table, workload Workload, log *Logger, onExpired func(slot int)) *Trampoline {
	return &Trampoline{table: table, workload: workload, log: log, onExpired: onExpired}
}

// Watcher returns the zkconn.Watcher bound to a specific slot. The
// callback runs synchronously inside Conn.Process(), which engine.go
// only ever calls while holding that slot's record lock — so
// everything inside Dispatch, including the workload callback, is
// already serialized per spec.md §3's invariant without any extra
// locking here.
func (t *Trampoline) Watcher(slot int) zkconn.Watcher {
	return func(conn zkconn.Conn, evType zkconn.EventType, state zkconn.State, path string) {
		t.Dispatch(slot, evType, state, path)
	}
}

// Dispatch implements the translation table in spec.md §4.7.
func (t *Trampoline) Dispatch(slot int, evType zkconn.EventType, state zkconn.State, path string) {
	rec := t.table.Records[slot]
	ctx := context.Background()

	if evType == zkconn.EventSession {
		switch state {
		case zkconn.StateConnected, zkconn.StateConnectedReadOnly:
			rec.setState(SessionRegistered)
			if t.workload != nil {
				t.workload.OnConnected(ctx, rec)
			}
		case zkconn.StateExpired:
			t.log.WithSlot(slot).Warn("session expired")
			if t.onExpired != nil {
				t.onExpired(slot)
			}
		}
		return
	}

	if t.workload != nil {
		t.workload.OnWatchEvent(ctx, rec, evType, path)
	}
}
