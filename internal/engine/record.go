package engine

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// SessionState names the per-slot lifecycle spec.md §4.7 describes, kept
// for diagnostics and the invariant tests in spec.md §8; the engine's
// control flow does not branch on it directly.
type SessionState int32

const (
	SessionAbsent SessionState = iota
	SessionEstablishing
	SessionRegistered
	SessionQueued
	SessionProcessing
)

// Record is one connection-table slot: a permanent home for a single
// logical session across reconnects, per spec.md §3.
//
// Invariant: recordMu serializes every field below and every call into
// conn for this slot, including the queued/pendingMask transition
// (spec.md §3 invariant 2: false->true happens under recordMu in the
// poller, true->false happens under recordMu in the worker).
type Record struct {
	Slot int

	pendingMask zkconn.EventMask
	queued      bool
	state       atomic.Int32

	recordMu sync.Mutex
	conn     zkconn.Conn
	fd       int

	Server         string
	SessionTimeout int

	Workload WorkloadContext
}

// WorkloadContext is the opaque, workload-owned per-slot state plus its
// reset hook, per spec.md §3's "workload context" data model entry.
type WorkloadContext interface {
	// Reset clears workload-private flags in place; it must not
	// allocate a new object, so the identity the watcher trampoline
	// holds stays valid across reconnects (spec.md §4.7, invariant 4).
	Reset()
}

// Conn returns the current client handle, or nil if no session exists.
func (r *Record) Conn() zkconn.Conn {
	r.recordMu.Lock()
	defer r.recordMu.Unlock()
	return r.conn
}

// SetConn installs a new client handle and its registered fd.
func (r *Record) SetConn(c zkconn.Conn, fd int) {
	r.recordMu.Lock()
	r.conn = c
	r.fd = fd
	r.recordMu.Unlock()
}

// FD returns the last-known fd registered with the poller for this
// slot.
func (r *Record) FD() int {
	r.recordMu.Lock()
	defer r.recordMu.Unlock()
	return r.fd
}

// Lock/Unlock expose recordMu directly for components (session
// establishment, the worker pool) that must hold it across multiple
// field accesses and a protocol-step call.
func (r *Record) Lock()   { r.recordMu.Lock() }
func (r *Record) Unlock() { r.recordMu.Unlock() }

// State returns the diagnostic session state.
func (r *Record) State() SessionState {
	return SessionState(r.state.Load())
}

// setState sets the diagnostic session state.
func (r *Record) setState(s SessionState) {
	r.state.Store(int32(s))
}

// TryEnqueue implements invariant 2 of spec.md §3: the false->true
// transition and the mask update happen together under recordMu, so a
// concurrent Dequeue (which the worker calls while already holding
// recordMu) can never observe a half-applied merge or clobber a fresh
// mask. Returns false if already queued (the poller should then do
// nothing new, per spec.md §4.4's coalescing contract) — the mask is
// still folded in so the eventual worker sees every observed event.
func (r *Record) TryEnqueue(mask zkconn.EventMask) bool {
	r.recordMu.Lock()
	defer r.recordMu.Unlock()

	if r.queued {
		r.pendingMask |= mask
		return false
	}
	r.pendingMask = mask
	r.queued = true
	r.setState(SessionQueued)
	return true
}

// Dequeue clears the queued flag and returns the accumulated event
// mask for the worker to process, per spec.md §4.5. Callers must
// already hold recordMu (the worker pool locks the record for the
// whole dequeue-then-process critical section), satisfying invariant
// 2's "true->false happens under recordMu in the worker".
func (r *Record) Dequeue() zkconn.EventMask {
	mask := r.pendingMask
	r.queued = false
	r.setState(SessionProcessing)
	return mask
}

// Table is the fixed-size connection table of spec.md §3, allocated
// once at engine start.
type Table struct {
	Records []*Record
}

// NewTable allocates a connection table of size n with every record
// zeroed, per spec.md §4.1(a).
func NewTable(n int) *Table {
	t := &Table{Records: make([]*Record, n)}
	for i := range t.Records {
		t.Records[i] = &Record{Slot: i}
	}
	return t
}
