// Package zkconn models the external ZooKeeper client state machine that
// the engine drives: a readiness-FD based connection that the engine
// asks for interest, feeds events into, and which calls back into a
// watcher trampoline on session and node events.
//
// This interface is deliberately shaped like the C zookeeper client's
// zookeeper_init/zookeeper_interest/zookeeper_process contract rather
// than a typical Go client's internal-goroutine design, because the
// engine built on top of it (internal/engine) owns the one process-wide
// readiness poller and must multiplex thousands of sessions onto it.
package zkconn

import (
	"errors"
	"time"
)

// EventMask is a bitset over the interest/readiness events a connection
// can report or be fed.
type EventMask int

const (
	EventRead EventMask = 1 << iota
	EventWrite
)

// EventType identifies what kind of event was delivered to a watcher.
type EventType int

const (
	// EventSession indicates a session-level (connection) state change.
	EventSession EventType = iota
	// EventCreated, EventDeleted, EventDataChanged, EventChildrenChanged
	// mirror the ZooKeeper watch event types.
	EventCreated
	EventDeleted
	EventDataChanged
	EventChildrenChanged
	// EventNotWatching indicates a watch could not be (re)established.
	EventNotWatching
)

// State is the connection's session state.
type State int

const (
	StateConnecting State = iota
	StateAssociating
	StateConnected
	StateConnectedReadOnly
	StateExpired
	StateAuthFailed
	StateClosed
)

// Result codes, modeled after ZooKeeper's result code constants.
var (
	// ErrConnectionLoss indicates a transient loss of connection to the
	// ensemble; callers should retry.
	ErrConnectionLoss = errors.New("zkconn: connection loss")
	// ErrInvalidState indicates the handle is no longer usable in its
	// current state (e.g. already closed).
	ErrInvalidState = errors.New("zkconn: invalid state")
	// ErrNoFD indicates Interest has no file descriptor to report yet.
	ErrNoFD = errors.New("zkconn: no file descriptor")
)

// Watcher is the callback a Conn invokes when it has an event to
// deliver: a session-state change or a node/children watch firing.
// It is always invoked from within a call to Process, i.e. under
// whatever lock the caller holds around that call.
type Watcher func(conn Conn, evType EventType, state State, path string)

// CreateCallback is invoked asynchronously when an ACreate completes.
type CreateCallback func(err error, resultPath string)

// ChildrenCallback is invoked asynchronously when an AGetChildren
// completes.
type ChildrenCallback func(err error, children []string)

// Conn is one ZooKeeper client session: the external, provided state
// machine of spec §6. Every method may be called concurrently with
// itself only as documented by the embedding engine (in practice the
// engine serializes all calls for a given Conn behind a single mutex).
type Conn interface {
	// Interest reports the current (fd, interest mask, suggested
	// recheck deadline). ErrNoFD or an error means the connection
	// is not presently pollable; the caller should inspect the error
	// to decide whether to deregister the fd.
	Interest() (fd int, mask EventMask, deadline time.Time, err error)

	// Process drives one protocol step for the given readiness events,
	// possibly invoking the installed Watcher synchronously.
	Process(events EventMask) error

	// Close tears down the session. Idempotent.
	Close() error

	// State reports the current session state.
	State() State

	// Context returns the opaque context passed at Init.
	Context() interface{}

	// ACreate asynchronously creates a node.
	ACreate(path string, data []byte, flags int32, cb CreateCallback) error

	// AGetChildren asynchronously lists a node's children, optionally
	// re-arming a children watch.
	AGetChildren(path string, watch bool, cb ChildrenCallback) error
}

// Flags for ACreate, mirroring ZooKeeper's create flags.
const (
	FlagEphemeral int32 = 1
	FlagSequence  int32 = 2
)

// Factory constructs a new Conn bound to a server, session timeout,
// watcher and opaque context. Implementations may retry internally but
// must not block indefinitely; establishment-level retry policy is the
// engine's responsibility (internal/engine/session.go).
type Factory func(server string, sessionTimeout time.Duration, watcher Watcher, context interface{}, readOnly bool) (Conn, error)
