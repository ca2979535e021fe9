package zkconn

import (
	"sync"
	"time"
)

// FakeConn is a scriptable Conn used by engine tests in place of a real
// ZooKeeper session.
type FakeConn struct {
	mu sync.Mutex

	fd       int
	mask     EventMask
	interest error // returned by Interest when non-nil

	watcher Watcher
	ctx     interface{}

	state   State
	closed  bool
	closeCt int

	queue []fakeEvent

	// Creates/Children record every async call issued against this
	// conn, for assertions.
	Creates  []FakeCreateCall
	Children []FakeChildrenCall
}

type fakeEvent struct {
	evType EventType
	state  State
	path   string
}

// FakeCreateCall records one ACreate invocation.
type FakeCreateCall struct {
	Path  string
	Data  []byte
	Flags int32
}

// FakeChildrenCall records one AGetChildren invocation.
type FakeChildrenCall struct {
	Path  string
	Watch bool
}

// NewFakeConn creates a fake connection bound to the given fd. Tests
// that never register it with a Poller pass the slot index or a small
// counter; tests that do pass a real pipe fd.
func NewFakeConn(fd int, watcher Watcher, ctx interface{}) *FakeConn {
	return &FakeConn{
		fd:      fd,
		mask:    EventRead,
		watcher: watcher,
		ctx:     ctx,
		state:   StateConnecting,
	}
}

// SetInterest overrides what the next Interest call reports.
func (f *FakeConn) SetInterest(mask EventMask, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mask = mask
	f.interest = err
}

// SetFD changes the fd Interest reports (simulating the underlying
// client reconnecting internally on a new socket).
func (f *FakeConn) SetFD(fd int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fd = fd
}

// SetState sets the state reported by State().
func (f *FakeConn) SetState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// Deliver queues an event to be dispatched to the watcher on the next
// Process call, simulating zookeeper_process() invoking the watcher.
func (f *FakeConn) Deliver(evType EventType, state State, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeEvent{evType, state, path})
}

// Interest implements Conn.
func (f *FakeConn) Interest() (int, EventMask, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.interest != nil {
		return -1, 0, time.Time{}, f.interest
	}
	return f.fd, f.mask, time.Now().Add(time.Second), nil
}

// Process implements Conn: dispatches every queued event in order.
func (f *FakeConn) Process(_ EventMask) error {
	f.mu.Lock()
	queue := f.queue
	f.queue = nil
	watcher := f.watcher
	f.mu.Unlock()

	for _, ev := range queue {
		watcher(f, ev.evType, ev.state, ev.path)
	}
	return nil
}

// Close implements Conn.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCt++
	return nil
}

// Closed reports whether Close has been called, and how many times.
func (f *FakeConn) Closed() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCt
}

// State implements Conn.
func (f *FakeConn) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Context implements Conn.
func (f *FakeConn) Context() interface{} { return f.ctx }

// ACreate implements Conn: records the call and invokes cb synchronously
// with a success result.
func (f *FakeConn) ACreate(path string, data []byte, flags int32, cb CreateCallback) error {
	f.mu.Lock()
	f.Creates = append(f.Creates, FakeCreateCall{Path: path, Data: append([]byte(nil), data...), Flags: flags})
	f.mu.Unlock()
	if cb != nil {
		cb(nil, path+"0000000001")
	}
	return nil
}

// AGetChildren implements Conn: records the call and invokes cb
// synchronously with an empty result.
func (f *FakeConn) AGetChildren(path string, watch bool, cb ChildrenCallback) error {
	f.mu.Lock()
	f.Children = append(f.Children, FakeChildrenCall{Path: path, Watch: watch})
	f.mu.Unlock()
	if cb != nil {
		cb(nil, nil)
	}
	return nil
}
