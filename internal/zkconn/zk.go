//go:build linux

package zkconn

import (
	"sync"
	"syscall"
	"time"

	"github.com/go-zookeeper/zk"
)

// realConn adapts github.com/go-zookeeper/zk's channel-based client to
// the readiness-FD Conn contract above. The upstream client manages its
// own socket I/O in a background goroutine and only ever hands the
// caller a <-chan zk.Event; there is no raw FD to register with epoll.
//
// To let the engine's single epoll poller still multiplex this session
// the way it would a raw socket, realConn keeps a self-pipe: a
// background goroutine forwards every upstream event into a small
// mailbox and writes one byte to the pipe's write end. Interest reports
// the pipe's read end as the pollable fd; Process drains the mailbox
// and dispatches to the installed Watcher, exactly as if a native
// zookeeper_process() call had just run.
type realConn struct {
	conn    *zk.Conn
	watcher Watcher
	ctx     interface{}

	pipeR *fd
	pipeW *fd

	mu      sync.Mutex
	pending []zk.Event
	closed  bool
}

// fd wraps a raw file descriptor obtained from syscall.Pipe, kept
// detached from *os.File so the read end's fd survives being
// registered directly with unix.EpollCtl without a finalizer closing it
// out from under the poller.
type fd struct {
	n int
}

func (f *fd) Fd() int { return f.n }

// Init establishes a new ZooKeeper session and returns the adapter.
// It mirrors the original zookeeper_init/zookeeper_interest pairing:
// the caller is expected to call Interest immediately afterward to
// learn the pollable fd, exactly as spec §4.6 describes.
func Init(server string, sessionTimeout time.Duration, watcher Watcher, context interface{}, readOnly bool) (Conn, error) {
	opts := []zk.Option{}
	conn, events, err := zk.Connect([]string{server}, sessionTimeout, opts...)
	if err != nil {
		return nil, err
	}

	r, w, err := pipe()
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &realConn{
		conn:    conn,
		watcher: watcher,
		ctx:     context,
		pipeR:   r,
		pipeW:   w,
	}

	go c.pump(events)

	return c, nil
}

// pipe creates a non-blocking OS pipe and returns its two raw fds.
func pipe() (*fd, *fd, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, nil, err
	}
	for _, n := range fds {
		if err := syscall.SetNonblock(n, true); err != nil {
			syscall.Close(fds[0])
			syscall.Close(fds[1])
			return nil, nil, err
		}
	}
	return &fd{n: fds[0]}, &fd{n: fds[1]}, nil
}

func (c *realConn) pump(events <-chan zk.Event) {
	for ev := range events {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.pending = append(c.pending, ev)
		c.mu.Unlock()

		// Wake the poller; ignore EAGAIN if the pipe is momentarily full,
		// the byte already queued is enough to trigger a wakeup.
		syscall.Write(c.pipeW.n, []byte{1})
	}
}

func (c *realConn) Interest() (int, EventMask, time.Time, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return -1, 0, time.Time{}, ErrInvalidState
	}
	return c.pipeR.n, EventRead, time.Now().Add(10 * time.Millisecond), nil
}

func (c *realConn) Process(_ EventMask) error {
	// Drain whatever woke us; the pipe only ever carries wakeup bytes,
	// the real payload lives in c.pending.
	var buf [64]byte
	for {
		n, err := syscall.Read(c.pipeR.n, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range pending {
		evType := translateType(ev.Type)
		state := translateState(ev.State)
		c.watcher(c, evType, state, ev.Path)
	}
	return nil
}

func (c *realConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.Close()
	syscall.Close(c.pipeR.n)
	syscall.Close(c.pipeW.n)
	return nil
}

func (c *realConn) State() State {
	return translateState(c.conn.State())
}

func (c *realConn) Context() interface{} { return c.ctx }

func (c *realConn) ACreate(path string, data []byte, flags int32, cb CreateCallback) error {
	go func() {
		p, err := c.conn.Create(path, data, flags, zk.WorldACL(zk.PermAll))
		cb(err, p)
	}()
	return nil
}

func (c *realConn) AGetChildren(path string, watch bool, cb ChildrenCallback) error {
	go func() {
		if !watch {
			children, _, err := c.conn.Children(path)
			cb(err, children)
			return
		}

		children, _, evCh, err := c.conn.ChildrenW(path)
		cb(err, children)
		if err != nil {
			return
		}

		// Forward the eventual watch firing as a regular event so it
		// flows through Process like any other notification.
		go func() {
			ev, ok := <-evCh
			if !ok {
				return
			}
			c.mu.Lock()
			if !c.closed {
				c.pending = append(c.pending, ev)
			}
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				syscall.Write(c.pipeW.n, []byte{1})
			}
		}()
	}()
	return nil
}

func translateType(t zk.EventType) EventType {
	switch t {
	case zk.EventNodeCreated:
		return EventCreated
	case zk.EventNodeDeleted:
		return EventDeleted
	case zk.EventNodeDataChanged:
		return EventDataChanged
	case zk.EventNodeChildrenChanged:
		return EventChildrenChanged
	case zk.EventNotWatching:
		return EventNotWatching
	default:
		return EventSession
	}
}

func translateState(s zk.State) State {
	switch s {
	case zk.StateConnecting:
		return StateConnecting
	case zk.StateAssociating:
		return StateAssociating
	case zk.StateConnected:
		return StateConnected
	case zk.StateHasSession:
		return StateConnected
	case zk.StateExpired:
		return StateExpired
	case zk.StateAuthFailed:
		return StateAuthFailed
	default:
		return StateClosed
	}
}
