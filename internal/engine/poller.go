package engine

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// Poller wraps a single epoll instance multiplexing every session fd in
// a table, per spec.md §4.4. One poller serves the whole engine
// process; sessions are registered and deregistered as their
// underlying fd changes across reconnects.
type Poller struct {
	epfd int

	mu       sync.Mutex
	fdToSlot map[int]int

	maxEvents int
	waitMS    int

	log *Logger
}

// NewPoller creates the epoll instance backing the engine's readiness
// loop. Grounded on original_source/clients.c's poll_clients, which
// creates one epoll fd for the whole process and epoll_wait()s on it
// in a tight loop.
func NewPoller(maxEvents, waitMS int, log *Logger) (*Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, systemCallError("epoll_create1: %w", err)
	}
	return &Poller{
		epfd:      epfd,
		fdToSlot:  make(map[int]int),
		maxEvents: maxEvents,
		waitMS:    waitMS,
		log:       log,
	}, nil
}

func maskToEpoll(m zkconn.EventMask) uint32 {
	var e uint32
	if m&zkconn.EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if m&zkconn.EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToMask(e uint32) zkconn.EventMask {
	var m zkconn.EventMask
	if e&unix.EPOLLIN != 0 {
		m |= zkconn.EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		m |= zkconn.EventWrite
	}
	return m
}

// Add registers fd for slot with the given interest mask.
func (p *Poller) Add(fd, slot int, mask zkconn.EventMask) error {
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return systemCallError("epoll_ctl(ADD, fd=%d): %w", fd, err)
	}
	p.mu.Lock()
	p.fdToSlot[fd] = slot
	p.mu.Unlock()
	return nil
}

// Modify updates the interest mask for a registered fd, per spec.md
// §4.3's periodic interest refresh.
func (p *Poller) Modify(fd int, mask zkconn.EventMask) error {
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return systemCallError("epoll_ctl(MOD, fd=%d): %w", fd, err)
	}
	return nil
}

// Remove deregisters fd, tolerating the pre-2.6.9 kernel quirk that
// epoll_ctl(DEL) still dereferences the event pointer (spec.md §9's
// open question on old-kernel workarounds): passing a zero-value
// event is a harmless no-op on modern kernels and avoids a nil-pointer
// path on old ones. An fd that is no longer registered (ENOENT) or
// already closed (EBADF) is not an error.
func (p *Poller) Remove(fd int) error {
	var zero unix.EpollEvent
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &zero)
	p.mu.Lock()
	delete(p.fdToSlot, fd)
	p.mu.Unlock()
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return systemCallError("epoll_ctl(DEL, fd=%d): %w", fd, err)
	}
	return nil
}

// Ready is one readiness notification: the slot whose fd became ready
// and the mask of events observed.
type Ready struct {
	Slot int
	Mask zkconn.EventMask
}

// Wait blocks for up to the poller's configured wait time and returns
// the slots that became ready, per spec.md §4.4(b).
func (p *Poller) Wait() ([]Ready, error) {
	events := make([]unix.EpollEvent, p.maxEvents)
	n, err := unix.EpollWait(p.epfd, events, p.waitMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, systemCallError("epoll_wait: %w", err)
	}

	out := make([]Ready, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		slot, ok := p.fdToSlot[fd]
		if !ok {
			continue
		}
		out = append(out, Ready{Slot: slot, Mask: epollToMask(events[i].Events)})
	}
	p.mu.Unlock()
	return out, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("close epoll fd: %w", err)
	}
	return nil
}

// deadlineFromNow returns the point in time d from now, for computing
// poll deadlines.
func deadlineFromNow(d time.Duration) time.Time {
	return time.Now().Add(d)
}
