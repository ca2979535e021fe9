package engine

import (
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/rgs1/zksoak/internal/zkconn"
)

func newTestPoller(t *testing.T) *Poller {
	t.Helper()
	log := NewLogger(LoggingConfig{Level: "error", Format: "text"})
	p, err := NewPoller(16, 50, log)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPollerWaitReportsReadyFD(t *testing.T) {
	p := newTestPoller(t)

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer syscall.Close(fds[0])
	defer syscall.Close(fds[1])

	if err := p.Add(fds[0], 3, zkconn.EventRead); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := syscall.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ready, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 1 || ready[0].Slot != 3 {
		t.Fatalf("expected one ready entry for slot 3, got %+v", ready)
	}
	if ready[0].Mask&zkconn.EventRead == 0 {
		t.Fatalf("expected EventRead in mask, got %v", ready[0].Mask)
	}
}

// TestPollerRemoveToleratesMissingFD covers the pre-2.6.9 workaround
// discussion in spec.md §9: deleting an already-gone fd must not be
// fatal.
func TestPollerRemoveToleratesMissingFD(t *testing.T) {
	p := newTestPoller(t)

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer syscall.Close(fds[1])

	if err := p.Add(fds[0], 0, zkconn.EventRead); err != nil {
		t.Fatalf("Add: %v", err)
	}
	syscall.Close(fds[0]) // closing an fd auto-removes it from epoll

	if err := p.Remove(fds[0]); err != nil {
		t.Fatalf("Remove on an already-closed fd should not be fatal: %v", err)
	}
}

func TestMaskTranslationRoundTrips(t *testing.T) {
	cases := []zkconn.EventMask{zkconn.EventRead, zkconn.EventWrite, zkconn.EventRead | zkconn.EventWrite}
	for _, m := range cases {
		e := maskToEpoll(m)
		got := epollToMask(e)
		if got != m {
			t.Errorf("maskToEpoll/epollToMask round trip: want %v, got %v", m, got)
		}
	}
	if maskToEpoll(zkconn.EventRead)&unix.EPOLLIN == 0 {
		t.Error("EventRead should map to EPOLLIN")
	}
}
