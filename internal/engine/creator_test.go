package engine

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// pipeFD creates a pipe and returns its read-end fd, closing both ends
// via t.Cleanup. Using a real fd lets the poller genuinely register
// interest in tests, instead of a fd epoll would reject.
func pipeFD(t *testing.T) int {
	t.Helper()
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	})
	return fds[0]
}

// TestCreatorHappyRamp covers scenario 1 of spec.md §8: every slot ends
// up with a client handle and a poller-registered FD after Run returns.
func TestCreatorHappyRamp(t *testing.T) {
	table := NewTable(4)
	log := NewLogger(LoggingConfig{Level: "error", Format: "text"})

	poller, err := NewPoller(16, 50, log)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer poller.Close()

	wl := &stubWorkload{}
	trmp := NewTrampoline(table, wl, log, nil)

	for i, rec := range table.Records {
		rec.Workload = wl.NewContext(i)
	}

	factory := func(server string, timeout time.Duration, watcher zkconn.Watcher, ctx interface{}, readOnly bool) (zkconn.Conn, error) {
		return zkconn.NewFakeConn(pipeFD(t), watcher, ctx), nil
	}

	cfg := &Config{
		Server:  ServerConfig{Address: "localhost:2181", NumClients: 4, NumWorkers: 2},
		Session: SessionConfig{TimeoutMS: 10000},
	}

	creator := NewCreator(table, factory, cfg, trmp, poller, log)
	if err := creator.Run(context.Background()); err != nil {
		t.Fatalf("creator.Run: %v", err)
	}

	for i, rec := range table.Records {
		if rec.Conn() == nil {
			t.Errorf("slot %d: expected a client handle after ramp", i)
		}
		if rec.FD() < 0 {
			t.Errorf("slot %d: expected a registered FD after ramp", i)
		}
	}
}
