package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// TestEstablishSessionRetriesOnConnectionLoss covers scenario 2 of
// spec.md §8: the first interest query fails (connection-loss), the
// second succeeds; establishSession retries without a fatal error and
// the closed first handle is recorded.
func TestEstablishSessionRetriesOnConnectionLoss(t *testing.T) {
	rec := &Record{Slot: 0}
	log := NewLogger(LoggingConfig{Level: "error", Format: "text"})

	var attempts int
	var firstConn *zkconn.FakeConn

	factory := func(server string, timeout time.Duration, watcher zkconn.Watcher, ctx interface{}, readOnly bool) (zkconn.Conn, error) {
		attempts++
		fc := zkconn.NewFakeConn(attempts, watcher, ctx)
		if attempts == 1 {
			fc.SetInterest(0, zkconn.ErrConnectionLoss)
			firstConn = fc
		}
		return fc, nil
	}

	restart := RestartConfig{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}

	err := establishSession(context.Background(), rec, factory, "localhost:2181", 10*time.Second, nil, restart, log)
	if err != nil {
		t.Fatalf("establishSession: %v", err)
	}

	if attempts != 2 {
		t.Fatalf("expected exactly 2 init attempts, got %d", attempts)
	}
	if closed, ct := firstConn.Closed(); !closed || ct != 1 {
		t.Fatalf("expected the first (failed) handle closed exactly once, got closed=%v count=%d", closed, ct)
	}
	if rec.Conn() == nil {
		t.Fatal("expected a connection installed on the record after retry succeeds")
	}
}

// TestEstablishSessionHonorsContextCancellation ensures the retry loop
// doesn't spin forever once the caller gives up, for the one error
// establishSession retries on: connection-loss.
func TestEstablishSessionHonorsContextCancellation(t *testing.T) {
	rec := &Record{Slot: 0}
	log := NewLogger(LoggingConfig{Level: "error", Format: "text"})

	factory := func(server string, timeout time.Duration, watcher zkconn.Watcher, ctx interface{}, readOnly bool) (zkconn.Conn, error) {
		fc := zkconn.NewFakeConn(0, watcher, ctx)
		fc.SetInterest(0, zkconn.ErrConnectionLoss)
		return fc, nil
	}

	restart := RestartConfig{InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := establishSession(ctx, rec, factory, "localhost:2181", 10*time.Second, nil, restart, log)
	if err == nil {
		t.Fatal("expected establishSession to return an error once the context is canceled")
	}
}

// TestEstablishSessionFailsFatallyOnNonConnectionLossError covers
// spec.md §4.6/§7: any establish-session error other than
// connection-loss is fatal immediately, with the ZooKeeper-call exit
// code — it must not retry.
func TestEstablishSessionFailsFatallyOnNonConnectionLossError(t *testing.T) {
	rec := &Record{Slot: 0}
	log := NewLogger(LoggingConfig{Level: "error", Format: "text"})

	var attempts int
	factory := func(server string, timeout time.Duration, watcher zkconn.Watcher, ctx interface{}, readOnly bool) (zkconn.Conn, error) {
		attempts++
		return nil, errors.New("ensemble unreachable")
	}

	restart := RestartConfig{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}

	err := establishSession(context.Background(), rec, factory, "localhost:2181", 10*time.Second, nil, restart, log)
	if err == nil {
		t.Fatal("expected a fatal error for a non-connection-loss failure")
	}

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
	if fatal.Code != ExitZooKeeperCall {
		t.Errorf("expected ExitZooKeeperCall (%d), got %d", ExitZooKeeperCall, fatal.Code)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt before failing fatally, got %d", attempts)
	}
}
