package engine

import (
	"context"
	"testing"

	"github.com/rgs1/zksoak/internal/zkconn"
)

type stubContext struct {
	resetCount int
}

func (s *stubContext) Reset() { s.resetCount++ }

type stubWorkload struct {
	connected   []int
	watchEvents []zkconn.EventType
}

func (w *stubWorkload) NewContext(slot int) WorkloadContext { return &stubContext{} }
func (w *stubWorkload) OnConnected(ctx context.Context, rec *Record) {
	w.connected = append(w.connected, rec.Slot)
}
func (w *stubWorkload) OnWatchEvent(ctx context.Context, rec *Record, evType zkconn.EventType, path string) {
	w.watchEvents = append(w.watchEvents, evType)
}

// TestTrampolineDispatchConnected covers the session-event half of
// spec.md §4.7's translation table: a connected session event invokes
// the workload's OnConnected exactly once.
func TestTrampolineDispatchConnected(t *testing.T) {
	table := NewTable(1)
	wl := &stubWorkload{}
	trmp := NewTrampoline(table, wl, NewLogger(LoggingConfig{Level: "error", Format: "text"}), nil)

	trmp.Dispatch(0, zkconn.EventSession, zkconn.StateConnected, "")

	if len(wl.connected) != 1 || wl.connected[0] != 0 {
		t.Fatalf("expected OnConnected(slot=0) once, got %v", wl.connected)
	}
}

// TestTrampolineDispatchExpiredCallsOnExpired covers scenario 3 of
// spec.md §8 ("session expiry mid-run"): an expired session event
// invokes onExpired exactly once and never reaches the workload.
func TestTrampolineDispatchExpiredCallsOnExpired(t *testing.T) {
	table := NewTable(1)
	wl := &stubWorkload{}
	var expiredSlots []int
	trmp := NewTrampoline(table, wl, NewLogger(LoggingConfig{Level: "error", Format: "text"}), func(slot int) {
		expiredSlots = append(expiredSlots, slot)
	})

	trmp.Dispatch(0, zkconn.EventSession, zkconn.StateExpired, "")

	if len(expiredSlots) != 1 || expiredSlots[0] != 0 {
		t.Fatalf("expected onExpired(0) once, got %v", expiredSlots)
	}
	if len(wl.connected) != 0 {
		t.Fatal("expired event should not call OnConnected")
	}
}

// TestTrampolineDispatchWatchEvent covers the non-session half of the
// translation table: any other event type forwards to OnWatchEvent.
func TestTrampolineDispatchWatchEvent(t *testing.T) {
	table := NewTable(1)
	wl := &stubWorkload{}
	trmp := NewTrampoline(table, wl, NewLogger(LoggingConfig{Level: "error", Format: "text"}), nil)

	trmp.Dispatch(0, zkconn.EventChildrenChanged, zkconn.StateConnected, "/x")

	if len(wl.watchEvents) != 1 || wl.watchEvents[0] != zkconn.EventChildrenChanged {
		t.Fatalf("expected one children-changed event, got %v", wl.watchEvents)
	}
}
