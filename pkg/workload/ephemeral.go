package workload

import (
	"context"

	"github.com/rgs1/zksoak/internal/engine"
	"github.com/rgs1/zksoak/internal/zkconn"
)

// payload is the placeholder node data the original C implementation
// hardcodes ("test", 4 bytes); kept identical so soak-test output is
// comparable across implementations.
var payload = []byte("test")

// Ephemeral creates one ephemeral, sequential node per session on
// connect, per spec.md §5's ephemeral-creator workload. Grounded on
// original_source/create-ephemerals.c's my_watcher/create_cb.
type Ephemeral struct {
	Path string
	Log  *engine.Logger
}

// NewContext implements engine.Workload.
func (e *Ephemeral) NewContext(slot int) engine.WorkloadContext {
	return &flagContext{}
}

// OnConnected implements engine.Workload: issues the create exactly
// once per session.
func (e *Ephemeral) OnConnected(ctx context.Context, rec *engine.Record) {
	fc, ok := rec.Workload.(*flagContext)
	if !ok || fc == nil {
		return
	}
	if fc.isSet() {
		return
	}

	conn := rec.Conn()
	if conn == nil {
		return
	}

	flags := zkconn.FlagEphemeral | zkconn.FlagSequence
	err := conn.ACreate(e.Path, payload, flags, func(err error, resultPath string) {
		if err != nil {
			if e.Log != nil {
				e.Log.WithSlot(rec.Slot).Warn("create failed", "error", err)
			}
			return
		}
		if e.Log != nil {
			e.Log.WithSlot(rec.Slot).Info("created", "path", resultPath)
		}
	})
	if err != nil {
		// Submission itself failed: leave the flag unset so the next
		// watcher invocation retries, per spec.md §7.
		if e.Log != nil {
			e.Log.WithSlot(rec.Slot).Warn("failed to issue create", "error", err)
		}
		return
	}
	fc.testAndSet()
}

// OnWatchEvent implements engine.Workload: the ephemeral-creator
// workload never registers data/children watches, so non-session
// events never arrive for it; this is a no-op.
func (e *Ephemeral) OnWatchEvent(ctx context.Context, rec *engine.Record, evType zkconn.EventType, path string) {
}
