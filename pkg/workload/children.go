package workload

import (
	"context"

	"github.com/rgs1/zksoak/internal/engine"
	"github.com/rgs1/zksoak/internal/zkconn"
)

// Children registers a children-watch on a configured path and
// re-registers it after every delivery, per spec.md §5's
// children-watcher workload. Grounded on
// original_source/zk-watchers.c's my_watcher/strings_completion.
type Children struct {
	Path string
	Log  *engine.Logger
}

// NewContext implements engine.Workload.
func (c *Children) NewContext(slot int) engine.WorkloadContext {
	return &flagContext{}
}

// OnConnected implements engine.Workload: issues the first
// get-children-with-watch exactly once per session.
func (c *Children) OnConnected(ctx context.Context, rec *engine.Record) {
	fc, ok := rec.Workload.(*flagContext)
	if !ok || fc == nil {
		return
	}
	if fc.isSet() {
		return
	}
	if c.arm(rec) {
		fc.testAndSet()
	}
}

// OnWatchEvent implements engine.Workload: every delivery re-arms the
// watch, mirroring the original's "watch fires once, re-register
// unconditionally" contract — unlike OnConnected, this never consults
// the flag, since the underlying watch is always one-shot.
func (c *Children) OnWatchEvent(ctx context.Context, rec *engine.Record, evType zkconn.EventType, path string) {
	c.arm(rec)
}

// arm issues the get-children-with-watch call and reports whether
// submission succeeded. A failed submission must not be mistaken for
// "watch armed" by callers, per spec.md §7.
func (c *Children) arm(rec *engine.Record) bool {
	conn := rec.Conn()
	if conn == nil {
		return false
	}

	err := conn.AGetChildren(c.Path, true, func(err error, children []string) {
		if err != nil {
			if c.Log != nil {
				c.Log.WithSlot(rec.Slot).Warn("get-children failed", "error", err)
			}
			return
		}
		if c.Log != nil {
			c.Log.WithSlot(rec.Slot).Info("got children", "count", len(children))
		}
	})
	if err != nil {
		if c.Log != nil {
			c.Log.WithSlot(rec.Slot).Warn("failed to issue get-children", "error", err)
		}
		return false
	}
	return true
}
