package workload

import (
	"context"
	"testing"

	"github.com/rgs1/zksoak/internal/engine"
	"github.com/rgs1/zksoak/internal/zkconn"
)

// TestChildrenArmsOnceOnRepeatedConnect covers the connect-gating half
// of the "re-arming the children watch is idempotent" property: K
// session-connected events against one still-valid session must not
// submit more than one AGetChildren.
func TestChildrenArmsOnceOnRepeatedConnect(t *testing.T) {
	c := &Children{Path: "/c"}
	table := engine.NewTable(1)
	rec := table.Records[0]
	rec.Workload = c.NewContext(0)
	fc := zkconn.NewFakeConn(0, nil, nil)
	rec.SetConn(fc, 0)

	for i := 0; i < 4; i++ {
		c.OnConnected(context.Background(), rec)
	}

	if len(fc.Children) != 1 {
		t.Fatalf("expected exactly one AGetChildren across repeated connect events, got %d", len(fc.Children))
	}
	if !fc.Children[0].Watch {
		t.Error("expected the initial get-children call to request a watch")
	}
}

// TestChildrenReArmsOnEveryWatchEvent covers the re-arm half of the
// property: unlike OnConnected, every watch delivery must resubmit the
// watch unconditionally, since the underlying watch is one-shot.
func TestChildrenReArmsOnEveryWatchEvent(t *testing.T) {
	c := &Children{Path: "/c"}
	table := engine.NewTable(1)
	rec := table.Records[0]
	rec.Workload = c.NewContext(0)
	fc := zkconn.NewFakeConn(0, nil, nil)
	rec.SetConn(fc, 0)

	c.OnConnected(context.Background(), rec)
	for i := 0; i < 3; i++ {
		c.OnWatchEvent(context.Background(), rec, zkconn.EventChildrenChanged, "/c")
	}

	if len(fc.Children) != 4 {
		t.Fatalf("expected one arm from connect plus three from watch deliveries, got %d", len(fc.Children))
	}
	for i, call := range fc.Children {
		if call.Path != "/c" || !call.Watch {
			t.Errorf("call %d: expected watched /c, got %+v", i, call)
		}
	}
}
