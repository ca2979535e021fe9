package workload

import (
	"context"
	"testing"

	"github.com/rgs1/zksoak/internal/engine"
	"github.com/rgs1/zksoak/internal/zkconn"
)

// TestEphemeralCreatesExactlyOncePerSession covers scenario 6 of
// spec.md §8: two sessions, each gets exactly one ACreate against the
// configured path with the fixed 4-byte payload and ephemeral|sequence
// flags.
func TestEphemeralCreatesExactlyOncePerSession(t *testing.T) {
	e := &Ephemeral{Path: "/z"}
	table := engine.NewTable(2)

	var conns []*zkconn.FakeConn
	for i, rec := range table.Records {
		rec.Workload = e.NewContext(i)
		fc := zkconn.NewFakeConn(i, nil, nil)
		rec.SetConn(fc, i)
		conns = append(conns, fc)
	}

	for _, rec := range table.Records {
		e.OnConnected(context.Background(), rec)
	}

	for i, fc := range conns {
		if len(fc.Creates) != 1 {
			t.Fatalf("slot %d: expected exactly one ACreate call, got %d", i, len(fc.Creates))
		}
		call := fc.Creates[0]
		if call.Path != "/z" {
			t.Errorf("slot %d: expected path /z, got %q", i, call.Path)
		}
		if string(call.Data) != "test" {
			t.Errorf("slot %d: expected 4-byte \"test\" payload, got %q", i, call.Data)
		}
		wantFlags := zkconn.FlagEphemeral | zkconn.FlagSequence
		if call.Flags != wantFlags {
			t.Errorf("slot %d: expected flags %d, got %d", i, wantFlags, call.Flags)
		}
	}
}

// TestEphemeralCreateIsIdempotentPerSession covers the "ephemeral-create
// is idempotent per session" property: repeated OnConnected deliveries
// for the same still-valid session (e.g. spurious re-dispatch) must not
// issue a second create.
func TestEphemeralCreateIsIdempotentPerSession(t *testing.T) {
	e := &Ephemeral{Path: "/z"}
	table := engine.NewTable(1)
	rec := table.Records[0]
	rec.Workload = e.NewContext(0)
	fc := zkconn.NewFakeConn(0, nil, nil)
	rec.SetConn(fc, 0)

	for i := 0; i < 3; i++ {
		e.OnConnected(context.Background(), rec)
	}

	if len(fc.Creates) != 1 {
		t.Fatalf("expected exactly one create across repeated OnConnected calls, got %d", len(fc.Creates))
	}

	// a fresh session (post-expiry Reset) must be able to create again.
	rec.Workload.Reset()
	e.OnConnected(context.Background(), rec)
	if len(fc.Creates) != 2 {
		t.Fatalf("expected a second create after Reset, got %d", len(fc.Creates))
	}
}
