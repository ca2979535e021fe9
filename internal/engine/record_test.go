package engine

import (
	"testing"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// TestRecordTryEnqueueDedup covers invariant 2 of spec.md §8: the
// queued flag is true iff exactly one pending entry exists, and a
// second readiness notification while already queued folds into the
// same entry's mask (the "coalescing under load" scenario) instead of
// creating a second entry.
func TestRecordTryEnqueueDedup(t *testing.T) {
	rec := &Record{Slot: 1}

	if !rec.TryEnqueue(zkconn.EventRead) {
		t.Fatal("first TryEnqueue should succeed")
	}
	if rec.TryEnqueue(zkconn.EventWrite) {
		t.Fatal("second TryEnqueue while queued should return false")
	}

	rec.Lock()
	mask := rec.Dequeue()
	rec.Unlock()
	if mask != zkconn.EventRead|zkconn.EventWrite {
		t.Fatalf("expected union of masks, got %v", mask)
	}

	// After Dequeue, queued is false again and a fresh enqueue starts a
	// new entry with only the new mask.
	if !rec.TryEnqueue(zkconn.EventWrite) {
		t.Fatal("TryEnqueue after Dequeue should succeed")
	}
	rec.Lock()
	mask = rec.Dequeue()
	rec.Unlock()
	if mask != zkconn.EventWrite {
		t.Fatalf("expected fresh mask after dequeue, got %v", mask)
	}
}

func TestNewTableAllocatesDistinctRecords(t *testing.T) {
	table := NewTable(8)
	if len(table.Records) != 8 {
		t.Fatalf("expected 8 records, got %d", len(table.Records))
	}
	for i, rec := range table.Records {
		if rec.Slot != i {
			t.Errorf("record %d has slot %d", i, rec.Slot)
		}
		if rec.Conn() != nil {
			t.Errorf("record %d should start with no connection", i)
		}
	}
}

func TestRecordSetConnAndFD(t *testing.T) {
	rec := &Record{Slot: 0}
	fake := zkconn.NewFakeConn(7, nil, nil)
	rec.SetConn(fake, 7)

	if rec.Conn() != zkconn.Conn(fake) {
		t.Fatal("Conn() should return the set connection")
	}
	if rec.FD() != 7 {
		t.Fatalf("expected FD 7, got %d", rec.FD())
	}
}
