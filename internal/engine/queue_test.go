package engine

import "testing"

// TestWorkQueueNeverBlocksAtCapacity covers invariant 5 of spec.md §8:
// enqueue never blocks, and the queue holds at most its configured
// capacity.
func TestWorkQueueNeverBlocksAtCapacity(t *testing.T) {
	q := newWorkQueue(2)

	if !q.tryPush(workItem{slot: 0}) {
		t.Fatal("first push should succeed")
	}
	if !q.tryPush(workItem{slot: 1}) {
		t.Fatal("second push should succeed")
	}
	if q.tryPush(workItem{slot: 2}) {
		t.Fatal("third push should fail: queue is at capacity")
	}

	item, ok := q.pop()
	if !ok || item.slot != 0 {
		t.Fatalf("expected slot 0 in FIFO order, got %+v ok=%v", item, ok)
	}

	if !q.tryPush(workItem{slot: 2}) {
		t.Fatal("push after pop should succeed again")
	}
}

func TestWorkQueuePopAfterClose(t *testing.T) {
	q := newWorkQueue(1)
	q.close()

	if _, ok := q.pop(); ok {
		t.Fatal("pop on a closed empty queue should report !ok")
	}
}
