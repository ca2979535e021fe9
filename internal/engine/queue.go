package engine

// workItem is one unit of protocol-step work: a slot whose record is
// ready to be dequeued, processed under its record lock, per spec.md
// §4.5.
type workItem struct {
	slot int
}

// workQueue is the bounded FIFO of spec.md §4.5: capacity equal to the
// number of session slots (so the queued flag's invariant — at most
// one outstanding entry per slot — guarantees the channel never
// blocks on enqueue), non-blocking enqueue, blocking dequeue.
//
// The spec leaves the container's implementation up to the
// implementer; a buffered channel enforces the same bound and gives a
// blocking receive for free, so nothing here uses a hand-rolled ring
// buffer (see DESIGN.md).
type workQueue struct {
	ch chan workItem
}

func newWorkQueue(capacity int) *workQueue {
	return &workQueue{ch: make(chan workItem, capacity)}
}

// tryPush enqueues without blocking. It must never block given the
// queued-flag invariant in record.go; if it would, that invariant has
// been violated elsewhere and the item is dropped rather than stalling
// the poller thread.
func (q *workQueue) tryPush(item workItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// pop blocks until an item is available or the queue is closed.
func (q *workQueue) pop() (workItem, bool) {
	item, ok := <-q.ch
	return item, ok
}

func (q *workQueue) close() {
	close(q.ch)
}
