package engine

import (
	"context"

	"github.com/sourcegraph/conc"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// WorkerPool runs W protocol worker goroutines draining a shared
// workQueue, per spec.md §4.5, using sourcegraph/conc's panic-safe
// WaitGroup so a panic inside a single protocol step surfaces instead
// of silently killing the process.
type WorkerPool struct {
	table *Table
	queue *workQueue
	log   *Logger

	onReady func(slot int, mask zkconn.EventMask)

	wg   conc.WaitGroup
	stop chan struct{}
}

// NewWorkerPool builds a pool over table, draining queue. n is not
// used; the number of workers is the count passed to Start.
// onReady is invoked once per dequeued item, under the record's lock,
// to run the protocol step (spec.md §4.5(b)-(d)); engine.go supplies
// this so WorkerPool stays agnostic of the create/refresh/reconnect
// logic it triggers.
func NewWorkerPool(n int, table *Table, queue *workQueue, log *Logger, onReady func(slot int, mask zkconn.EventMask)) *WorkerPool {
	return &WorkerPool{
		table:   table,
		queue:   queue,
		log:     log,
		onReady: onReady,
		stop:    make(chan struct{}),
	}
}

// Start launches the pool's worker goroutines.
func (wp *WorkerPool) Start(n int) {
	for i := 0; i < n; i++ {
		idx := i
		wp.wg.Go(func() {
			wp.run(idx)
		})
	}
}

func (wp *WorkerPool) run(idx int) {
	log := wp.log.WithRole("worker").WithSlot(idx)
	for {
		item, ok := wp.queue.pop()
		if !ok {
			return
		}
		rec := wp.table.Records[item.slot]
		rec.Lock()
		mask := rec.Dequeue()
		wp.onReady(item.slot, mask)
		rec.Unlock()
		_ = log
	}
}

// Stop closes the queue and waits for every worker to drain and
// return. A panic inside onReady propagates out of Stop rather than
// taking down the process silently, matching conc's WaitGroup
// contract.
func (wp *WorkerPool) Stop(ctx context.Context) {
	wp.queue.close()
	wp.wg.Wait()
}
