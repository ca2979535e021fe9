package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/rgs1/zksoak/internal/codec"
	"github.com/rgs1/zksoak/internal/zkconn"
)

// Engine is a single engine process: one poller, one interest
// refresher, a pool of protocol workers, and the connection table they
// all share, per spec.md §4.1. cmd/zksoak/main.go constructs one in
// each child process that the supervisor re-execs (--child-index set);
// the supervisor process itself runs no Engine.
type Engine struct {
	cfg     *Config
	table   *Table
	poller  *Poller
	queue   *workQueue
	pool    *WorkerPool
	trmp    *Trampoline
	creator *Creator
	refresh *Refresher
	metrics *Metrics
	reg     *prometheus.Registry
	log     *Logger

	factory zkconn.Factory
}

// New builds an Engine from cfg, wiring the connection table, poller,
// worker pool, trampoline and creator per spec.md §4.1's bootstrap
// sequence: (a) allocate the table, (b) create the poller, (c) create
// the worker pool, (d) build the creator that Run uses to populate
// every slot. New itself establishes no sessions.
func New(cfg *Config, workload Workload, factory zkconn.Factory, log *Logger) (*Engine, error) {
	table := NewTable(cfg.Server.NumClients)

	poller, err := NewPoller(cfg.Server.MaxEvents, cfg.Server.WaitTimeMS, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	e := &Engine{
		cfg:     cfg,
		table:   table,
		poller:  poller,
		metrics: metrics,
		reg:     reg,
		log:     log,
		factory: factory,
	}

	e.trmp = NewTrampoline(table, workload, log, e.onExpired)

	queue := newWorkQueue(cfg.Server.NumClients)
	e.queue = queue
	e.pool = NewWorkerPool(cfg.Server.NumWorkers, table, queue, log, e.onReady)

	e.creator = NewCreator(table, factory, cfg, e.trmp, poller, log)
	e.refresh = NewRefresher(table, poller, 10*time.Millisecond, log)

	for i, rec := range table.Records {
		if workload != nil {
			rec.Workload = workload.NewContext(i)
		}
	}

	return e, nil
}

// Run starts the worker pool, runs the creator to establish every
// session, then drives the poller loop until ctx is canceled
// (spec.md §4.1(e), §4.4).
func (e *Engine) Run(ctx context.Context) error {
	e.pool.Start(e.cfg.Server.NumWorkers)
	defer e.pool.Stop(ctx)

	if e.cfg.Metrics.Enabled {
		go func() {
			if err := Serve(e.cfg.Metrics.Endpoint, e.cfg.Metrics.Path, e.reg); err != nil {
				e.log.Warn("metrics server exited", "error", err)
			}
		}()
	}

	go e.refresh.Run(ctx)

	if err := e.creator.Run(ctx); err != nil {
		return zookeeperCallError("creator: %w", err)
	}
	e.metrics.SessionsEstablished.Add(float64(len(e.table.Records)))
	e.metrics.SessionsActive.Set(float64(len(e.table.Records)))

	return e.pollLoop(ctx)
}

// pollLoop is the engine's steady-state readiness loop, per spec.md
// §4.4: wait for readiness, try to enqueue each ready slot (the
// queued-flag check under the record lock handles coalescing), never blocking the poller
// thread itself.
func (e *Engine) pollLoop(ctx context.Context) error {
	var errs error

	for {
		select {
		case <-ctx.Done():
			return errs
		default:
		}

		ready, err := e.poller.Wait()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		for _, r := range ready {
			rec := e.table.Records[r.Slot]
			if rec.TryEnqueue(r.Mask) {
				if !e.queue.tryPush(workItem{slot: r.Slot}) {
					// The bound only holds if the queued-flag
					// invariant does; surface this loudly rather
					// than silently dropping readiness.
					e.log.WithSlot(r.Slot).Error("work queue full despite queued-flag bound")
					rec.Lock()
					rec.Dequeue()
					rec.Unlock()
				} else {
					e.metrics.QueueDepth.Inc()
				}
			}
		}
	}
}

// onReady runs one protocol step for a slot, invoked by a worker
// goroutine holding the slot's record lock (spec.md §4.5(c)).
func (e *Engine) onReady(slot int, mask zkconn.EventMask) {
	rec := e.table.Records[slot]
	conn := rec.Conn()
	if conn == nil {
		return
	}

	e.metrics.ProtocolSteps.Inc()
	e.metrics.QueueDepth.Dec()

	if err := conn.Process(mask); err != nil {
		e.metrics.ProtocolErrors.Inc()
		e.log.WithSlot(slot).Warn("protocol step failed", "error", err)
	}
}

// onExpired is called from the trampoline (synchronously, inside
// Conn.Process, under the record lock) when a session transitions to
// StateExpired. It hands off reconnection to a fresh goroutine so the
// slow establish_session retry loop never blocks the calling worker,
// per spec.md §4.6.
func (e *Engine) onExpired(slot int) {
	e.metrics.SessionsExpired.Inc()
	e.metrics.SessionsActive.Dec()

	rec := e.table.Records[slot]
	if rec.Workload != nil {
		rec.Workload.Reset()
	}

	go func() {
		ctx := context.Background()
		sessionTimeout := time.Duration(e.cfg.Session.TimeoutMS) * time.Millisecond
		watcher := e.trmp.Watcher(slot)

		oldFD := rec.FD()
		if oldFD >= 0 {
			_ = e.poller.Remove(oldFD)
		}
		if oldConn := rec.Conn(); oldConn != nil {
			_ = oldConn.Close()
		}

		if err := establishSession(ctx, rec, e.factory, e.cfg.Server.Address, sessionTimeout, watcher, e.cfg.Restart, e.log); err != nil {
			e.log.WithSlot(slot).Error("reconnect failed permanently", "error", err)
			return
		}

		fd := rec.FD()
		if err := e.poller.Add(fd, slot, zkconn.EventRead); err != nil {
			e.log.WithSlot(slot).Error("re-register after reconnect failed", "error", err)
			return
		}

		e.metrics.SessionsEstablished.Inc()
		e.metrics.SessionsActive.Inc()
	}()
}

// Close releases the poller's OS resources.
func (e *Engine) Close() error {
	return e.poller.Close()
}

// statsCounters adapts Engine's Prometheus collectors to the plain
// func-based Counters StatsReporter expects; Prometheus gauges/counters
// don't expose a cheap typed read in all versions, so every field is
// read through gaugeValue's proto Write path.
func (e *Engine) statsCounters() Counters {
	return Counters{
		SessionsEstablished: func() uint64 { return gaugeValue(e.metrics.SessionsEstablished) },
		SessionsExpired:     func() uint64 { return gaugeValue(e.metrics.SessionsExpired) },
		SessionsActive:      func() int32 { return int32(gaugeValue(e.metrics.SessionsActive)) },
		ProtocolSteps:       func() uint64 { return gaugeValue(e.metrics.ProtocolSteps) },
		ProtocolErrors:      func() uint64 { return gaugeValue(e.metrics.ProtocolErrors) },
		QueueDepth:          func() int32 { return int32(gaugeValue(e.metrics.QueueDepth)) },
	}
}

// StartStatsReporter wires a StatsReporter to this engine's counters
// using the configured codec (SPEC_FULL §3.2).
func (e *Engine) StartStatsReporter(ctx context.Context, codecType codec.Type, period time.Duration) error {
	r, err := NewStatsReporter(e.statsCounters(), codecType, period, e.log)
	if err != nil {
		return err
	}
	go r.Run(ctx)
	return nil
}
