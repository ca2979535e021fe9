package engine

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// Creator ramps up the connection table's N sessions at process start,
// per spec.md §4.2. Grounded on original_source/clients.c's
// create_clients loop (which sleeps every sleep_after_clients
// sessions), generalized to spawn establishSession calls concurrently
// via sourcegraph/conc's pool instead of the original's strictly
// serial loop, bounded so the ensemble never sees more than NumWorkers
// connection attempts in flight at once.
type Creator struct {
	table   *Table
	factory zkconn.Factory
	cfg     *Config
	trmp    *Trampoline
	poller  *Poller
	log     *Logger
}

// NewCreator builds a Creator.
func NewCreator(table *Table, factory zkconn.Factory, cfg *Config, trmp *Trampoline, poller *Poller, log *Logger) *Creator {
	return &Creator{table: table, factory: factory, cfg: cfg, trmp: trmp, poller: poller, log: log}
}

// Run establishes every session in the table, honoring the pacing
// config's sleep_after_clients/sleep_in_between_secs (spec.md §4.2;
// the --sleep-after-clients/--sleep-in-between flags), then registers
// each resulting fd with the poller.
func (c *Creator) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(c.cfg.Server.NumWorkers)

	sessionTimeout := time.Duration(c.cfg.Session.TimeoutMS) * time.Millisecond

	for i, rec := range c.table.Records {
		rec := rec
		slot := i

		if c.cfg.Pacing.SleepAfterClients > 0 && slot > 0 && slot%c.cfg.Pacing.SleepAfterClients == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(c.cfg.Pacing.SleepInBetweenSecs) * time.Second):
			}
		}

		p.Go(func(ctx context.Context) error {
			watcher := c.trmp.Watcher(slot)
			if err := establishSession(ctx, rec, c.factory, c.cfg.Server.Address, sessionTimeout, watcher, c.cfg.Restart, c.log); err != nil {
				return err
			}
			fd := rec.FD()
			return c.poller.Add(fd, slot, zkconn.EventRead)
		})
	}

	return p.Wait()
}
