package engine

import (
	"context"
	"time"
)

// Refresher periodically re-reads each session's Interest() and
// updates the poller registration, per spec.md §4.3. This is the
// engine's only mechanism for noticing an underlying client library
// rotated its fd without a session-level event (e.g. a library-internal
// ping socket reconnect) — the original C implementation polls zhandle_t
// state directly on the same tick via check_interests/do_check_interests.
type Refresher struct {
	table  *Table
	poller *Poller
	period time.Duration
	log    *Logger
}

// NewRefresher builds a Refresher ticking at period.
func NewRefresher(table *Table, poller *Poller, period time.Duration, log *Logger) *Refresher {
	return &Refresher{table: table, poller: poller, period: period, log: log}
}

// Run ticks until ctx is canceled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Refresher) tick() {
	for _, rec := range r.table.Records {
		conn := rec.Conn()
		if conn == nil {
			continue
		}

		newFD, mask, _, err := conn.Interest()
		if err != nil {
			r.log.WithSlot(rec.Slot).Warn("interest refresh failed", "error", err)
			continue
		}

		oldFD := rec.FD()
		if newFD != oldFD {
			if oldFD >= 0 {
				_ = r.poller.Remove(oldFD)
			}
			if err := r.poller.Add(newFD, rec.Slot, mask); err != nil {
				r.log.WithSlot(rec.Slot).Warn("re-register fd failed", "error", err)
				continue
			}
			rec.SetConn(conn, newFD)
			continue
		}

		if err := r.poller.Modify(oldFD, mask); err != nil {
			r.log.WithSlot(rec.Slot).Warn("interest mask update failed", "error", err)
		}
	}
}
