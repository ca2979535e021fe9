package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rgs1/zksoak/internal/zkconn"
)

// establishSession implements spec.md §4.6: (re)create the ZooKeeper
// client for a slot, hand the trampoline watcher to the new connection,
// and store the connection and its fd in the record. Registering that
// fd with the poller is left to the caller. The original C
// implementation (original_source/clients.c's create_client) retries
// a failed zookeeper_init immediately in a loop; SPEC_FULL §4 adds a
// bounded exponential backoff with jitter on connection-loss so a
// flapping ensemble doesn't spin P*N goroutines in a hot retry loop.
func establishSession(ctx context.Context, rec *Record, factory zkconn.Factory, server string, timeout time.Duration, watcher zkconn.Watcher, restart RestartConfig, log *Logger) error {
	backoff := restart.InitialBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	maxBackoff := restart.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}
	mult := restart.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	rec.Lock()
	wlCtx := rec.Workload
	rec.Unlock()

	for {
		rec.setState(SessionEstablishing)

		conn, err := factory(server, timeout, watcher, wlCtx, false)
		if err == nil {
			fd, _, _, ferr := conn.Interest()
			if ferr != nil {
				_ = conn.Close()
				err = ferr
			} else {
				rec.SetConn(conn, fd)
				return nil
			}
		}

		if !errors.Is(err, zkconn.ErrConnectionLoss) {
			return zookeeperCallError("establish_session: %w", err)
		}

		log.WithSlot(rec.Slot).Warn("establish_session failed, retrying",
			"error", err, "backoff", backoff)

		jittered := jitter(backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		backoff = time.Duration(float64(backoff) * mult)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// jitter applies a uniformly random +/-25% jitter to d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	delta := float64(d) * 0.25
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}
