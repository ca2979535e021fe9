package engine

import (
	"context"
	"os"
	"time"

	"github.com/rgs1/zksoak/internal/codec"
)

// Snapshot is a point-in-time summary of one engine process's state,
// periodically emitted to stdout for offline soak-test analysis
// (SPEC_FULL §3.2). This is per-process only; cross-process aggregation
// is explicitly out of scope (spec.md's Non-goals).
type Snapshot struct {
	Timestamp           time.Time `json:"timestamp" msgpack:"timestamp"`
	PID                 int       `json:"pid" msgpack:"pid"`
	SessionsEstablished uint64    `json:"sessions_established" msgpack:"sessions_established"`
	SessionsExpired     uint64    `json:"sessions_expired" msgpack:"sessions_expired"`
	SessionsActive      int32     `json:"sessions_active" msgpack:"sessions_active"`
	ProtocolSteps       uint64    `json:"protocol_steps" msgpack:"protocol_steps"`
	ProtocolErrors      uint64    `json:"protocol_errors" msgpack:"protocol_errors"`
	QueueDepth          int32     `json:"queue_depth" msgpack:"queue_depth"`
}

// Counters is the plain-struct source a StatsReporter snapshots from;
// engine.go fills each field with a func that reads the matching
// Prometheus collector's current value.
type Counters struct {
	SessionsEstablished func() uint64
	SessionsExpired     func() uint64
	SessionsActive      func() int32
	ProtocolSteps       func() uint64
	ProtocolErrors      func() uint64
	QueueDepth          func() int32
}

// StatsReporter periodically encodes a Snapshot using a configurable
// codec and writes it to stdout, one snapshot per line.
type StatsReporter struct {
	counters Counters
	codec    codec.Codec
	period   time.Duration
	log      *Logger
}

// NewStatsReporter builds a reporter using the given codec type
// ("json" or "msgpack").
func NewStatsReporter(counters Counters, codecType codec.Type, period time.Duration, log *Logger) (*StatsReporter, error) {
	c, err := codec.New(codecType)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		period = 30 * time.Second
	}
	return &StatsReporter{counters: counters, codec: c, period: period, log: log}, nil
}

// Run emits a snapshot every period until ctx is canceled.
func (s *StatsReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	pid := os.Getpid()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := Snapshot{
				Timestamp:           time.Now(),
				PID:                 pid,
				SessionsEstablished: s.counters.SessionsEstablished(),
				SessionsExpired:     s.counters.SessionsExpired(),
				SessionsActive:      s.counters.SessionsActive(),
				ProtocolSteps:       s.counters.ProtocolSteps(),
				ProtocolErrors:      s.counters.ProtocolErrors(),
				QueueDepth:          s.counters.QueueDepth(),
			}
			data, err := s.codec.Marshal(snap)
			if err != nil {
				s.log.Warn("stats snapshot marshal failed", "error", err)
				continue
			}
			if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
				s.log.Warn("stats snapshot write failed", "error", err)
				continue
			}
			s.log.Info("stats snapshot", "codec", s.codec.Name(), "bytes", len(data))
		}
	}
}
