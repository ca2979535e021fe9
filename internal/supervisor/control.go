package supervisor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rgs1/zksoak/internal/codec"
	"github.com/rgs1/zksoak/internal/engine"
	"github.com/rgs1/zksoak/internal/framing"
)

// Heartbeat is the msgpack-framed diagnostic payload a child engine
// process sends its supervisor periodically, per SPEC_FULL §3.1. This
// is diagnostic only: nothing flows back from the supervisor that
// changes engine behavior, keeping cross-process aggregation out of
// scope per spec.md's Non-goals.
type Heartbeat struct {
	Child            int   `msgpack:"child"`
	SlotsEstablished int32 `msgpack:"slots_established"`
	SlotsHealthy     int32 `msgpack:"slots_healthy"`
	QueueDepth       int32 `msgpack:"queue_depth"`
}

// ControlServer runs in the supervisor process: one HMAC+peer-cred
// authenticated Unix domain socket listener per child, accepting
// connections on it and decoding Heartbeat frames from each one.
// Composes HMACListener and SecureListener rather than using either
// independently, since the control channel wants both HMAC and
// peer-UID verification.
type ControlServer struct {
	secret []byte
	secCfg SocketSecurityConfig
	log    *engine.Logger
}

// NewControlServer builds a ControlServer with a freshly generated HMAC
// secret shared with every child via its environment at re-exec time.
func NewControlServer(secCfg SocketSecurityConfig, log *engine.Logger) (*ControlServer, []byte, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, nil, fmt.Errorf("generate control-channel secret: %w", err)
	}
	return &ControlServer{secret: secret, secCfg: secCfg, log: log}, secret, nil
}

// Serve listens on socketPath and decodes heartbeats until ctx is
// canceled, invoking onHeartbeat for each one.
func (s *ControlServer) Serve(ctx context.Context, socketPath string, onHeartbeat func(Heartbeat)) error {
	raw, err := NewSecureListener(socketPath, s.secCfg)
	if err != nil {
		return fmt.Errorf("listen on control socket %s: %w", socketPath, err)
	}
	listener := NewHMACListener(raw, s.secret)

	go func() {
		<-ctx.Done()
		_ = raw.Close()
	}()

	c, err := codec.New(codec.TypeMsgPack)
	if err != nil {
		return err
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept control connection: %w", err)
			}
		}
		go s.handle(ctx, conn, c, onHeartbeat)
	}
}

func (s *ControlServer) handle(ctx context.Context, conn net.Conn, c codec.Codec, onHeartbeat func(Heartbeat)) {
	defer conn.Close()
	framer := framing.NewFramer(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := framer.ReadMessage()
		if err != nil {
			s.log.Warn("control channel read failed", "error", err)
			return
		}

		var hb Heartbeat
		if err := c.Unmarshal(data, &hb); err != nil {
			s.log.Warn("control channel decode failed", "error", err)
			continue
		}
		onHeartbeat(hb)
	}
}

// ControlClient runs inside a child engine process: dials the
// supervisor's control socket, authenticates, and periodically sends
// the Heartbeat returned by the caller's snapshot function.
type ControlClient struct {
	secret []byte
	log    *engine.Logger
}

// NewControlClient builds a ControlClient for the given shared secret
// (passed down from the supervisor via environment at re-exec).
func NewControlClient(secret []byte, log *engine.Logger) *ControlClient {
	return &ControlClient{secret: secret, log: log}
}

// Run dials socketPath, authenticates via HMAC challenge/response, then
// sends a heartbeat every period until ctx is canceled.
func (c *ControlClient) Run(ctx context.Context, socketPath string, period time.Duration, snapshot func() Heartbeat) error {
	conn, err := DialSecure("unix", socketPath, c.secret)
	if err != nil {
		return fmt.Errorf("dial control socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	codecImpl, err := codec.New(codec.TypeMsgPack)
	if err != nil {
		return err
	}
	framer := framing.NewFramer(conn)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			data, err := codecImpl.Marshal(snapshot())
			if err != nil {
				c.log.Warn("heartbeat marshal failed", "error", err)
				continue
			}
			if err := framer.WriteMessage(data); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}
		}
	}
}
