package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"mprpc/wire"
)

// readBufSize is the chunk size used to grow the per-connection read
// buffer while assembling one frame.
const readBufSize = 4096

// completion is the §9 "completion callback as closure" redesign
// target: a single-shot closure whose ownership passes to whichever
// code eventually has a result (or failure) to report. once
// guards against the dispatch callback firing twice (§4.2: "Dispatch
// callback called twice -> second call MUST be a no-op").
type completion struct {
	once   sync.Once
	conn   net.Conn
	logger *zap.Logger
}

// Complete writes respBytes (the bare, unframed response payload —
// §6.1) and closes the connection. If err is non-nil no response is
// written; the connection is closed without one, per §4.2/§7's
// "unknown service/method/malformed frame -> log, close" policy, which
// this implementation also applies to service invocation failures
// since no error-reply frame exists (§9 audited gap).
func (c *completion) Complete(respBytes []byte, err error, correlationID string) {
	c.once.Do(func() {
		defer c.conn.Close()
		if err != nil {
			c.logger.Warn("provider: dispatch failed, closing without response",
				zap.String("correlation_id", correlationID), zap.Error(err))
			return
		}
		if _, werr := c.conn.Write(respBytes); werr != nil {
			c.logger.Warn("provider: write response failed", zap.Error(werr))
		}
	})
}

// handleConn implements the per-connection state machine of §4.2:
// ReadHeaderLen -> ReadHeader -> ReadArgs -> Dispatching -> Writing -> Closed.
// Exactly one request is served per connection; the provider then closes,
// matching §6.1's "response ... terminated by peer close" framing.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	s.wg.Add(1)
	defer s.wg.Done()

	comp := &completion{conn: conn, logger: s.boot.Logger}
	correlationID := newCorrelationID()

	if s.limiter != nil && !s.limiter.Allow() {
		comp.Complete(nil, errors.New("rate limit exceeded"), correlationID)
		return
	}

	hdr, argBytes, err := readFrame(conn)
	if err != nil {
		s.boot.Logger.Warn("provider: frame read failed, closing connection",
			zap.String("correlation_id", correlationID), zap.Error(err))
		conn.Close()
		return
	}

	svc, md, err := s.registry.Lookup(hdr.ServiceName, hdr.MethodName)
	if err != nil {
		comp.Complete(nil, err, correlationID)
		return
	}

	respBytes, err := svc.Call(ctx, md, argBytes)
	comp.Complete(respBytes, err, correlationID)
}

// readFrame grows a buffer and repeatedly calls wire.Decode until it
// has a complete frame, a malformed one, or the connection closes
// early. Decode itself is stateless (§4.1); this loop is the buffering
// layer the spec leaves to the transport.
func readFrame(conn net.Conn) (wire.Header, []byte, error) {
	buf := make([]byte, 0, readBufSize)
	chunk := make([]byte, readBufSize)

	for {
		hdr, body, _, err := wire.Decode(buf)
		if err == nil {
			return hdr, body, nil
		}
		if !errors.Is(err, wire.ErrNeedMore) {
			return wire.Header{}, nil, err
		}

		n, rerr := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return wire.Header{}, nil, io.ErrUnexpectedEOF
			}
			return wire.Header{}, nil, rerr
		}
	}
}
