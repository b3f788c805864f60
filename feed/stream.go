package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/gridmatch/marketapi"
)

// maxFrameSize bounds a single measurement frame.
const maxFrameSize = 64 << 10

func (s *Server) listen() (net.Listener, error) {
	switch s.cfg.Stream.Network {
	case "tcp":
		ln, err := net.Listen("tcp", s.cfg.Stream.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		s.log.WithField("address", ln.Addr().String()).Info("measurement stream listening")
		return ln, nil
	case "vsock":
		ln, err := vsock.Listen(s.cfg.Stream.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		s.log.WithField("port", s.cfg.Stream.Port).Info("measurement stream listening on vsock")
		return ln, nil
	default:
		return nil, fmt.Errorf("unsupported stream network %q", s.cfg.Stream.Network)
	}
}

// serveStream accepts connections until the listener is closed. Each connection
// gets a worker slot; connections arriving while every slot is busy are closed.
func (s *Server) serveStream(ctx context.Context, ln net.Listener) {
	semaphore := make(chan struct{}, s.cfg.Stream.MaxWorkers)
	s.log.WithField("max_workers", s.cfg.Stream.MaxWorkers).Info("stream worker pool initialized")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("failed to accept stream connection")
			continue
		}

		select {
		case semaphore <- struct{}{}:
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			s.log.Info("no workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				s.log.WithError(err).Error("failed to close rejected connection")
			}
		}
	}
}

// handleConnection reads one frame until the client half-closes, applies it and
// writes a JSON ack.
func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("panic recovered in handleConnection")
		}
		if err := conn.Close(); err != nil {
			s.log.WithError(err).Debug("failed to close connection")
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Stream.ReadTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxFrameSize)); err != nil {
		s.log.WithError(err).Warn("failed to read measurement frame")
		return
	}

	ack, err := s.handleFrame(buf.Bytes())
	if err != nil {
		s.log.WithError(err).Warn("measurement rejected")
		ack = marketapi.MeasurementAck{Type: "error", Message: err.Error()}
	}

	if err := json.NewEncoder(conn).Encode(ack); err != nil {
		s.log.WithError(err).Warn("failed to encode ack")
	}
}

// handleFrame verifies and applies one frame. With a verify key only signed
// frames are accepted; without one, bare CBOR and unverified COSE payloads are.
func (s *Server) handleFrame(frame marketapi.Frame) (marketapi.MeasurementAck, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return marketapi.MeasurementAck{}, ErrRateLimited
	}

	var (
		m   marketapi.MeasurementMessage
		err error
	)
	switch {
	case s.verifyKey != nil:
		m, err = marketapi.VerifyMeasurement(frame, s.verifyKey)
	case marketapi.IsCOSE(frame):
		var payload []byte
		payload, err = marketapi.ExtractCOSEPayload(frame)
		if err == nil {
			m, err = marketapi.DecodeMeasurement(payload)
		}
	default:
		m, err = marketapi.DecodeMeasurement(frame)
	}
	if err != nil {
		return marketapi.MeasurementAck{}, err
	}
	return s.ApplyMeasurement(m)
}
