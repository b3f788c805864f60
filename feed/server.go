// Package feed receives flow measurements for peak shaving nodes and serves
// node status and a live event stream.
//
// Measurements arrive over HTTP as JSON or over a stream listener (tcp or vsock)
// as one CBOR frame per connection, optionally signed with COSE_Sign1.
package feed

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/marketapi"
	"github.com/cloudx-io/gridmatch/matcher"
)

var (
	ErrUnknownNode = errors.New("unknown peak shaving node")
	ErrRateLimited = errors.New("measurement rate limit exceeded")
)

// Config configures the feed server.
type Config struct {
	// HTTPAddress is the listen address of the HTTP API. Empty disables it.
	HTTPAddress string

	// AllowedOrigins lists the browser origins allowed by CORS. Empty allows all.
	AllowedOrigins []string

	Stream StreamConfig
}

// StreamConfig configures the measurement stream listener.
type StreamConfig struct {
	// Network is "tcp", "vsock" or empty to disable the listener.
	Network string
	Address string // tcp listen address
	Port    uint32 // vsock port

	MaxWorkers  int
	ReadTimeout time.Duration

	// RateLimit is the number of measurements accepted per second over all
	// connections. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithVerifyKey requires every stream frame to be signed by key.
func WithVerifyKey(key *ecdsa.PublicKey) Option {
	return func(s *Server) { s.verifyKey = key }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server routes measurements to peak shaving nodes.
type Server struct {
	cfg       Config
	log       *logrus.Entry
	nodes     map[string]*matcher.PeakShavingConcentrator
	hub       *Hub
	verifyKey *ecdsa.PublicKey
	limiter   *rate.Limiter
	metrics   http.Handler
	engine    *gin.Engine
	handler   http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

// NewServer creates a server for the given peak shaving nodes, keyed by node id.
func NewServer(cfg Config, nodes map[string]*matcher.PeakShavingConcentrator, opts ...Option) *Server {
	if cfg.Stream.MaxWorkers <= 0 {
		cfg.Stream.MaxWorkers = 16
	}
	if cfg.Stream.ReadTimeout <= 0 {
		cfg.Stream.ReadTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:   cfg,
		log:   logger.Component("feed"),
		nodes: nodes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Stream.RateLimit > 0 {
		burst := cfg.Stream.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Stream.RateLimit), burst)
	}
	s.hub = NewHub(s.log.WithField("component", "feed-hub"))
	s.engine = s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.engine)
	return s
}

// Hub returns the event hub; register it as a matcher observer.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP API wrapped in the CORS policy.
func (s *Server) Handler() http.Handler { return s.handler }

// ApplyMeasurement sets the measured flow of a node and acknowledges it.
func (s *Server) ApplyMeasurement(m marketapi.MeasurementMessage) (marketapi.MeasurementAck, error) {
	if err := m.Validate(); err != nil {
		return marketapi.MeasurementAck{}, err
	}
	node, ok := s.nodes[m.NodeID]
	if !ok {
		return marketapi.MeasurementAck{}, fmt.Errorf("%w: %s", ErrUnknownNode, m.NodeID)
	}

	node.SetMeasuredFlow(m.Flow)
	s.log.WithFields(logrus.Fields{"node_id": m.NodeID, "flow": m.Flow}).Debug("measurement applied")

	return marketapi.MeasurementAck{
		Type:             "measurement_ack",
		Success:          true,
		NodeID:           m.NodeID,
		UncontrolledFlow: marketapi.Known(node.UncontrolledFlow()),
	}, nil
}

// Start opens the HTTP API and the stream listener as configured.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.HTTPAddress != "" {
		ln, err := net.Listen("tcp", s.cfg.HTTPAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddress, err)
		}
		srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

		s.mu.Lock()
		s.httpServer = srv
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.WithError(err).Error("http server failed")
			}
		}()
		s.log.WithField("address", ln.Addr().String()).Info("feed http api listening")
	}

	if s.cfg.Stream.Network != "" {
		ln, err := s.listen()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.listener = ln
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveStream(ctx, ln)
		}()
	}
	return nil
}

// Stop closes listeners and monitors and waits for the serving goroutines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	s.hub.Close()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close stream listener: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// streamAddr returns the bound stream address, or nil.
func (s *Server) streamAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
