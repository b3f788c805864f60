// Package agent provides a constant-demand AgentEndpoint.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/gridmatch/core"
	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/session"
)

var ErrInvalidConfig = errors.New("invalid agent config")

// Config configures a FixedAgent.
type Config struct {
	ID              string
	DesiredParentID string

	// Demand is the curve to bid, lowest price first. A single value bids the
	// same demand at every price.
	Demand []float64

	// BidUpdateRate resends the bid periodically so it never expires upstream.
	// Zero sends only on connect.
	BidUpdateRate time.Duration
}

func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidConfig)
	}
	if c.DesiredParentID == "" {
		return fmt.Errorf("%w: agent %s has no parent", ErrInvalidConfig, c.ID)
	}
	if len(c.Demand) == 0 {
		return fmt.Errorf("%w: agent %s has no demand", ErrInvalidConfig, c.ID)
	}
	if c.BidUpdateRate < 0 {
		return fmt.Errorf("%w: agent %s has a negative bid update rate", ErrInvalidConfig, c.ID)
	}
	return nil
}

// FixedAgent bids the same demand curve for as long as it is connected.
type FixedAgent struct {
	cfg Config
	log *logrus.Entry

	mu        sync.Mutex
	session   *session.Session
	bid       core.Bid
	bidNumber int
	lastPrice *core.PriceUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and creates a FixedAgent. A nil log uses the default logger.
func New(cfg Config, log *logrus.Entry) (*FixedAgent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Component("agent")
	}
	return &FixedAgent{cfg: cfg, log: log.WithField("agent_id", cfg.ID)}, nil
}

func (a *FixedAgent) AgentID() string         { return a.cfg.ID }
func (a *FixedAgent) DesiredParentID() string { return a.cfg.DesiredParentID }

// ConnectToMatcher builds the bid on the session's market basis and sends it.
func (a *FixedAgent) ConnectToMatcher(s *session.Session) error {
	basis, ok := s.MarketBasis()
	if !ok {
		return fmt.Errorf("%w: session %s", session.ErrMarketBasisUnset, s.ID())
	}
	bid, err := a.buildBid(basis)
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.cfg.ID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return fmt.Errorf("%w: agent %s", session.ErrAlreadyConnected, a.cfg.ID)
	}
	// Nothing is kept unless the first bid goes out.
	a.bidNumber++
	if err := s.UpdateBid(core.BidUpdate{Bid: bid, BidNumber: a.bidNumber}); err != nil {
		return fmt.Errorf("agent %s: %w", a.cfg.ID, err)
	}
	a.session = s
	a.bid = bid
	return nil
}

func (a *FixedAgent) buildBid(basis core.MarketBasis) (core.Bid, error) {
	if len(a.cfg.Demand) == 1 {
		return core.NewFlatBid(basis, a.cfg.Demand[0]), nil
	}
	return core.NewBid(basis, a.cfg.Demand)
}

func (a *FixedAgent) MatcherEndpointDisconnected(s *session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == s {
		a.session = nil
		a.log.Info("disconnected from matcher")
	}
}

func (a *FixedAgent) HandlePriceUpdate(update core.PriceUpdate) {
	a.mu.Lock()
	a.lastPrice = &update
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"price":      update.Price.Value,
		"bid_number": update.BidNumber,
	}).Debug("price received")
}

// LastPrice returns the most recent price received.
func (a *FixedAgent) LastPrice() (core.PriceUpdate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastPrice == nil {
		return core.PriceUpdate{}, false
	}
	return *a.lastPrice, true
}

// SendBid resends the bid. It is a no-op while disconnected.
func (a *FixedAgent) SendBid() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	return a.sendLocked()
}

func (a *FixedAgent) sendLocked() error {
	a.bidNumber++
	return a.session.UpdateBid(core.BidUpdate{Bid: a.bid, BidNumber: a.bidNumber})
}

// Start launches the resend ticker when BidUpdateRate is set.
func (a *FixedAgent) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	if a.cfg.BidUpdateRate <= 0 {
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.cfg.BidUpdateRate)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				if err := a.SendBid(); err != nil {
					a.log.WithError(err).Warn("failed to resend bid")
				}
			}
		}
	}()
	return nil
}

// Stop ends the resend ticker.
func (a *FixedAgent) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
