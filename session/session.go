package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/gridmatch/core"
)

var (
	ErrSessionClosed         = errors.New("session closed")
	ErrMarketBasisUnset      = errors.New("session market basis not set")
	ErrMarketBasisAlreadySet = errors.New("session market basis already set")
	ErrClusterIDAlreadySet   = errors.New("session cluster id already set")
	ErrAlreadyConnected      = errors.New("endpoint already connected")
	ErrNotConnected          = errors.New("endpoint not connected")
	ErrDuplicateEndpoint     = errors.New("endpoint id already registered")
)

type sessionState int

const (
	stateWiring sessionState = iota
	stateLive
	stateDead
)

// Session is one live agent-matcher connection.
type Session struct {
	id        string
	agent     AgentEndpoint
	matcher   MatcherEndpoint
	potential *PotentialSession
	log       *logrus.Entry

	mu        sync.Mutex
	state     sessionState
	clusterID string
	basis     *core.MarketBasis
	done      chan struct{}

	bids   *mailbox[core.BidUpdate]
	prices *mailbox[core.PriceUpdate]
}

func newSession(agent AgentEndpoint, matcher MatcherEndpoint, potential *PotentialSession, log *logrus.Entry) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		agent:     agent,
		matcher:   matcher,
		potential: potential,
		log: log.WithFields(logrus.Fields{
			"session_id": id,
			"agent_id":   agent.AgentID(),
			"matcher_id": matcher.MatcherID(),
		}),
		state:  stateWiring,
		done:   make(chan struct{}),
		bids:   newMailbox[core.BidUpdate](),
		prices: newMailbox[core.PriceUpdate](),
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) AgentID() string   { return s.agent.AgentID() }
func (s *Session) MatcherID() string { return s.matcher.MatcherID() }

// ClusterID returns the cluster id set by the matcher, or "".
func (s *Session) ClusterID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusterID
}

// MarketBasis returns the negotiated market basis.
func (s *Session) MarketBasis() (core.MarketBasis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.basis == nil {
		return core.MarketBasis{}, false
	}
	return *s.basis, true
}

// IsLive reports whether bids and prices are being delivered.
func (s *Session) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateLive
}

// SetClusterID may be called once, by the matcher.
func (s *Session) SetClusterID(clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clusterID != "" {
		return fmt.Errorf("%w: session %s is in cluster %s", ErrClusterIDAlreadySet, s.id, s.clusterID)
	}
	s.clusterID = clusterID
	return nil
}

// SetMarketBasis may be called once, by the matcher.
func (s *Session) SetMarketBasis(basis core.MarketBasis) error {
	if err := basis.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.basis != nil {
		return fmt.Errorf("%w: session %s", ErrMarketBasisAlreadySet, s.id)
	}
	s.basis = &basis
	return nil
}

// UpdateBid queues a bid for the matcher. It never blocks; an undelivered older
// bid is replaced. Bids queued during wiring are delivered once the session is live.
func (s *Session) UpdateBid(update core.BidUpdate) error {
	if update.Bid.IsZero() {
		return fmt.Errorf("%w: nil bid on session %s", core.ErrInvalidArgument, s.id)
	}
	if err := s.checkBasis(update.Bid.Basis()); err != nil {
		return err
	}
	if s.bids.put(update) {
		s.log.WithField("bid_number", update.BidNumber).Debug("superseded undelivered bid")
	}
	return nil
}

// UpdatePrice queues a price for the agent. It never blocks; an undelivered older
// price is replaced.
func (s *Session) UpdatePrice(update core.PriceUpdate) error {
	if err := s.checkBasis(update.Price.Basis); err != nil {
		return err
	}
	if s.prices.put(update) {
		s.log.WithField("bid_number", update.BidNumber).Debug("superseded undelivered price")
	}
	return nil
}

func (s *Session) checkBasis(basis core.MarketBasis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDead {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.id)
	}
	if s.basis == nil {
		return fmt.Errorf("%w: %s", ErrMarketBasisUnset, s.id)
	}
	if !s.basis.Equal(basis) {
		return fmt.Errorf("%w: session %s uses %s, got %s", core.ErrMarketBasisMismatch, s.id, s.basis, basis)
	}
	return nil
}

// activate turns a wired session live and starts delivery.
// It returns false when the session was disconnected while wiring.
func (s *Session) activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateWiring {
		return false
	}
	s.state = stateLive

	go s.bids.drain(s.done, func(u core.BidUpdate) { s.matcher.HandleBidUpdate(s, u) })
	go s.prices.drain(s.done, s.agent.HandlePriceUpdate)
	return true
}

// abort kills a session whose wiring failed. No endpoint is notified.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateDead {
		s.state = stateDead
		close(s.done)
	}
}

// Disconnect ends the session. The session is marked dead before the matcher, the
// agent and the PotentialSession are told, so nothing is accepted once it starts.
// A disconnect during wiring makes the wiring fail instead. Calling it again is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	previous := s.state
	if previous != stateDead {
		s.state = stateDead
		close(s.done)
	}
	s.mu.Unlock()

	if previous != stateLive {
		return
	}

	s.log.Info("session disconnected")
	s.matcher.AgentEndpointDisconnected(s)
	s.agent.MatcherEndpointDisconnected(s)
	if s.potential != nil {
		s.potential.sessionDisconnected(s)
	}
}
