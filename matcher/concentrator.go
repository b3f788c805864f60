package matcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/gridmatch/core"
	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/session"
)

// ConcentratorConfig configures an intermediate node.
type ConcentratorConfig struct {
	ID              string
	DesiredParentID string

	// BidUpdateRate is the interval between upstream bids. Zero sends after every
	// change of the children's bids.
	BidUpdateRate time.Duration

	// BidTimeout is how long a child bid counts towards the aggregate. Zero keeps bids forever.
	BidTimeout time.Duration
}

func (c ConcentratorConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: concentrator id is required", ErrInvalidConfig)
	}
	if c.DesiredParentID == "" {
		return fmt.Errorf("%w: concentrator %s has no parent", ErrInvalidConfig, c.ID)
	}
	if c.DesiredParentID == c.ID {
		return fmt.Errorf("%w: concentrator %s is its own parent", ErrInvalidConfig, c.ID)
	}
	if c.BidUpdateRate < 0 || c.BidTimeout < 0 {
		return fmt.Errorf("%w: concentrator %s has a negative interval", ErrInvalidConfig, c.ID)
	}
	return nil
}

// Concentrator aggregates the bids of its children into one bid for its parent
// and hands the parent's price back down. It only accepts children while it is
// connected upstream, because the market basis comes from the parent.
type Concentrator struct {
	cfg         ConcentratorConfig
	log         *logrus.Entry
	observer    Observer
	transformer Transformer
	now         func() time.Time

	mu        sync.Mutex
	parent    *session.Session
	cache     *core.BidCache
	children  map[string]*session.Session
	sent      *SentBidInformation
	bidNumber int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConcentrator validates cfg and creates a Concentrator.
func NewConcentrator(cfg ConcentratorConfig, opts ...Option) (*Concentrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newNodeOptions(opts)
	if o.log == nil {
		o.log = logger.Component("concentrator")
	}
	return &Concentrator{
		cfg:         cfg,
		log:         o.log.WithField("node_id", cfg.ID),
		observer:    o.observer,
		transformer: o.transformer,
		now:         o.clock,
		children:    make(map[string]*session.Session),
	}, nil
}

func (c *Concentrator) AgentID() string         { return c.cfg.ID }
func (c *Concentrator) MatcherID() string       { return c.cfg.ID }
func (c *Concentrator) DesiredParentID() string { return c.cfg.DesiredParentID }

// ConnectToMatcher adopts the parent's market basis and sends a first bid.
func (c *Concentrator) ConnectToMatcher(s *session.Session) error {
	basis, ok := s.MarketBasis()
	if !ok {
		return fmt.Errorf("%w: parent session %s", session.ErrMarketBasisUnset, s.ID())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.parent != nil {
		return fmt.Errorf("%w: %s already has parent %s", session.ErrAlreadyConnected, c.cfg.ID, c.parent.MatcherID())
	}
	c.parent = s
	c.sent = nil
	c.cache = core.NewBidCache(basis, c.cfg.BidTimeout, c.now)
	c.log.WithFields(logrus.Fields{"parent_id": s.MatcherID(), "cluster_id": s.ClusterID()}).Info("connected to parent")

	c.sendBidLocked()
	return nil
}

// MatcherEndpointDisconnected drops the parent and every child with it.
func (c *Concentrator) MatcherEndpointDisconnected(s *session.Session) {
	c.mu.Lock()
	if c.parent != s {
		c.mu.Unlock()
		return
	}
	c.parent = nil
	c.sent = nil
	children := make([]*session.Session, 0, len(c.children))
	for _, child := range c.children {
		children = append(children, child)
	}
	c.mu.Unlock()

	c.log.WithField("children", len(children)).Info("lost parent, disconnecting children")
	for _, child := range children {
		child.Disconnect()
	}
}

func (c *Concentrator) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent != nil
}

func (c *Concentrator) ConnectToAgent(s *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.parent == nil {
		return fmt.Errorf("%w: %s has no parent", session.ErrNotConnected, c.cfg.ID)
	}
	if existing, ok := c.children[s.AgentID()]; ok && existing != s {
		return fmt.Errorf("%w: agent %s on %s", session.ErrAlreadyConnected, s.AgentID(), c.cfg.ID)
	}
	if err := s.SetClusterID(c.parent.ClusterID()); err != nil {
		return err
	}
	if err := s.SetMarketBasis(c.cache.Basis()); err != nil {
		return err
	}
	c.children[s.AgentID()] = s
	c.log.WithField("agent_id", s.AgentID()).Debug("agent connected")
	return nil
}

func (c *Concentrator) AgentEndpointDisconnected(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.children[s.AgentID()] != s {
		return
	}
	delete(c.children, s.AgentID())
	if c.cache != nil {
		c.cache.RemoveAgent(s.AgentID())
	}
	c.log.WithField("agent_id", s.AgentID()).Debug("agent disconnected")

	if c.cfg.BidUpdateRate == 0 {
		c.sendBidLocked()
	}
}

func (c *Concentrator) HandleBidUpdate(s *session.Session, update core.BidUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.children[s.AgentID()] != s {
		c.log.WithFields(logrus.Fields{"agent_id": s.AgentID(), "session_id": s.ID()}).Warn("dropping bid from unknown session")
		return
	}
	if _, err := c.cache.UpdateBid(s.AgentID(), update); err != nil {
		c.log.WithError(err).WithField("agent_id", s.AgentID()).Warn("dropping bid")
		return
	}
	c.observer.ObserveBid(BidEvent{
		NodeID:    c.cfg.ID,
		AgentID:   s.AgentID(),
		SessionID: s.ID(),
		Direction: Incoming,
		Timestamp: c.now(),
		Update:    update,
	})

	if c.cfg.BidUpdateRate == 0 {
		c.sendBidLocked()
	}
}

// HandlePriceUpdate translates the parent's price and passes it to every child.
func (c *Concentrator) HandlePriceUpdate(update core.PriceUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.parent == nil {
		c.log.WithField("bid_number", update.BidNumber).Warn("dropping price without parent")
		return
	}
	c.observer.ObservePrice(PriceEvent{
		NodeID:    c.cfg.ID,
		AgentID:   c.cfg.ID,
		SessionID: c.parent.ID(),
		Direction: Incoming,
		Timestamp: c.now(),
		Update:    update,
	})

	price := update.Price
	if c.sent != nil {
		if update.BidNumber > c.sent.BidNumber {
			c.log.WithFields(logrus.Fields{
				"bid_number":      update.BidNumber,
				"last_bid_number": c.sent.BidNumber,
			}).Warn("dropping price for a bid that was never sent")
			return
		}
		price = c.transformer.TransformPrice(price, *c.sent)
	}

	for agentID, s := range c.children {
		out := core.PriceUpdate{Price: price, BidNumber: c.cache.LastBidNumber(agentID)}
		if err := s.UpdatePrice(out); err != nil {
			c.log.WithError(err).WithField("agent_id", agentID).Debug("skipping price")
			continue
		}
		c.observer.ObservePrice(PriceEvent{
			NodeID:    c.cfg.ID,
			AgentID:   agentID,
			SessionID: s.ID(),
			Direction: Outgoing,
			Timestamp: c.now(),
			Update:    out,
		})
	}
}

// sendBidLocked aggregates, transforms and sends one bid upstream.
// Session updates only fill a mailbox, so holding c.mu here is safe.
func (c *Concentrator) sendBidLocked() {
	if c.parent == nil {
		return
	}

	aggregated := c.cache.Aggregate()
	transformed := c.transformer.TransformBid(aggregated)
	c.bidNumber++
	update := core.BidUpdate{Bid: transformed, BidNumber: c.bidNumber}

	if err := c.parent.UpdateBid(update); err != nil {
		c.log.WithError(err).Warn("failed to send bid upstream")
		return
	}
	c.sent = &SentBidInformation{Original: aggregated, Transformed: transformed, BidNumber: c.bidNumber}

	c.observer.ObserveBid(BidEvent{
		NodeID:    c.cfg.ID,
		AgentID:   c.cfg.ID,
		SessionID: c.parent.ID(),
		Direction: Outgoing,
		Timestamp: c.now(),
		Update:    update,
	})
}

// SendBid pushes the current aggregate upstream right away.
func (c *Concentrator) SendBid() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendBidLocked()
}

// LastSentBid returns what was last sent upstream.
func (c *Concentrator) LastSentBid() (SentBidInformation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		return SentBidInformation{}, false
	}
	return *c.sent, true
}

// Children returns the number of connected agents.
func (c *Concentrator) Children() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}

// Start launches the upstream bid ticker when BidUpdateRate is set.
func (c *Concentrator) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	if c.cfg.BidUpdateRate <= 0 {
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.BidUpdateRate)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.SendBid()
			}
		}
	}()

	c.log.WithField("bid_update_rate", c.cfg.BidUpdateRate).Info("concentrator started")
	return nil
}

// Stop ends the bid ticker.
func (c *Concentrator) Stop(ctx context.Context) error {
	return stopLoop(ctx, c.cancel, &c.wg)
}
