package matcher

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

var ErrInvalidConfig = errors.New("invalid matcher config")

// AuctioneerConfig configures the root of the market tree.
type AuctioneerConfig struct {
	ID          string
	ClusterID   string
	MarketBasis core.MarketBasis

	// PriceUpdateRate is the interval between price publications. Zero publishes
	// after every bid update.
	PriceUpdateRate time.Duration

	// BidTimeout is how long a bid counts towards the aggregate. Zero keeps bids forever.
	BidTimeout time.Duration
}

func (c AuctioneerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: auctioneer id is required", ErrInvalidConfig)
	}
	if c.PriceUpdateRate < 0 || c.BidTimeout < 0 {
		return fmt.Errorf("%w: auctioneer %s has a negative interval", ErrInvalidConfig, c.ID)
	}
	if err := c.MarketBasis.Validate(); err != nil {
		return fmt.Errorf("auctioneer %s: %w", c.ID, err)
	}
	return nil
}

// Auctioneer is the root matcher. It defines the market basis and the cluster id
// of the whole tree and periodically clears the market.
type Auctioneer struct {
	cfg      AuctioneerConfig
	log      *logrus.Entry
	observer Observer
	now      func() time.Time

	mu        sync.Mutex
	cache     *core.BidCache
	children  map[string]*session.Session
	lastPrice *core.Price

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAuctioneer validates cfg and creates an Auctioneer.
func NewAuctioneer(cfg AuctioneerConfig, opts ...Option) (*Auctioneer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClusterID == "" {
		cfg.ClusterID = cfg.ID
	}
	o := newNodeOptions(opts)
	if o.log == nil {
		o.log = logger.Component("auctioneer")
	}
	return &Auctioneer{
		cfg:      cfg,
		log:      o.log.WithField("node_id", cfg.ID),
		observer: o.observer,
		now:      o.clock,
		cache:    core.NewBidCache(cfg.MarketBasis, cfg.BidTimeout, o.clock),
		children: make(map[string]*session.Session),
	}, nil
}

func (a *Auctioneer) MatcherID() string { return a.cfg.ID }

func (a *Auctioneer) MarketBasis() core.MarketBasis { return a.cfg.MarketBasis }

// IsConnected is always true: the root needs no parent.
func (a *Auctioneer) IsConnected() bool { return true }

func (a *Auctioneer) ConnectToAgent(s *session.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.children[s.AgentID()]; ok && existing != s {
		return fmt.Errorf("%w: agent %s on %s", session.ErrAlreadyConnected, s.AgentID(), a.cfg.ID)
	}
	if err := s.SetClusterID(a.cfg.ClusterID); err != nil {
		return err
	}
	if err := s.SetMarketBasis(a.cfg.MarketBasis); err != nil {
		return err
	}
	a.children[s.AgentID()] = s
	a.log.WithField("agent_id", s.AgentID()).Debug("agent connected")
	return nil
}

func (a *Auctioneer) AgentEndpointDisconnected(s *session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.children[s.AgentID()] != s {
		return
	}
	delete(a.children, s.AgentID())
	a.cache.RemoveAgent(s.AgentID())
	a.log.WithField("agent_id", s.AgentID()).Debug("agent disconnected")
}

func (a *Auctioneer) HandleBidUpdate(s *session.Session, update core.BidUpdate) {
	a.mu.Lock()
	if a.children[s.AgentID()] != s {
		a.mu.Unlock()
		a.log.WithFields(logrus.Fields{"agent_id": s.AgentID(), "session_id": s.ID()}).Warn("dropping bid from unknown session")
		return
	}
	if _, err := a.cache.UpdateBid(s.AgentID(), update); err != nil {
		a.mu.Unlock()
		a.log.WithError(err).WithField("agent_id", s.AgentID()).Warn("dropping bid")
		return
	}
	a.mu.Unlock()

	a.observer.ObserveBid(BidEvent{
		NodeID:    a.cfg.ID,
		AgentID:   s.AgentID(),
		SessionID: s.ID(),
		Direction: Incoming,
		Timestamp: a.now(),
		Update:    update,
	})

	if a.cfg.PriceUpdateRate == 0 {
		a.Publish()
	}
}

// Publish aggregates all bids, clears the market and sends the price to every child.
// Each child receives the number of its own last bid, or 0 when it never bid.
func (a *Auctioneer) Publish() core.Price {
	a.mu.Lock()
	defer a.mu.Unlock()

	aggregated := a.cache.Aggregate()
	price := core.ClearMarket(aggregated)
	a.lastPrice = &price

	for agentID, s := range a.children {
		update := core.PriceUpdate{Price: price, BidNumber: a.cache.LastBidNumber(agentID)}
		if err := s.UpdatePrice(update); err != nil {
			// Disconnected mid-cycle.
			a.log.WithError(err).WithField("agent_id", agentID).Debug("skipping price")
			continue
		}
		a.observer.ObservePrice(PriceEvent{
			NodeID:    a.cfg.ID,
			AgentID:   agentID,
			SessionID: s.ID(),
			Direction: Outgoing,
			Timestamp: a.now(),
			Update:    update,
		})
	}

	a.log.WithFields(logrus.Fields{
		"price":    price.Value,
		"step":     price.Step(),
		"children": len(a.children),
	}).Debug("published price")
	return price
}

// LastPrice returns the most recently published price.
func (a *Auctioneer) LastPrice() (core.Price, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastPrice == nil {
		return core.Price{}, false
	}
	return *a.lastPrice, true
}

// Children returns the number of connected agents.
func (a *Auctioneer) Children() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.children)
}

// Start launches the publication ticker when PriceUpdateRate is set.
func (a *Auctioneer) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	if a.cfg.PriceUpdateRate <= 0 {
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.cfg.PriceUpdateRate)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				a.Publish()
			}
		}
	}()

	a.log.WithField("price_update_rate", a.cfg.PriceUpdateRate).Info("auctioneer started")
	return nil
}

// Stop ends the publication ticker.
func (a *Auctioneer) Stop(ctx context.Context) error {
	return stopLoop(ctx, a.cancel, &a.wg)
}

func stopLoop(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) error {
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
