package matcher

import (
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/gridmatch/core"
	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/session"
)

// eightStepBasis has 8 steps from price 0 to 7, so step i has price i.
func eightStepBasis(t *testing.T) core.MarketBasis {
	t.Helper()
	mb, err := core.NewMarketBasis("electricity", "EUR", 8, 0, 7)
	assert.NoError(t, err)
	return mb
}

func mustBid(t *testing.T, basis core.MarketBasis, demand ...float64) core.Bid {
	t.Helper()
	bid, err := core.NewBid(basis, demand)
	assert.NoError(t, err)
	return bid
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// biddingAgent sends one fixed bid as soon as it is connected and records prices.
type biddingAgent struct {
	id     string
	parent string
	demand []float64

	mu      sync.Mutex
	session *session.Session
	prices  []core.PriceUpdate
}

func (a *biddingAgent) AgentID() string         { return a.id }
func (a *biddingAgent) DesiredParentID() string { return a.parent }

func (a *biddingAgent) ConnectToMatcher(s *session.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
	if a.demand == nil {
		return nil
	}
	basis, _ := s.MarketBasis()
	bid, err := core.NewBid(basis, a.demand)
	if err != nil {
		return err
	}
	return s.UpdateBid(core.BidUpdate{Bid: bid, BidNumber: 1})
}

func (a *biddingAgent) MatcherEndpointDisconnected(*session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
}

func (a *biddingAgent) HandlePriceUpdate(update core.PriceUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices = append(a.prices, update)
}

func (a *biddingAgent) lastPrice() (core.PriceUpdate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.prices) == 0 {
		return core.PriceUpdate{}, false
	}
	return a.prices[len(a.prices)-1], true
}

func (a *biddingAgent) connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

// hasPrice reports whether the last received price has the given value.
func (a *biddingAgent) hasPrice(value float64) func() bool {
	return func() bool {
		p, ok := a.lastPrice()
		return ok && p.Price.Value == value
	}
}

func newTestManager() *session.Manager {
	return session.NewManager(session.ManagerConfig{}, logger.Discard())
}

// recordingObserver keeps every event it sees.
type recordingObserver struct {
	mu     sync.Mutex
	bids   []BidEvent
	prices []PriceEvent
}

func (o *recordingObserver) ObserveBid(e BidEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bids = append(o.bids, e)
}

func (o *recordingObserver) ObservePrice(e PriceEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices = append(o.prices, e)
}

func (o *recordingObserver) count(direction Direction) (bids, prices int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.bids {
		if e.Direction == direction {
			bids++
		}
	}
	for _, e := range o.prices {
		if e.Direction == direction {
			prices++
		}
	}
	return bids, prices
}
