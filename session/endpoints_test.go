package session

import (
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/gridmatch/core"
)

func testBasis(t *testing.T) core.MarketBasis {
	t.Helper()
	mb, err := core.NewMarketBasis("electricity", "EUR", 8, 0, 7)
	assert.NoError(t, err)
	return mb
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// recordingMatcher is a MatcherEndpoint that records every callback.
type recordingMatcher struct {
	id    string
	basis core.MarketBasis

	mu            sync.Mutex
	connected     bool
	refuse        error
	setBasisTwice bool
	active        map[*Session]bool
	overlaps      int
	connects      int
	disconnects   int
	bids          []core.BidUpdate
}

func newRecordingMatcher(id string, basis core.MarketBasis) *recordingMatcher {
	return &recordingMatcher{id: id, basis: basis, connected: true, active: make(map[*Session]bool)}
}

func (m *recordingMatcher) MatcherID() string { return m.id }

func (m *recordingMatcher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *recordingMatcher) ConnectToAgent(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse != nil {
		return m.refuse
	}
	if err := s.SetClusterID("cluster-" + m.id); err != nil {
		return err
	}
	if err := s.SetMarketBasis(m.basis); err != nil {
		return err
	}
	if m.setBasisTwice {
		if err := s.SetMarketBasis(m.basis); err != nil {
			return err
		}
	}
	for other := range m.active {
		if other.AgentID() == s.AgentID() {
			m.overlaps++
		}
	}
	m.active[s] = true
	m.connects++
	return nil
}

func (m *recordingMatcher) AgentEndpointDisconnected(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, s)
	m.disconnects++
}

func (m *recordingMatcher) HandleBidUpdate(_ *Session, update core.BidUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids = append(m.bids, update)
}

func (m *recordingMatcher) counts() (connects, disconnects, overlaps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects, m.overlaps
}

func (m *recordingMatcher) receivedBids() []core.BidUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.BidUpdate(nil), m.bids...)
}

// recordingAgent is an AgentEndpoint that records every callback.
type recordingAgent struct {
	id     string
	parent string

	mu          sync.Mutex
	refuse      error
	onConnect   func(s *Session)
	connects    int
	disconnects int
	prices      []core.PriceUpdate
}

func (a *recordingAgent) AgentID() string         { return a.id }
func (a *recordingAgent) DesiredParentID() string { return a.parent }

func (a *recordingAgent) ConnectToMatcher(s *Session) error {
	a.mu.Lock()
	refuse, onConnect := a.refuse, a.onConnect
	a.mu.Unlock()

	if refuse != nil {
		return refuse
	}
	if onConnect != nil {
		onConnect(s)
	}

	a.mu.Lock()
	a.connects++
	a.mu.Unlock()
	return nil
}

func (a *recordingAgent) MatcherEndpointDisconnected(*Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnects++
}

func (a *recordingAgent) HandlePriceUpdate(update core.PriceUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices = append(a.prices, update)
}

func (a *recordingAgent) counts() (connects, disconnects int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects, a.disconnects
}

func (a *recordingAgent) receivedPrices() []core.PriceUpdate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.PriceUpdate(nil), a.prices...)
}
