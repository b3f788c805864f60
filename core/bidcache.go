package core

import (
	"fmt"
	"time"
)

// BidCache keeps the latest bid of every agent connected to one matcher node.
//
// Entries older than the timeout are skipped when aggregating but are kept until
// overwritten or removed, so the last known bid of an agent stays available.
// BidCache does no locking; the owning node serializes access.
type BidCache struct {
	basis   MarketBasis
	timeout time.Duration
	now     func() time.Time
	entries map[string]bidCacheEntry
}

type bidCacheEntry struct {
	update     BidUpdate
	receivedAt time.Time
}

// NewBidCache creates a cache for bids on basis. A timeout <= 0 disables expiry.
// A nil clock defaults to time.Now.
func NewBidCache(basis MarketBasis, timeout time.Duration, clock func() time.Time) *BidCache {
	if clock == nil {
		clock = time.Now
	}
	return &BidCache{
		basis:   basis,
		timeout: timeout,
		now:     clock,
		entries: make(map[string]bidCacheEntry),
	}
}

// Basis returns the market basis every cached bid must use.
func (c *BidCache) Basis() MarketBasis {
	return c.basis
}

// UpdateBid stores the bid of an agent and returns the bid it replaced, if any.
func (c *BidCache) UpdateBid(agentID string, update BidUpdate) (*BidUpdate, error) {
	if update.Bid.IsZero() {
		return nil, fmt.Errorf("%w: nil bid from agent %s", ErrInvalidArgument, agentID)
	}
	if !update.Bid.Basis().Equal(c.basis) {
		return nil, fmt.Errorf("%w: bid from agent %s uses %s, cache uses %s",
			ErrMarketBasisMismatch, agentID, update.Bid.Basis(), c.basis)
	}

	var previous *BidUpdate
	if entry, ok := c.entries[agentID]; ok {
		prev := entry.update
		previous = &prev
	}
	c.entries[agentID] = bidCacheEntry{update: update, receivedAt: c.now()}
	return previous, nil
}

// LastBid returns the last bid received from an agent, expired or not.
func (c *BidCache) LastBid(agentID string) (BidUpdate, bool) {
	entry, ok := c.entries[agentID]
	return entry.update, ok
}

// LastBidNumber returns the bid number of the agent's last bid, or 0.
func (c *BidCache) LastBidNumber(agentID string) int {
	return c.entries[agentID].update.BidNumber
}

// RemoveAgent drops the entry of an agent.
func (c *BidCache) RemoveAgent(agentID string) {
	delete(c.entries, agentID)
}

// Aggregate sums the demand curves of all non-expired entries.
// An empty cache aggregates to a zero curve.
func (c *BidCache) Aggregate() Bid {
	now := c.now()
	sum := make([]float64, c.basis.PriceSteps)
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			continue
		}
		for i, d := range entry.update.Bid.demand {
			sum[i] += d
		}
	}
	return Bid{basis: c.basis, demand: sum}
}

// Purge deletes expired entries and returns the agents that were removed.
func (c *BidCache) Purge() []string {
	now := c.now()
	var removed []string
	for agentID, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, agentID)
			removed = append(removed, agentID)
		}
	}
	return removed
}

// Len returns the number of cached entries, including expired ones.
func (c *BidCache) Len() int {
	return len(c.entries)
}

func (c *BidCache) expired(entry bidCacheEntry, now time.Time) bool {
	return c.timeout > 0 && now.Sub(entry.receivedAt) > c.timeout
}
