package config

import (
	"errors"
	"fmt"

	"github.com/cloudx-io/gridmatch/matcher"
)

var ErrInvalidConfig = errors.New("invalid config")

// Validate checks every section and the shape of the node tree: unique ids,
// known parents, a single root and no cycles.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	if err := c.MarketBasis.Validate(); err != nil {
		return fmt.Errorf("market_basis: %w", err)
	}
	if c.Auctioneer.ID == "" {
		return fmt.Errorf("%w: auctioneer.id is required", ErrInvalidConfig)
	}
	if c.Auctioneer.PriceUpdateRate < 0 || c.Auctioneer.BidTimeout < 0 {
		return fmt.Errorf("%w: auctioneer intervals must be >= 0", ErrInvalidConfig)
	}
	if c.Session.ReconnectInterval < 0 {
		return fmt.Errorf("%w: session.reconnect_interval must be >= 0", ErrInvalidConfig)
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}

	// parent of every node; the auctioneer is the only node without one
	parents := map[string]string{c.Auctioneer.ID: ""}
	matchers := map[string]bool{c.Auctioneer.ID: true}

	for i, cc := range c.Concentrators {
		prefix := fmt.Sprintf("concentrators[%d]", i)
		if err := cc.MatcherConfig().Validate(); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if _, dup := parents[cc.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate id %q", ErrInvalidConfig, prefix, cc.ID)
		}
		if ps := cc.PeakShaving; ps != nil {
			if _, err := matcher.NewPeakShaving(ps.Floor, ps.Ceiling); err != nil {
				return fmt.Errorf("%s.peak_shaving: %w", prefix, err)
			}
		}
		parents[cc.ID] = cc.DesiredParent
		matchers[cc.ID] = true
	}

	for i, ac := range c.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if err := ac.AgentConfig().Validate(); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if len(ac.Demand) > 1 && len(ac.Demand) != c.MarketBasis.PriceSteps {
			return fmt.Errorf("%w: %s: demand has %d values, market basis has %d steps",
				ErrInvalidConfig, prefix, len(ac.Demand), c.MarketBasis.PriceSteps)
		}
		if _, dup := parents[ac.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate id %q", ErrInvalidConfig, prefix, ac.ID)
		}
		parents[ac.ID] = ac.DesiredParent
	}

	for id, parent := range parents {
		if parent == "" {
			continue
		}
		if !matchers[parent] {
			return fmt.Errorf("%w: %s: desired parent %q is not a matcher", ErrInvalidConfig, id, parent)
		}
	}

	// Every chain must end at the auctioneer.
	for id := range parents {
		seen := map[string]bool{}
		for node := id; node != c.Auctioneer.ID; node = parents[node] {
			if seen[node] {
				return fmt.Errorf("%w: %s is part of a parent cycle", ErrInvalidConfig, id)
			}
			seen[node] = true
		}
	}
	return nil
}

func (f FeedConfig) validate() error {
	s := f.Stream
	switch s.Network {
	case "", "tcp", "vsock":
	default:
		return fmt.Errorf("%w: feed.stream.network must be tcp or vsock, got %q", ErrInvalidConfig, s.Network)
	}
	if s.Network == "tcp" && s.Address == "" {
		return fmt.Errorf("%w: feed.stream.address is required for tcp", ErrInvalidConfig)
	}
	if s.Network == "vsock" && s.Port == 0 {
		return fmt.Errorf("%w: feed.stream.port is required for vsock", ErrInvalidConfig)
	}
	if s.MaxWorkers < 1 {
		return fmt.Errorf("%w: feed.stream.max_workers must be >= 1", ErrInvalidConfig)
	}
	if s.RateLimit < 0 || s.Burst < 0 {
		return fmt.Errorf("%w: feed.stream rate limit must be >= 0", ErrInvalidConfig)
	}
	return nil
}
