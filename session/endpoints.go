package session

import "github.com/cloudx-io/gridmatch/core"

// AgentEndpoint is the upstream-facing side of a node: devices, aggregators and
// the agent half of a Concentrator.
type AgentEndpoint interface {
	AgentID() string
	DesiredParentID() string

	// ConnectToMatcher is called while the session is being wired. The session's
	// market basis and cluster id are already set. Returning an error aborts the
	// wiring, and MatcherEndpointDisconnected is not called for that session, so an
	// agent that fails must not keep any reference to it.
	ConnectToMatcher(s *Session) error

	// MatcherEndpointDisconnected is called once the session is dead.
	MatcherEndpointDisconnected(s *Session)

	// HandlePriceUpdate receives prices from the matcher, asynchronously and in order.
	HandlePriceUpdate(update core.PriceUpdate)
}

// MatcherEndpoint is the downstream-facing side of a node: the Auctioneer and the
// matcher half of a Concentrator.
type MatcherEndpoint interface {
	MatcherID() string

	// IsConnected reports whether the matcher can accept agents. A Concentrator
	// needs its own parent first, since that is where its market basis comes from.
	IsConnected() bool

	// ConnectToAgent is called first while the session is being wired. It must set
	// the session's cluster id and market basis.
	ConnectToAgent(s *Session) error

	// AgentEndpointDisconnected is called once the session is dead.
	AgentEndpointDisconnected(s *Session)

	// HandleBidUpdate receives bids from the agent, asynchronously and in order.
	HandleBidUpdate(s *Session, update core.BidUpdate)
}
