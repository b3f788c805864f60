package matcher

import (
	"time"

	"github.com/cloudx-io/gridmatch/core"
)

// Direction tells whether a node received or sent a message.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// BidEvent reports a bid seen by a node.
type BidEvent struct {
	NodeID    string
	AgentID   string
	SessionID string
	Direction Direction
	Timestamp time.Time
	Update    core.BidUpdate
}

// PriceEvent reports a price seen by a node.
type PriceEvent struct {
	NodeID    string
	AgentID   string
	SessionID string
	Direction Direction
	Timestamp time.Time
	Update    core.PriceUpdate
}

// Observer receives read-only notifications. Implementations must not block;
// they are called from the node's delivery path.
type Observer interface {
	ObserveBid(BidEvent)
	ObservePrice(PriceEvent)
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) ObserveBid(e BidEvent) {
	for _, o := range m {
		o.ObserveBid(e)
	}
}

func (m MultiObserver) ObservePrice(e PriceEvent) {
	for _, o := range m {
		o.ObservePrice(e)
	}
}

type nopObserver struct{}

func (nopObserver) ObserveBid(BidEvent)     {}
func (nopObserver) ObservePrice(PriceEvent) {}
