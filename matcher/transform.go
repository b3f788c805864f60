package matcher

import "github.com/cloudx-io/gridmatch/core"

// SentBidInformation remembers the last bid a Concentrator sent upstream, both as
// aggregated from its children and as transformed.
type SentBidInformation struct {
	Original    core.Bid
	Transformed core.Bid
	BidNumber   int
}

// Transformer reshapes bids on their way up and prices on their way down.
// Implementations must be safe for concurrent use.
type Transformer interface {
	TransformBid(aggregated core.Bid) core.Bid
	TransformPrice(price core.Price, sent SentBidInformation) core.Price
}

// Identity leaves bids and prices untouched.
type Identity struct{}

// TransformBid returns the aggregate unchanged.
func (Identity) TransformBid(aggregated core.Bid) core.Bid { return aggregated }

// TransformPrice returns the parent's price unchanged.
func (Identity) TransformPrice(price core.Price, _ SentBidInformation) core.Price { return price }
