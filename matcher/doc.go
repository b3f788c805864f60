// Package matcher implements the nodes of the market tree.
//
// The Auctioneer is the root: it aggregates the bids of its children, clears the
// market and publishes the price. A Concentrator sits in between: it is a matcher
// for its children and an agent for its parent. What a Concentrator sends upstream
// and what it sends back down is decided by a Transformer; Identity passes both
// through, PeakShaving keeps the aggregated flow within hard limits.
package matcher
