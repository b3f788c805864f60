// Package session implements the connection protocol between agents and matchers.
//
// A PotentialSession pairs an agent with the matcher it wants as parent. When the
// matcher is known and connected, TryConnect wires a Session between both endpoints:
//   - the matcher side runs first and fixes the cluster id and market basis
//   - the agent side runs second and usually queues its first bid
//   - only after both returned do bids and prices start flowing
//
// Bids and prices are handed over through per-session mailboxes that keep only the
// latest value, so a slow endpoint never blocks the sender and never builds a backlog.
package session
