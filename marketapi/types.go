// Package marketapi holds the wire types of the measurement feed and the event
// monitor, together with their CBOR, COSE and JSON encodings.
package marketapi

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/cloudx-io/gridmatch/matcher"
)

// MeasurementMessage is one flow measurement for a peak shaving node.
type MeasurementMessage struct {
	NodeID    string  `cbor:"node_id" json:"node_id"`
	Flow      float64 `cbor:"flow" json:"flow"`
	Timestamp int64   `cbor:"timestamp" json:"timestamp"` // unix milliseconds
}

// MeasurementRequest is the HTTP body of a measurement; the node id is in the path.
type MeasurementRequest struct {
	Flow *float64 `json:"flow" binding:"required"`
}

// MeasurementAck acknowledges a measurement on both the HTTP and the stream transport.
type MeasurementAck struct {
	Type             string   `json:"type"`
	Success          bool     `json:"success"`
	Message          string   `json:"message,omitempty"`
	NodeID           string   `json:"node_id,omitempty"`
	UncontrolledFlow *float64 `json:"uncontrolled_flow,omitempty"`
}

// NodeStatus reports the state of a peak shaving node. Unknown flows are omitted.
type NodeStatus struct {
	NodeID           string   `json:"node_id"`
	Connected        bool     `json:"connected"`
	Children         int      `json:"children"`
	Floor            float64  `json:"floor"`
	Ceiling          float64  `json:"ceiling"`
	MeasuredFlow     *float64 `json:"measured_flow,omitempty"`
	AllocatedFlow    *float64 `json:"allocated_flow,omitempty"`
	UncontrolledFlow *float64 `json:"uncontrolled_flow,omitempty"`
	LastBidNumber    int      `json:"last_bid_number"`
}

// NewNodeStatus converts a peak shaving snapshot.
func NewNodeStatus(nodeID string, c *matcher.PeakShavingConcentrator) NodeStatus {
	st := c.Status()
	status := NodeStatus{
		NodeID:           nodeID,
		Connected:        c.IsConnected(),
		Children:         c.Children(),
		Floor:            st.Floor,
		Ceiling:          st.Ceiling,
		MeasuredFlow:     Known(st.MeasuredFlow),
		AllocatedFlow:    Known(st.AllocatedFlow),
		UncontrolledFlow: Known(st.UncontrolledFlow),
	}
	if sent, ok := c.LastSentBid(); ok {
		status.LastBidNumber = sent.BidNumber
	}
	return status
}

// Known returns nil for NaN, which JSON cannot carry.
func Known(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// EventFrame is one bid or price event as sent to monitors.
type EventFrame struct {
	Type      string    `json:"type"` // "bid" or "price"
	NodeID    string    `json:"node_id"`
	AgentID   string    `json:"agent_id"`
	SessionID string    `json:"session_id"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
	BidNumber int       `json:"bid_number"`
	Demand    []float64 `json:"demand,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	PriceStep *int      `json:"price_step,omitempty"`
}

func NewBidFrame(e matcher.BidEvent) EventFrame {
	return EventFrame{
		Type:      "bid",
		NodeID:    e.NodeID,
		AgentID:   e.AgentID,
		SessionID: e.SessionID,
		Direction: string(e.Direction),
		Timestamp: e.Timestamp,
		BidNumber: e.Update.BidNumber,
		Demand:    e.Update.Bid.Demand(),
	}
}

func NewPriceFrame(e matcher.PriceEvent) EventFrame {
	value := e.Update.Price.Value
	step := e.Update.Price.Step()
	return EventFrame{
		Type:      "price",
		NodeID:    e.NodeID,
		AgentID:   e.AgentID,
		SessionID: e.SessionID,
		Direction: string(e.Direction),
		Timestamp: e.Timestamp,
		BidNumber: e.Update.BidNumber,
		Price:     &value,
		PriceStep: &step,
	}
}

// Frame is a raw measurement frame: COSE_Sign1 over CBOR, or bare CBOR.
type Frame []byte

// FrameBase64 is a Frame in standard base64, as printed by the CLI.
type FrameBase64 string

func (f Frame) EncodeBase64() FrameBase64 {
	return FrameBase64(base64.StdEncoding.EncodeToString(f))
}

func (f FrameBase64) Decode() (Frame, error) {
	return base64.StdEncoding.DecodeString(string(f))
}

func (f FrameBase64) String() string {
	return string(f)
}
