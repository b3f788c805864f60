// Package metrics exports market activity to Prometheus.
//
// Registers:
//
//	gridmatch_bids_total{node,direction}
//	gridmatch_prices_total{node,direction}
//	gridmatch_price{node}
//	gridmatch_price_step{node}
//	gridmatch_bid_demand_max{node,agent}
//	gridmatch_peak_shaving_flow{node,kind}
//	go_* and process_* system metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudx-io/gridmatch/matcher"
)

const namespace = "gridmatch"

// Observer is a matcher.Observer that records events as Prometheus metrics.
type Observer struct {
	registry *prometheus.Registry

	bids      *prometheus.CounterVec
	prices    *prometheus.CounterVec
	price     *prometheus.GaugeVec
	priceStep *prometheus.GaugeVec
	maxDemand *prometheus.GaugeVec
}

// New creates an Observer with its own registry. Process and Go runtime
// collectors are registered too.
func New() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Number of bids seen by a node",
		}, []string{"node", "direction"}),
		prices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prices_total",
			Help:      "Number of prices seen by a node",
		}, []string{"node", "direction"}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price",
			Help:      "Last price a node received or published",
		}, []string{"node"}),
		priceStep: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_step",
			Help:      "Price step of the last price a node received or published",
		}, []string{"node"}),
		maxDemand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bid_demand_max",
			Help:      "Demand at the lowest price of the last incoming bid per agent",
		}, []string{"node", "agent"}),
	}

	o.registry.MustRegister(
		o.bids,
		o.prices,
		o.price,
		o.priceStep,
		o.maxDemand,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

func (o *Observer) ObserveBid(e matcher.BidEvent) {
	o.bids.WithLabelValues(e.NodeID, string(e.Direction)).Inc()
	if e.Direction == matcher.Incoming {
		o.maxDemand.WithLabelValues(e.NodeID, e.AgentID).Set(e.Update.Bid.MaximumDemand())
	}
}

func (o *Observer) ObservePrice(e matcher.PriceEvent) {
	o.prices.WithLabelValues(e.NodeID, string(e.Direction)).Inc()
	o.price.WithLabelValues(e.NodeID).Set(e.Update.Price.Value)
	o.priceStep.WithLabelValues(e.NodeID).Set(float64(e.Update.Price.Step()))
}

// TrackPeakShaving exports the flows of a peak shaving node. Unknown flows read as NaN.
func (o *Observer) TrackPeakShaving(nodeID string, c *matcher.PeakShavingConcentrator) error {
	flows := map[string]func(matcher.PeakShavingStatus) float64{
		"measured":     func(s matcher.PeakShavingStatus) float64 { return s.MeasuredFlow },
		"allocated":    func(s matcher.PeakShavingStatus) float64 { return s.AllocatedFlow },
		"uncontrolled": func(s matcher.PeakShavingStatus) float64 { return s.UncontrolledFlow },
		"floor":        func(s matcher.PeakShavingStatus) float64 { return s.Floor },
		"ceiling":      func(s matcher.PeakShavingStatus) float64 { return s.Ceiling },
	}
	for kind, read := range flows {
		read := read
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "peak_shaving_flow",
			Help:        "Flows and bounds of a peak shaving node",
			ConstLabels: prometheus.Labels{"node": nodeID, "kind": kind},
		}, func() float64 { return read(c.Status()) })
		if err := o.registry.Register(gauge); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the registry backing the Observer.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
