package metrics

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cloudx-io/gridmatch/core"
	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/matcher"
)

func TestObserver_CountsEvents(t *testing.T) {
	mb, err := core.NewMarketBasis("electricity", "EUR", 8, 0, 7)
	assert.NoError(t, err)
	o := New()

	bid, err := core.NewBid(mb, []float64{9, 8, 7, 6, 5, 4, 3, 2})
	assert.NoError(t, err)
	o.ObserveBid(matcher.BidEvent{NodeID: "root", AgentID: "a", Direction: matcher.Incoming, Timestamp: time.Now(), Update: core.BidUpdate{Bid: bid, BidNumber: 1}})
	o.ObserveBid(matcher.BidEvent{NodeID: "root", AgentID: "a", Direction: matcher.Incoming, Timestamp: time.Now(), Update: core.BidUpdate{Bid: bid, BidNumber: 2}})
	o.ObservePrice(matcher.PriceEvent{NodeID: "root", AgentID: "a", Direction: matcher.Outgoing, Update: core.PriceUpdate{Price: core.NewPriceFromStep(mb, 3), BidNumber: 2}})

	check.Equal(t, 2.0, testutil.ToFloat64(o.bids.WithLabelValues("root", "incoming")))
	check.Equal(t, 1.0, testutil.ToFloat64(o.prices.WithLabelValues("root", "outgoing")))
	check.Equal(t, 3.0, testutil.ToFloat64(o.price.WithLabelValues("root")))
	check.Equal(t, 3.0, testutil.ToFloat64(o.priceStep.WithLabelValues("root")))
	check.Equal(t, 9.0, testutil.ToFloat64(o.maxDemand.WithLabelValues("root", "a")))
}

func TestObserver_TracksPeakShavingAndServes(t *testing.T) {
	o := New()
	c, err := matcher.NewPeakShavingConcentrator(matcher.ConcentratorConfig{ID: "feeder", DesiredParentID: "root"}, -10, 10, matcher.WithLogger(logger.Discard()))
	assert.NoError(t, err)
	assert.NoError(t, o.TrackPeakShaving("feeder", c))
	check.Error(t, o.TrackPeakShaving("feeder", c))

	c.SetMeasuredFlow(4)

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	check.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	check.True(t, strings.Contains(body, `gridmatch_peak_shaving_flow{kind="measured",node="feeder"} 4`))
	check.True(t, strings.Contains(body, `gridmatch_peak_shaving_flow{kind="ceiling",node="feeder"} 10`))
	check.True(t, strings.Contains(body, "go_goroutines"))

	check.True(t, math.IsNaN(c.UncontrolledFlow()))
}
