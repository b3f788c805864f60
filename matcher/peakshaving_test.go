package matcher

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/gridmatch/core"
	"github.com/cloudx-io/gridmatch/logger"
)

func TestNewPeakShaving_RejectsBadBounds(t *testing.T) {
	tests := []struct {
		name           string
		floor, ceiling float64
	}{
		{name: "equal", floor: 5, ceiling: 5},
		{name: "inverted", floor: 10, ceiling: -10},
		{name: "nan", floor: math.NaN(), ceiling: 10},
		{name: "infinite", floor: -10, ceiling: math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPeakShaving(tt.floor, tt.ceiling)
			check.True(t, errors.Is(err, ErrInvalidBounds))
		})
	}

	_, err := NewPeakShavingConcentrator(ConcentratorConfig{ID: "c", DesiredParentID: "root"}, 14, 2)
	check.True(t, errors.Is(err, ErrInvalidBounds))
}

func TestPeakShaving_ReferenceRoundTrip(t *testing.T) {
	mb := eightStepBasis(t)
	ps, err := NewPeakShaving(2, 14)
	assert.NoError(t, err)
	check.True(t, math.IsNaN(ps.UncontrolledFlow()))

	original := mustBid(t, mb, 15, 13, 11, 9, 7, 5, 3, 1)
	transformed := ps.TransformBid(original)
	check.Equal(t, []float64{13, 13, 11, 9, 7, 5, 3, 3}, transformed.Demand())

	sent := SentBidInformation{Original: original, Transformed: transformed, BidNumber: 1}

	// The parent sees 13 at step 0 and 1; both give the original curve 13 at price 1.
	for _, step := range []int{0, 1} {
		price := ps.TransformPrice(core.NewPriceFromStep(mb, step), sent)
		check.Equal(t, 1.0, price.Value)
		status := ps.Status()
		check.Equal(t, 13.0, status.AllocatedFlow)
		check.Equal(t, 2.0, original.MaximumDemand()-status.AllocatedFlow)
	}

	// Unchanged steps map onto themselves.
	check.Equal(t, 4.0, ps.TransformPrice(core.NewPriceFromStep(mb, 4), sent).Value)
	check.Equal(t, 7.0, ps.Status().AllocatedFlow)

	// The floor raised the last step: walk down to where the original has 3.
	check.Equal(t, 6.0, ps.TransformPrice(core.NewPriceFromStep(mb, 7), sent).Value)
	check.Equal(t, 3.0, ps.Status().AllocatedFlow)
}

func TestPeakShaving_MeasuredFlowScenario(t *testing.T) {
	mb := eightStepBasis(t)
	ps, err := NewPeakShaving(2, 14)
	assert.NoError(t, err)

	original := mustBid(t, mb, 15, 13, 11, 9, 7, 5, 3, 1)
	transformed := ps.TransformBid(original)
	ps.TransformPrice(core.NewPriceFromStep(mb, 0), SentBidInformation{Original: original, Transformed: transformed, BidNumber: 1})
	check.Equal(t, 13.0, ps.Status().AllocatedFlow)

	ps.SetMeasuredFlow(16)
	check.Equal(t, 3.0, ps.UncontrolledFlow())

	transformed = ps.TransformBid(original)
	check.Equal(t, []float64{11, 11, 11, 9, 7, 5, 3, 1}, transformed.Demand())

	price := ps.TransformPrice(core.NewPriceFromStep(mb, 0), SentBidInformation{Original: original, Transformed: transformed, BidNumber: 2})
	check.Equal(t, 2.0, price.Value)

	status := ps.Status()
	check.Equal(t, 11.0, status.AllocatedFlow)
	check.Equal(t, 5.0, status.UncontrolledFlow)
	check.Equal(t, 16.0, status.MeasuredFlow)
	check.Equal(t, 2.0, status.Floor)
	check.Equal(t, 14.0, status.Ceiling)
}

func TestPeakShaving_UnknownMeasurementClipsUnshifted(t *testing.T) {
	mb := eightStepBasis(t)
	ps, err := NewPeakShaving(-5, 5)
	assert.NoError(t, err)

	ps.SetMeasuredFlow(math.NaN())
	bid := mustBid(t, mb, 10, 8, 4, 0, -2, -6, -8, -9)
	check.Equal(t, []float64{4, 4, 4, 0, -2, -2, -2, -2}, ps.TransformBid(bid).Demand())
}

func TestPeakShavingConcentrator_EndToEnd(t *testing.T) {
	root := newTestAuctioneer(t, 0)
	feeder, err := NewPeakShavingConcentrator(ConcentratorConfig{
		ID:              "feeder",
		DesiredParentID: "root",
	}, 2, 14, WithLogger(logger.Discard()))
	assert.NoError(t, err)

	mgr := newTestManager()
	assert.NoError(t, mgr.AddMatcher(root))
	assert.NoError(t, mgr.AddMatcher(feeder))
	_, err = mgr.AddAgent(feeder)
	assert.NoError(t, err)

	// Plenty of supply at the root keeps the parent price at step 0.
	supply := &biddingAgent{id: "supply", parent: "root", demand: []float64{-100, -100, -100, -100, -100, -100, -100, -100}}
	_, err = mgr.AddAgent(supply)
	assert.NoError(t, err)
	load := &biddingAgent{id: "load", parent: "feeder", demand: []float64{15, 13, 11, 9, 7, 5, 3, 1}}
	_, err = mgr.AddAgent(load)
	assert.NoError(t, err)

	check.True(t, waitFor(t, load.hasPrice(1)))
	check.True(t, waitFor(t, func() bool { return feeder.Status().AllocatedFlow == 13 }))

	sent, ok := feeder.LastSentBid()
	assert.True(t, ok)
	check.Equal(t, []float64{13, 13, 11, 9, 7, 5, 3, 3}, sent.Transformed.Demand())

	feeder.SetMeasuredFlow(16)
	check.Equal(t, 3.0, feeder.UncontrolledFlow())
	feeder.SendBid()

	check.True(t, waitFor(t, load.hasPrice(2)))
	check.True(t, waitFor(t, func() bool { return feeder.UncontrolledFlow() == 5 }))
	check.Equal(t, 11.0, feeder.Status().AllocatedFlow)
	check.True(t, feeder.PeakShaving() != nil)
}

func TestPeakShavingConcentrator_ForwardsPriceUnchangedWithoutSentBid(t *testing.T) {
	root := newTestAuctioneer(t, time.Hour)
	feeder, err := NewPeakShavingConcentrator(ConcentratorConfig{
		ID:              "feeder",
		DesiredParentID: "root",
	}, 2, 14, WithLogger(logger.Discard()))
	assert.NoError(t, err)

	mgr := newTestManager()
	assert.NoError(t, mgr.AddMatcher(root))
	assert.NoError(t, mgr.AddMatcher(feeder))
	_, err = mgr.AddAgent(feeder)
	assert.NoError(t, err)
	load := &biddingAgent{id: "load", parent: "feeder"}
	_, err = mgr.AddAgent(load)
	assert.NoError(t, err)
	assert.True(t, load.connected())

	// Connected upstream, but no bid has gone out yet.
	feeder.mu.Lock()
	feeder.sent = nil
	feeder.mu.Unlock()
	_, ok := feeder.LastSentBid()
	assert.True(t, !ok)

	price := core.NewPriceFromStep(eightStepBasis(t), 5)
	feeder.HandlePriceUpdate(core.PriceUpdate{Price: price, BidNumber: 0})

	check.True(t, waitFor(t, load.hasPrice(5)))
	check.True(t, math.IsNaN(feeder.Status().AllocatedFlow))
	check.True(t, math.IsNaN(feeder.UncontrolledFlow()))
}
