package matcher

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cloudx-io/gridmatch/core"
)

// ErrInvalidBounds is returned for non-finite bounds or a ceiling not above the floor.
var ErrInvalidBounds = errors.New("invalid peak shaving bounds")

// PeakShavingStatus is a snapshot of a PeakShaving transformer.
type PeakShavingStatus struct {
	Floor            float64
	Ceiling          float64
	MeasuredFlow     float64
	AllocatedFlow    float64
	UncontrolledFlow float64
}

// PeakShaving keeps the flow through a node within [floor, ceiling].
//
// Bids are clipped after adding the flow the market does not control (measured
// minus allocated), so the limits hold for the total flow. Prices coming back
// are moved to the step that gives the original aggregate the allocation the
// clipped curve promised.
type PeakShaving struct {
	floor   float64
	ceiling float64

	mu        sync.Mutex
	measured  float64
	allocated float64
}

// NewPeakShaving fails with ErrInvalidBounds unless floor < ceiling.
func NewPeakShaving(floor, ceiling float64) (*PeakShaving, error) {
	if math.IsNaN(floor) || math.IsNaN(ceiling) || math.IsInf(floor, 0) || math.IsInf(ceiling, 0) {
		return nil, fmt.Errorf("%w: bounds must be finite", ErrInvalidBounds)
	}
	if ceiling <= floor {
		return nil, fmt.Errorf("%w: ceiling %g must exceed floor %g", ErrInvalidBounds, ceiling, floor)
	}
	return &PeakShaving{
		floor:     floor,
		ceiling:   ceiling,
		measured:  math.NaN(),
		allocated: math.NaN(),
	}, nil
}

// Floor is the lowest flow the node may be driven to.
func (p *PeakShaving) Floor() float64 { return p.floor }

// Ceiling is the highest flow the node may be driven to.
func (p *PeakShaving) Ceiling() float64 { return p.ceiling }

// SetMeasuredFlow records the latest flow measurement. NaN means unknown.
func (p *PeakShaving) SetMeasuredFlow(flow float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measured = flow
}

// UncontrolledFlow is NaN until both a measurement and an allocation are known.
func (p *PeakShaving) UncontrolledFlow() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return core.UncontrolledFlow(p.measured, p.allocated)
}

// Status returns the bounds and the current flows. Unknown flows are NaN.
func (p *PeakShaving) Status() PeakShavingStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeakShavingStatus{
		Floor:            p.floor,
		Ceiling:          p.ceiling,
		MeasuredFlow:     p.measured,
		AllocatedFlow:    p.allocated,
		UncontrolledFlow: core.UncontrolledFlow(p.measured, p.allocated),
	}
}

// TransformBid shifts the aggregate by the uncontrolled flow, clips it to
// [floor, ceiling] and shifts it back. Without a known uncontrolled flow the
// aggregate is clipped as is.
func (p *PeakShaving) TransformBid(aggregated core.Bid) core.Bid {
	uncontrolled := p.UncontrolledFlow()
	if math.IsNaN(uncontrolled) {
		return core.ClipBid(aggregated, p.floor, p.ceiling)
	}
	clipped := core.ClipBid(aggregated.Shift(uncontrolled), p.floor, p.ceiling)
	return clipped.Shift(-uncontrolled)
}

// TransformPrice moves the parent's price to the step where the original aggregate
// gets the demand the transformed bid had at that price, and records that demand
// as the allocated flow.
func (p *PeakShaving) TransformPrice(price core.Price, sent SentBidInformation) core.Price {
	step := core.MapPriceStep(price.Step(), sent.Original, sent.Transformed)
	allocated := sent.Original.DemandAt(step)

	p.mu.Lock()
	p.allocated = allocated
	p.mu.Unlock()

	return core.NewPriceFromStep(price.Basis, step)
}

// PeakShavingConcentrator is a Concentrator with a PeakShaving transformer.
type PeakShavingConcentrator struct {
	*Concentrator
	shaving *PeakShaving
}

// NewPeakShavingConcentrator rejects bounds with ceiling <= floor.
func NewPeakShavingConcentrator(cfg ConcentratorConfig, floor, ceiling float64, opts ...Option) (*PeakShavingConcentrator, error) {
	shaving, err := NewPeakShaving(floor, ceiling)
	if err != nil {
		return nil, fmt.Errorf("concentrator %s: %w", cfg.ID, err)
	}
	c, err := NewConcentrator(cfg, append(opts, WithTransformer(shaving))...)
	if err != nil {
		return nil, err
	}
	return &PeakShavingConcentrator{Concentrator: c, shaving: shaving}, nil
}

func (c *PeakShavingConcentrator) SetMeasuredFlow(flow float64) { c.shaving.SetMeasuredFlow(flow) }

func (c *PeakShavingConcentrator) UncontrolledFlow() float64 { return c.shaving.UncontrolledFlow() }

func (c *PeakShavingConcentrator) Status() PeakShavingStatus { return c.shaving.Status() }

func (c *PeakShavingConcentrator) PeakShaving() *PeakShaving { return c.shaving }
