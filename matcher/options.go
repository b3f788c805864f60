package matcher

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures an Auctioneer or a Concentrator.
type Option func(*nodeOptions)

type nodeOptions struct {
	log         *logrus.Entry
	observer    Observer
	clock       func() time.Time
	transformer Transformer
}

func newNodeOptions(opts []Option) nodeOptions {
	o := nodeOptions{
		observer:    nopObserver{},
		clock:       time.Now,
		transformer: Identity{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The node id is added as a field.
func WithLogger(log *logrus.Entry) Option {
	return func(o *nodeOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithObserver sets the observer for bid and price events.
func WithObserver(observer Observer) Option {
	return func(o *nodeOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithClock replaces time.Now, for bid expiry and event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *nodeOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTransformer sets the Transformer of a Concentrator. The Auctioneer ignores it.
func WithTransformer(t Transformer) Option {
	return func(o *nodeOptions) {
		if t != nil {
			o.transformer = t
		}
	}
}
