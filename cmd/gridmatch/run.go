package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/cloudx-io/gridmatch/agent"
	"github.com/cloudx-io/gridmatch/config"
	"github.com/cloudx-io/gridmatch/feed"
	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/marketapi"
	"github.com/cloudx-io/gridmatch/matcher"
	"github.com/cloudx-io/gridmatch/metrics"
	"github.com/cloudx-io/gridmatch/session"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Run the node tree described by the configuration",
	Flags: []cli.Flag{configFlag},
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		return run(ctx.Context, cfg)
	},
}

type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// process is a fully wired node tree. Components start in order and stop in reverse.
type process struct {
	log        *logrus.Entry
	manager    *session.Manager
	feed       *feed.Server
	components []lifecycle
}

func build(cfg *config.Config, log *logger.Log) (*process, error) {
	var (
		observers matcher.MultiObserver
		feedOpts  []feed.Option
		collector *metrics.Observer
	)

	if cfg.Metrics.Enabled {
		collector = metrics.New()
		observers = append(observers, collector)
		feedOpts = append(feedOpts, feed.WithMetricsHandler(collector.Handler()))
	}

	if path := cfg.Feed.Stream.PublicKeyFile; path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stream public key: %w", err)
		}
		pub, err := marketapi.ParsePublicKeyPEM(raw)
		if err != nil {
			return nil, err
		}
		feedOpts = append(feedOpts, feed.WithVerifyKey(pub))
	}

	// filled below, before the server starts
	shaving := make(map[string]*matcher.PeakShavingConcentrator)
	feedOpts = append(feedOpts, feed.WithLogger(log.WithComponent("feed")))
	server := feed.NewServer(cfg.FeedServerConfig(), shaving, feedOpts...)
	observers = append(observers, server.Hub())

	nodeOpts := func(component string) []matcher.Option {
		return []matcher.Option{
			matcher.WithLogger(log.WithComponent(component)),
			matcher.WithObserver(observers),
		}
	}

	p := &process{
		log:     log.WithComponent("gridmatch"),
		manager: session.NewManager(cfg.SessionManagerConfig(), log.WithComponent("session")),
		feed:    server,
	}

	root, err := matcher.NewAuctioneer(cfg.AuctioneerConfig(), nodeOpts("auctioneer")...)
	if err != nil {
		return nil, err
	}
	if err := p.manager.AddMatcher(root); err != nil {
		return nil, err
	}
	p.components = append(p.components, root)

	for _, cc := range cfg.Concentrators {
		var node interface {
			session.MatcherEndpoint
			session.AgentEndpoint
			lifecycle
		}
		if ps := cc.PeakShaving; ps != nil {
			c, err := matcher.NewPeakShavingConcentrator(cc.MatcherConfig(), ps.Floor, ps.Ceiling, nodeOpts("peak-shaving")...)
			if err != nil {
				return nil, err
			}
			shaving[cc.ID] = c
			node = c
		} else {
			c, err := matcher.NewConcentrator(cc.MatcherConfig(), nodeOpts("concentrator")...)
			if err != nil {
				return nil, err
			}
			node = c
		}
		if err := p.manager.AddMatcher(node); err != nil {
			return nil, err
		}
		if _, err := p.manager.AddAgent(node); err != nil {
			return nil, err
		}
		p.components = append(p.components, node)
	}

	for _, ac := range cfg.Agents {
		a, err := agent.New(ac.AgentConfig(), log.WithComponent("agent"))
		if err != nil {
			return nil, err
		}
		if _, err := p.manager.AddAgent(a); err != nil {
			return nil, err
		}
		p.components = append(p.components, a)
	}

	if collector != nil {
		for id, c := range shaving {
			if err := collector.TrackPeakShaving(id, c); err != nil {
				return nil, err
			}
		}
	}

	p.components = append(p.components, p.manager, server)
	return p, nil
}

func (p *process) start(ctx context.Context) error {
	for i, c := range p.components {
		if err := c.Start(ctx); err != nil {
			p.stopFirst(i)
			return err
		}
	}
	n := p.manager.Reconcile()
	p.log.WithField("sessions", n).Info("node tree connected")
	return nil
}

// stopFirst stops the first n components in reverse order.
func (p *process) stopFirst(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := n - 1; i >= 0; i-- {
		if err := p.components[i].Stop(ctx); err != nil {
			p.log.WithError(err).Warn("component did not stop cleanly")
		}
	}
}

func run(parent context.Context, cfg *config.Config) error {
	log := logger.Default()
	if err := log.Configure(cfg.LoggerOptions()); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	p, err := build(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.start(ctx); err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{
		"market_basis": cfg.MarketBasis.String(),
		"nodes":        len(p.components) - 2,
	}).Info("gridmatch running")

	<-ctx.Done()
	p.log.Info("shutting down")
	p.stopFirst(len(p.components))
	return nil
}
