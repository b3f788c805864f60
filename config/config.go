// Package config loads the YAML description of a gridmatch process: the market
// basis, the node tree and the ambient settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/gridmatch/agent"
	"github.com/cloudx-io/gridmatch/core"
	"github.com/cloudx-io/gridmatch/feed"
	"github.com/cloudx-io/gridmatch/logger"
	"github.com/cloudx-io/gridmatch/matcher"
	"github.com/cloudx-io/gridmatch/session"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Log           LogConfig            `yaml:"log"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Feed          FeedConfig           `yaml:"feed"`
	Session       SessionConfig        `yaml:"session"`
	MarketBasis   core.MarketBasis     `yaml:"market_basis"`
	Auctioneer    AuctioneerConfig     `yaml:"auctioneer"`
	Concentrators []ConcentratorConfig `yaml:"concentrators"`
	Agents        []AgentConfig        `yaml:"agents"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type FeedConfig struct {
	HTTPAddress    string       `yaml:"http_address"`
	AllowedOrigins []string     `yaml:"allowed_origins"`
	Stream         StreamConfig `yaml:"stream"`
}

type StreamConfig struct {
	Network       string        `yaml:"network"`
	Address       string        `yaml:"address"`
	Port          uint32        `yaml:"port"`
	MaxWorkers    int           `yaml:"max_workers"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	RateLimit     float64       `yaml:"rate_limit"`
	Burst         int           `yaml:"burst"`
	PublicKeyFile string        `yaml:"public_key_file"`
}

type SessionConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

type AuctioneerConfig struct {
	ID              string        `yaml:"id"`
	ClusterID       string        `yaml:"cluster_id"`
	PriceUpdateRate time.Duration `yaml:"price_update_rate"`
	BidTimeout      time.Duration `yaml:"bid_timeout"`
}

type ConcentratorConfig struct {
	ID            string             `yaml:"id"`
	DesiredParent string             `yaml:"desired_parent"`
	BidUpdateRate time.Duration      `yaml:"bid_update_rate"`
	BidTimeout    time.Duration      `yaml:"bid_timeout"`
	PeakShaving   *PeakShavingConfig `yaml:"peak_shaving"`
}

type PeakShavingConfig struct {
	Floor   float64 `yaml:"floor"`
	Ceiling float64 `yaml:"ceiling"`
}

type AgentConfig struct {
	ID            string        `yaml:"id"`
	DesiredParent string        `yaml:"desired_parent"`
	Demand        []float64     `yaml:"demand"`
	BidUpdateRate time.Duration `yaml:"bid_update_rate"`
}

// Default returns the settings used for everything the file leaves out.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Feed: FeedConfig{
			HTTPAddress: ":8080",
			Stream: StreamConfig{
				Address:     ":9090",
				Port:        5000,
				MaxWorkers:  16,
				ReadTimeout: 30 * time.Second,
			},
		},
		Session: SessionConfig{
			ReconnectInterval: session.DefaultManagerConfig().ReconnectInterval,
		},
		Auctioneer: AuctioneerConfig{
			ID:              "auctioneer",
			PriceUpdateRate: time.Second,
		},
	}
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		Output:    c.Log.Output,
		MaxSizeMB: c.Log.MaxSizeMB,
		MaxAge:    c.Log.MaxAgeDays,
	}
}

func (c *Config) SessionManagerConfig() session.ManagerConfig {
	return session.ManagerConfig{ReconnectInterval: c.Session.ReconnectInterval}
}

func (c *Config) AuctioneerConfig() matcher.AuctioneerConfig {
	return matcher.AuctioneerConfig{
		ID:              c.Auctioneer.ID,
		ClusterID:       c.Auctioneer.ClusterID,
		MarketBasis:     c.MarketBasis,
		PriceUpdateRate: c.Auctioneer.PriceUpdateRate,
		BidTimeout:      c.Auctioneer.BidTimeout,
	}
}

func (cc ConcentratorConfig) MatcherConfig() matcher.ConcentratorConfig {
	return matcher.ConcentratorConfig{
		ID:              cc.ID,
		DesiredParentID: cc.DesiredParent,
		BidUpdateRate:   cc.BidUpdateRate,
		BidTimeout:      cc.BidTimeout,
	}
}

func (ac AgentConfig) AgentConfig() agent.Config {
	return agent.Config{
		ID:              ac.ID,
		DesiredParentID: ac.DesiredParent,
		Demand:          ac.Demand,
		BidUpdateRate:   ac.BidUpdateRate,
	}
}

// FeedServerConfig converts the feed section. The stream public key is loaded
// separately since it lives in its own file.
func (c *Config) FeedServerConfig() feed.Config {
	return feed.Config{
		HTTPAddress:    c.Feed.HTTPAddress,
		AllowedOrigins: c.Feed.AllowedOrigins,
		Stream: feed.StreamConfig{
			Network:     c.Feed.Stream.Network,
			Address:     c.Feed.Stream.Address,
			Port:        c.Feed.Stream.Port,
			MaxWorkers:  c.Feed.Stream.MaxWorkers,
			ReadTimeout: c.Feed.Stream.ReadTimeout,
			RateLimit:   c.Feed.Stream.RateLimit,
			Burst:       c.Feed.Stream.Burst,
		},
	}
}
