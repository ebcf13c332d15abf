package main

import (
	"fmt"
	"math"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Hemn77/tee-mobicore-driver/channel"
	"github.com/Hemn77/tee-mobicore-driver/nq"
)

// Config holds all configuration for an nqctl command
type Config struct {
	// Application settings
	Verbose bool

	// Channel settings
	Name           string
	Role           channel.Role
	Channel        channel.Config
	ConnectTimeout time.Duration

	// Send settings
	Session nq.SessionID
	Payload nq.Payload
	Timeout time.Duration

	// Listen settings
	Sessions      []nq.SessionID
	RejectUnknown bool
	Echo          bool
	SenderBacklog int

	// Metrics settings
	MetricsHost string
	MetricsPort int
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	chCfg, err := buildChannelConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel config: %w", err)
	}

	cfg := &Config{
		Verbose:        c.Bool("verbose"),
		Name:           c.String("name"),
		Role:           channel.Initiator,
		Channel:        chCfg,
		ConnectTimeout: c.Duration("connect-timeout"),
	}
	if r := c.String("role"); r != "" {
		if cfg.Role, err = channel.ParseRole(r); err != nil {
			return nil, err
		}
	}

	switch c.Command.Name {
	case "send":
		sid := c.Int64("session")
		if sid < 0 || sid > math.MaxUint32 {
			return nil, fmt.Errorf("session must be between 0 and %d, got %d", uint32(math.MaxUint32), sid)
		}
		payload := c.Int64("payload")
		if payload < math.MinInt32 || payload > math.MaxInt32 {
			return nil, fmt.Errorf("payload must be between %d and %d, got %d", math.MinInt32, math.MaxInt32, payload)
		}
		cfg.Session = nq.SessionID(sid)
		cfg.Payload = nq.Payload(payload)
		cfg.Timeout = c.Duration("timeout")
	case "listen":
		for _, sid := range c.IntSlice("session") {
			if sid <= int(nq.SessionMCP) || int64(sid) >= int64(nq.SessionInvalid) {
				return nil, fmt.Errorf("session must be between 1 and %d, got %d", uint32(nq.SessionInvalid)-1, sid)
			}
			cfg.Sessions = append(cfg.Sessions, nq.SessionID(sid))
		}
		cfg.RejectUnknown = c.Bool("reject-unknown")
		cfg.Echo = c.Bool("echo")
		cfg.SenderBacklog = c.Int("sender-backlog")
		cfg.MetricsHost = c.String("metrics-host")
		cfg.MetricsPort = c.Int("metrics-port")
	}
	return cfg, nil
}

// buildChannelConfig loads the channel configuration from the environment
// and applies the flags that were set explicitly. Validation runs once, after
// the overrides.
func buildChannelConfig(c *cli.Context) (channel.Config, error) {
	cfg, err := channel.ParseEnv()
	if err != nil {
		return channel.Config{}, err
	}
	if c.IsSet("dir") {
		cfg.ShmDir = c.String("dir")
	}
	if c.IsSet("capacity") {
		capacity := c.Uint("capacity")
		if capacity > math.MaxUint32 {
			return channel.Config{}, fmt.Errorf("%w: %d", nq.ErrInvalidCapacity, capacity)
		}
		cfg.Capacity = uint32(capacity)
	}
	if c.IsSet("full-policy") {
		cfg.FullPolicy = channel.FullPolicy(c.String("full-policy"))
	}
	if c.IsSet("wait-timeout") {
		cfg.WaitTimeout = c.Duration("wait-timeout")
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}
