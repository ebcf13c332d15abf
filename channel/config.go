package channel

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Hemn77/tee-mobicore-driver/nq"
)

// FullPolicy decides what Send does when the outbound queue is full.
type FullPolicy string

const (
	// PolicyRetry waits for the peer to drain until the context is done.
	PolicyRetry FullPolicy = "retry"
	// PolicyDrop discards the notification and returns ErrDropped.
	PolicyDrop FullPolicy = "drop"
	// PolicyFail returns nq.ErrQueueFull to the caller.
	PolicyFail FullPolicy = "fail"
)

// Default values for Config
const (
	DefaultCapacity    uint32 = 16
	DefaultFullPolicy         = PolicyRetry
	DefaultWaitTimeout        = 100 * time.Millisecond
	DefaultShmDir             = "/dev/shm"
)

// Config holds the channel configuration.
type Config struct {
	Capacity    uint32        `env:"NQ_CAPACITY"     envDefault:"16"`       // Records per direction, power of two in [1, 64]
	FullPolicy  FullPolicy    `env:"NQ_FULL_POLICY"  envDefault:"retry"`    // What Send does on a full queue
	WaitTimeout time.Duration `env:"NQ_WAIT_TIMEOUT" envDefault:"100ms"`    // Longest single sleep on the wake signal
	ShmDir      string        `env:"NQ_SHM_DIR"      envDefault:"/dev/shm"` // Directory holding named regions and events
}

// LoadConfig loads the channel configuration from environment variables.
func LoadConfig() (Config, error) {
	cfg, err := ParseEnv()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ParseEnv reads the environment variables without validating the result,
// so callers can apply overrides first.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse channel config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with zero fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.FullPolicy == "" {
		c.FullPolicy = DefaultFullPolicy
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.ShmDir == "" {
		c.ShmDir = DefaultShmDir
	}
	return c
}

// Validate checks the capacity and the full-queue policy.
func (c Config) Validate() error {
	if !nq.ValidCapacity(c.Capacity) {
		return fmt.Errorf("%w: %d", nq.ErrInvalidCapacity, c.Capacity)
	}
	switch c.FullPolicy {
	case PolicyRetry, PolicyDrop, PolicyFail:
	default:
		return fmt.Errorf("unknown full policy %q", c.FullPolicy)
	}
	return nil
}
