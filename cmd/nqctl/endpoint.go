package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Hemn77/tee-mobicore-driver/channel"
	"github.com/Hemn77/tee-mobicore-driver/nq"
	"github.com/Hemn77/tee-mobicore-driver/shm"
)

const connectRetryInterval = 100 * time.Millisecond

// openChannel maps an existing channel and attaches the configured side to
// it, retrying for cfg.ConnectTimeout while the creator has not finished
// making it. The endpoint must be closed by the caller.
func openChannel(ctx context.Context, cfg *Config, opts ...channel.Option) (*shm.Endpoint, *channel.Channel, error) {
	deadline := time.Now().Add(cfg.ConnectTimeout)
	for {
		ep, ch, err := tryOpenChannel(cfg, opts)
		if err == nil {
			return ep, ch, nil
		}
		if !retryable(err) || time.Now().Add(connectRetryInterval).After(deadline) {
			return nil, nil, fmt.Errorf("failed to open channel %q: %w", cfg.Name, err)
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(connectRetryInterval):
		}
	}
}

func tryOpenChannel(cfg *Config, opts []channel.Option) (*shm.Endpoint, *channel.Channel, error) {
	ep, err := shm.OpenEndpoint(cfg.Channel.ShmDir, cfg.Name, 0)
	if err != nil {
		return nil, nil, err
	}

	out := ep.Events[cfg.Role.Outbound()]
	in := ep.Events[cfg.Role.Inbound()]
	ch, err := channel.Attach(ep.Region.Bytes(), cfg.Role, cfg.Channel, out, in, opts...)
	if err != nil {
		_ = ep.Close()
		return nil, nil, err
	}
	return ep, ch, nil
}

// retryable reports whether err means the creator is still setting the
// channel up.
func retryable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, shm.ErrTooSmall) ||
		errors.Is(err, nq.ErrInvalidCapacity)
}
