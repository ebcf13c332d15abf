package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Hemn77/tee-mobicore-driver/channel"
	"github.com/Hemn77/tee-mobicore-driver/nq"
	"github.com/Hemn77/tee-mobicore-driver/shm"
)

func inspect(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	region, err := shm.Open(cfg.Channel.ShmDir, cfg.Name, 0)
	if err != nil {
		return fmt.Errorf("failed to open channel %q: %w", cfg.Name, err)
	}
	defer region.Close()

	i2r, r2i, err := channel.Queues(region.Bytes())
	if err != nil {
		return fmt.Errorf("failed to read channel %q: %w", cfg.Name, err)
	}

	w := c.App.Writer
	for i, q := range []*nq.Queue{i2r, r2i} {
		s := q.State()
		fmt.Fprintf(w, "%s write=%d read=%d capacity=%d used=%d\n",
			channel.Direction(i), s.WriteCount, s.ReadCount, s.Capacity, s.Used)
	}
	return nil
}
