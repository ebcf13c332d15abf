package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Hemn77/tee-mobicore-driver/channel"
	"github.com/Hemn77/tee-mobicore-driver/internal/logging"
	"github.com/Hemn77/tee-mobicore-driver/shm"
)

func create(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := logging.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	size, err := channel.RegionSize(cfg.Channel.Capacity)
	if err != nil {
		return err
	}

	ep, err := shm.CreateEndpoint(cfg.Channel.ShmDir, cfg.Name, size)
	if err != nil {
		return fmt.Errorf("failed to create channel %q: %w", cfg.Name, err)
	}
	defer ep.Close()

	if _, _, err := channel.Init(ep.Region.Bytes(), cfg.Channel.Capacity); err != nil {
		_ = shm.RemoveEndpoint(cfg.Channel.ShmDir, cfg.Name)
		return fmt.Errorf("failed to initialise channel %q: %w", cfg.Name, err)
	}

	sugar.Infow("channel created",
		"name", cfg.Name,
		"dir", cfg.Channel.ShmDir,
		"capacity", cfg.Channel.Capacity,
		"size", size,
	)
	return nil
}
