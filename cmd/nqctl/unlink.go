package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Hemn77/tee-mobicore-driver/internal/logging"
	"github.com/Hemn77/tee-mobicore-driver/shm"
)

func unlink(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := logging.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	if err := shm.RemoveEndpoint(cfg.Channel.ShmDir, cfg.Name); err != nil {
		return fmt.Errorf("failed to remove channel %q: %w", cfg.Name, err)
	}

	sugar.Infof("channel %q removed from %s", cfg.Name, cfg.Channel.ShmDir)
	return nil
}
