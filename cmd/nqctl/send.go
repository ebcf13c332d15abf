package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Hemn77/tee-mobicore-driver/internal/logging"
)

// send attaches as cfg.Role and produces one notification. It must not run
// while another process produces on the same side.
func send(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := logging.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep, ch, err := openChannel(ctx, cfg)
	if err != nil {
		return err
	}
	defer ep.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := ch.Send(ctx, cfg.Session, cfg.Payload); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	sugar.Infow("notification sent",
		"name", cfg.Name,
		"role", cfg.Role,
		"direction", cfg.Role.Outbound(),
		"session", cfg.Session,
		"payload", cfg.Payload,
		"depth", ch.Outbound().Len(),
	)
	return nil
}
