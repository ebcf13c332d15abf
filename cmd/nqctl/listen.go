package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Hemn77/tee-mobicore-driver/channel"
	"github.com/Hemn77/tee-mobicore-driver/internal/logging"
	"github.com/Hemn77/tee-mobicore-driver/internal/metrics"
	"github.com/Hemn77/tee-mobicore-driver/nq"
	"github.com/Hemn77/tee-mobicore-driver/session"
)

const metricsShutdownTimeout = 5 * time.Second

func listen(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := logging.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"name", cfg.Name,
		"dir", cfg.Channel.ShmDir,
		"role", cfg.Role,
		"connectTimeout", cfg.ConnectTimeout,
		"fullPolicy", cfg.Channel.FullPolicy,
		"waitTimeout", cfg.Channel.WaitTimeout,
		"sessions", cfg.Sessions,
		"rejectUnknown", cfg.RejectUnknown,
		"echo", cfg.Echo,
		"senderBacklog", cfg.SenderBacklog,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
	)

	// Initialize Prometheus metrics with labels for multi-channel filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Channel: cfg.Name,
		Role:    cfg.Role.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep, ch, err := openChannel(ctx, cfg, channel.WithMetrics(m))
	if err != nil {
		return err
	}
	defer ep.Close()

	sender := session.NewSender(ch, cfg.SenderBacklog, sugar.Named("sender"), m)
	d := session.NewDispatcher(ch, sender,
		session.WithLogger(sugar.Named("dispatcher")),
		session.WithMetrics(m),
		session.WithRejectUnknown(cfg.RejectUnknown),
		session.WithControlHandler(func(n nq.Notification) {
			sugar.Infow("control notification", "payload", n.Payload)
		}),
	)

	sessions := make([]*session.Session, 0, len(cfg.Sessions))
	for _, sid := range cfg.Sessions {
		s, err := d.Open(sid)
		if err != nil {
			return fmt.Errorf("failed to open session %d: %w", sid, err)
		}
		sessions = append(sessions, s)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sender.Run(gctx)
	})
	g.Go(func() error {
		return d.Run(gctx)
	})
	for _, s := range sessions {
		g.Go(func() error {
			return watchSession(gctx, s, cfg.Echo, sugar)
		})
	}

	if cfg.MetricsPort != 0 {
		metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry)
		metricsErrCh := metricsServer.Start()
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
		g.Go(func() error {
			select {
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
				defer cancel()
				return metricsServer.Shutdown(shutdownCtx)
			case err, ok := <-metricsErrCh:
				if !ok {
					return nil
				}
				return err
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		return nil
	}
	if err != nil {
		sugar.Errorw("listen failed", "error", err)
		return err
	}

	sugar.Info("shutting down")
	return nil
}

// watchSession logs every event of s until the session terminates or ctx is
// done. With echo set, every data signal is answered with one.
func watchSession(ctx context.Context, s *session.Session, echo bool, sugar *zap.SugaredLogger) error {
	for {
		ev, err := s.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
				return nil
			}
			return err
		}

		sugar.Infow("session event",
			"session", ev.Session,
			"kind", ev.Kind,
			"code", ev.Code,
		)
		if ev.Terminal() {
			return nil
		}
		if echo {
			if err := s.Notify(ctx); err != nil && ctx.Err() == nil {
				sugar.Warnw("failed to echo signal", "session", ev.Session, "error", err)
			}
		}
	}
}
