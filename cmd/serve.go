package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/perfwatch/config"
	"github.com/ftahirops/perfwatch/engine"
	"github.com/ftahirops/perfwatch/model"
	"github.com/ftahirops/perfwatch/server"
)

const pruneEvery = 10 * time.Minute

func newServeCmd(opts *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run headless with an HTTP API, websocket stream and alerts",
		Long: `Run the sampler and analyzer without a terminal UI.

Serves JSON endpoints, a websocket stream at /ws and Prometheus metrics at
/metrics. Analysis results are appended to the issue log and forwarded to
the configured webhook or command.

Examples:
  perfwatch serve
  perfwatch serve --listen 0.0.0.0:9273`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.load(cmd)
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, 127.0.0.1:9273)")
	return cmd
}

func alertConfig(cfg config.Config, logger *slog.Logger) engine.AlertConfig {
	sev, err := model.ParseSeverity(cfg.Alerts.MinSeverity)
	if err != nil {
		logger.Warn("invalid alert severity, using High", "value", cfg.Alerts.MinSeverity)
		sev = model.SeverityHigh
	}
	return engine.AlertConfig{
		Webhook:     cfg.Alerts.Webhook,
		Command:     cfg.Alerts.Command,
		MinSeverity: sev,
		PerMinute:   cfg.Alerts.PerMinute,
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := newLogger(os.Stderr, cfg.LogLevel)
	p := newPipeline(ctx, cfg, logger)

	srv := server.New(p.sampler, engine.NewMetricsStore(), server.WithLogger(logger.With("component", "server")))
	notifier := engine.NewNotifier(alertConfig(cfg, logger), logger.With("component", "alert"))
	defer notifier.Close()
	issueLog := engine.NewIssueLog(cfg.IssueLogPath())

	p.sampler.Start(ctx)
	defer p.sampler.Stop(stopTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Listen) })
	g.Go(func() error { return srv.Stream(gctx) })
	g.Go(func() error {
		return p.analyzer.Run(gctx, cfg.AnalyzeInterval, func(issues []model.Issue) {
			srv.Publish(issues)
			notifier.Notify(issues)
			if err := issueLog.Write(issues...); err != nil {
				logger.Warn("issue log write failed", "path", issueLog.Path(), "err", err)
			}
		})
	})

	g.Go(func() error {
		// Drop dedup keys that have not fired recently.
		t := time.NewTicker(pruneEvery)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := p.analyzer.Deduper().Prune(pruneEvery); n > 0 {
					logger.Debug("pruned issue cache", "removed", n)
				}
			}
		}
	})

	logger.Info("perfwatch serving", "listen", cfg.Listen, "interval", cfg.Interval, "issue_log", issueLog.Path())
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
