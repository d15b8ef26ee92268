package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ftahirops/perfwatch/collector"
	"github.com/ftahirops/perfwatch/config"
	"github.com/ftahirops/perfwatch/engine"
	"github.com/ftahirops/perfwatch/remedy"
	"github.com/ftahirops/perfwatch/ui"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

const stopTimeout = 2 * time.Second

// options holds flags shared by every command.
type options struct {
	configPath      string
	interval        time.Duration
	analyzeInterval time.Duration
	dataDir         string
	logLevel        string
}

// Run parses the command line and runs the selected command until it
// finishes or the process is interrupted.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "perfwatch",
		Short: "Live system performance monitor with issue detection",
		Long: `perfwatch samples CPU, memory and disk once per interval, keeps one
minute of history and reports performance issues with remediation advice.

Without a subcommand it starts the interactive dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.load(cmd)
			return runTUI(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/perfwatch/config.yaml)")
	pf.DurationVar(&opts.interval, "interval", engine.DefaultInterval, "sampling interval")
	pf.DurationVar(&opts.analyzeInterval, "analyze-interval", engine.DefaultAnalyzeInterval, "analysis interval")
	pf.StringVar(&opts.dataDir, "data-dir", "", "directory for the issue log and TUI log file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newWatchCmd(opts), newSnapshotCmd(opts), newServeCmd(opts), newVersionCmd())
	return root
}

// load reads the config file and applies explicitly set flags on top.
func (o *options) load(cmd *cobra.Command) config.Config {
	path := o.configPath
	if path == "" {
		path = config.Path()
	}
	cfg := config.LoadFrom(path)

	flags := cmd.Flags()
	if flags.Changed("interval") && o.interval > 0 {
		cfg.Interval = o.interval
	}
	if flags.Changed("analyze-interval") && o.analyzeInterval > 0 {
		cfg.AnalyzeInterval = o.analyzeInterval
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	cfg.Normalize()
	return cfg
}

// pipeline is the sampler and analyzer pair every command runs.
type pipeline struct {
	sampler  *engine.Sampler
	analyzer *engine.Analyzer
	source   *collector.SystemSource
}

func newPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) *pipeline {
	src := collector.NewSystemSource(ctx, logger.With("component", "collector"))
	s := engine.NewSampler(src, collector.NewProcessTable(),
		engine.WithInterval(cfg.Interval),
		engine.WithLogger(logger.With("component", "sampler")),
	)
	a := engine.NewAnalyzer(s,
		engine.WithRemediator(remedy.New()),
		engine.WithAnalyzerLogger(logger.With("component", "analyzer")),
	)
	return &pipeline{sampler: s, analyzer: a, source: src}
}

func runTUI(ctx context.Context, cfg config.Config) error {
	logger, closeLog, err := newFileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	p := newPipeline(ctx, cfg, logger)
	p.sampler.Start(ctx)
	defer p.sampler.Stop(stopTimeout)

	m := ui.NewModel(p.sampler, p.analyzer, remedy.New(), cfg.AnalyzeInterval)
	defer m.Close()
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "perfwatch v%s\n", Version)
		},
	}
}
