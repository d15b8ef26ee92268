package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftahirops/perfwatch/collector"
	"github.com/ftahirops/perfwatch/config"
	"github.com/ftahirops/perfwatch/model"
)

// snapshotReport is the JSON document printed by `perfwatch snapshot`.
type snapshotReport struct {
	Timestamp        time.Time             `json:"timestamp"`
	Host             *collector.HostInfo   `json:"host,omitempty"`
	Snapshot         model.MetricSnapshot  `json:"snapshot"`
	Processes        []model.ProcessSample `json:"processes"`
	Issues           []model.Issue         `json:"issues"`
	DisabledCounters map[string]string     `json:"disabled_counters,omitempty"`
}

func newSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Sample for two ticks and print the result as JSON",
		Long: `Sample twice so disk rates have a baseline, then print the latest
snapshot, top processes and any issues as JSON.

Examples:
  perfwatch snapshot | jq '.snapshot.cpu_percent'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.load(cmd)
			return runSnapshot(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runSnapshot(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger := newLogger(os.Stderr, cfg.LogLevel)
	p := newPipeline(ctx, cfg, logger)

	snaps, unsubSnaps := p.sampler.SubscribeSnapshots(4)
	defer unsubSnaps()
	inline, unsubIssues := p.sampler.SubscribeIssues(32)
	defer unsubIssues()

	p.sampler.Start(ctx)
	for seen := 0; seen < 2; {
		select {
		case <-ctx.Done():
			p.sampler.Stop(stopTimeout)
			return ctx.Err()
		case <-snaps:
			seen++
		}
	}
	p.sampler.Stop(stopTimeout)

	snap, _ := p.sampler.Latest()
	report := snapshotReport{
		Timestamp: time.Now(),
		Snapshot:  snap,
		Processes: p.sampler.TopProcesses(ctx, 10),
		Issues:    []model.Issue{},
	}
	if hi, err := collector.ReadHostInfo(ctx); err == nil {
		report.Host = &hi
	} else {
		logger.Warn("host info unavailable", "err", err)
	}
	for name, err := range p.source.Disabled() {
		if report.DisabledCounters == nil {
			report.DisabledCounters = make(map[string]string)
		}
		report.DisabledCounters[name] = err.Error()
	}

	for drained := false; !drained; {
		select {
		case iss := <-inline:
			report.Issues = append(report.Issues, iss)
		default:
			drained = true
		}
	}
	report.Issues = append(report.Issues, p.analyzer.Analyze(ctx)...)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
