package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ftahirops/perfwatch/config"
	"github.com/ftahirops/perfwatch/model"
	"github.com/ftahirops/perfwatch/remedy"
)

const (
	tCPUWarn = 50.0
	tCPUCrit = 80.0
	tMemWarn = 70.0
	tMemCrit = 85.0
)

func newWatchCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print one line per sample and any detected issues",
		Long: `Print a colored line per sample with CPU, memory and disk figures.
Issues from the per-tick rules and the windowed analysis are printed as they
are raised, followed by a quick fix.

Examples:
  perfwatch watch
  perfwatch watch --count 30 --interval 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.load(cmd)
			return runWatch(cmd.Context(), cfg, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of samples to print (0 = until interrupted)")
	return cmd
}

func runWatch(ctx context.Context, cfg config.Config, count int, out io.Writer) error {
	logger := newLogger(os.Stderr, cfg.LogLevel)
	p := newPipeline(ctx, cfg, logger)

	snaps, unsubSnaps := p.sampler.SubscribeSnapshots(16)
	defer unsubSnaps()
	inline, unsubIssues := p.sampler.SubscribeIssues(64)
	defer unsubIssues()

	p.sampler.Start(ctx)
	defer p.sampler.Stop(stopTimeout)

	ticker := time.NewTicker(cfg.AnalyzeInterval)
	defer ticker.Stop()

	rp := remedy.New()
	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-snaps:
			fmt.Fprintln(out, formatSample(snap))
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		case iss := <-inline:
			printIssue(out, rp, iss)
		case <-ticker.C:
			for _, iss := range p.analyzer.Analyze(ctx) {
				printIssue(out, rp, iss)
			}
		}
	}
}

func colorPct(v, warn, crit float64) string {
	s := fmt.Sprintf("%5.1f%%", v)
	switch {
	case v >= crit:
		return color.New(color.FgRed, color.Bold).Sprint(s)
	case v >= warn:
		return color.YellowString(s)
	default:
		return color.GreenString(s)
	}
}

func formatRate(mbps float64) string {
	return humanize.IBytes(uint64(mbps*1024*1024)) + "/s"
}

func formatSample(snap model.MetricSnapshot) string {
	gray := color.New(color.FgHiBlack).SprintFunc()
	return fmt.Sprintf("%s  CPU %s  RAM %s  Disk R %s W %s Q %.1f",
		gray(snap.Timestamp.Format("15:04:05")),
		colorPct(snap.CPUPercent, tCPUWarn, tCPUCrit),
		colorPct(snap.RAMPercent, tMemWarn, tMemCrit),
		formatRate(snap.DiskReadMBps),
		formatRate(snap.DiskWriteMBps),
		snap.DiskQueueLength)
}

func severityPrinter(sev model.Severity) *color.Color {
	switch sev {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityHigh:
		return color.New(color.FgRed)
	case model.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func printIssue(out io.Writer, rp *remedy.Provider, iss model.Issue) {
	fmt.Fprintf(out, "  %s %s\n", severityPrinter(iss.Severity).Sprint("!"), severityPrinter(iss.Severity).Sprint(iss.String()))
	if iss.Description != "" {
		fmt.Fprintf(out, "    %s\n", iss.Description)
	}
	fmt.Fprintf(out, "    %s\n", color.GreenString(rp.QuickFix(iss)))
}
