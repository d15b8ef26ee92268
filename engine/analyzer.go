package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ftahirops/perfwatch/model"
)

// DefaultAnalyzeInterval is the cadence of the windowed analysis.
const DefaultAnalyzeInterval = 2 * time.Second

// StateSource is what the analyzer reads on every pass. *Sampler implements it.
type StateSource interface {
	State() State
	TopProcesses(ctx context.Context, n int) []model.ProcessSample
}

// Remediator attaches remediation advice to an issue.
type Remediator interface {
	Apply(iss *model.Issue)
}

// Analyzer runs the windowed rules against a StateSource and filters the
// result through its own Deduper. Per-tick issues from the Sampler do not
// pass through here and are therefore never deduplicated.
type Analyzer struct {
	src    StateSource
	dedup  *Deduper
	remedy Remediator
	now    func() time.Time
	logger *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithRemediator sets the advice provider applied to surviving issues.
func WithRemediator(r Remediator) AnalyzerOption {
	return func(a *Analyzer) { a.remedy = r }
}

// WithDeduper replaces the default 30s deduper.
func WithDeduper(d *Deduper) AnalyzerOption {
	return func(a *Analyzer) {
		if d != nil {
			a.dedup = d
		}
	}
}

// WithAnalyzerClock injects the time stamped on detected issues.
func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// WithAnalyzerLogger sets the analyzer's logger.
func WithAnalyzerLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAnalyzer creates an analyzer reading from src.
func NewAnalyzer(src StateSource, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		src:    src,
		dedup:  NewDeduper(),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze evaluates the current state and returns the issues that survive
// deduplication, in rule order, with remediation attached.
func (a *Analyzer) Analyze(ctx context.Context) []model.Issue {
	st := a.src.State()
	return a.AnalyzeInput(RuleInput{
		Snapshot:  st.Snapshot,
		CPU:       st.CPU,
		RAM:       st.RAM,
		Processes: a.src.TopProcesses(ctx, processTopN),
	})
}

// AnalyzeInput is Analyze for an explicit input.
func (a *Analyzer) AnalyzeInput(in RuleInput) []model.Issue {
	found := WindowedIssues(in, a.now())
	out := a.dedup.Filter(found)
	if a.remedy != nil {
		for i := range out {
			a.remedy.Apply(&out[i])
		}
	}
	if len(found) > 0 {
		a.logger.Debug("analysis pass", "found", len(found), "reported", len(out))
	}
	return out
}

// Run calls Analyze every interval and hands non-empty results to fn until
// ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context, interval time.Duration, fn func([]model.Issue)) error {
	if interval <= 0 {
		interval = DefaultAnalyzeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if issues := a.Analyze(ctx); len(issues) > 0 {
				fn(issues)
			}
		}
	}
}

// ClearCache forgets every reported issue so all current conditions surface
// on the next pass.
func (a *Analyzer) ClearCache() {
	a.dedup.Clear()
}

// Deduper returns the analyzer's deduplication cache.
func (a *Analyzer) Deduper() *Deduper { return a.dedup }
