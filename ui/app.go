package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/ftahirops/perfwatch/engine"
	"github.com/ftahirops/perfwatch/model"
	"github.com/ftahirops/perfwatch/remedy"
)

// MaxIssues bounds the issue list; older entries fall off the end.
const MaxIssues = 100

const (
	topProcessCount = 5
	chartHeight     = 5
	statusTTL       = 5 * time.Second
)

type tickMsg time.Time

type analyzeTickMsg time.Time

type stateMsg struct {
	state engine.State
	procs []model.ProcessSample
}

type analysisMsg []model.Issue

type issueMsg model.Issue

// issuesClosedMsg is sent when the inline issue subscription ends.
type issuesClosedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	sampler         *engine.Sampler
	analyzer        *engine.Analyzer
	remedy          *remedy.Provider
	interval        time.Duration
	analyzeInterval time.Duration

	inline      <-chan model.Issue
	unsubscribe func()

	width  int
	height int

	// Data
	state engine.State
	procs []model.ProcessSample
	// issues is newest first.
	issues   []model.Issue
	selected int

	paused bool

	statusMsg  string
	statusTime time.Time
}

// NewModel creates a TUI model over a running sampler. It subscribes to the
// sampler's per-tick issues; Close releases the subscription.
func NewModel(s *engine.Sampler, a *engine.Analyzer, rp *remedy.Provider, analyzeInterval time.Duration) Model {
	if analyzeInterval <= 0 {
		analyzeInterval = engine.DefaultAnalyzeInterval
	}
	if rp == nil {
		rp = remedy.New()
	}
	inline, unsub := s.SubscribeIssues(MaxIssues)
	return Model{
		sampler:         s,
		analyzer:        a,
		remedy:          rp,
		interval:        s.Interval(),
		analyzeInterval: analyzeInterval,
		inline:          inline,
		unsubscribe:     unsub,
	}
}

// Close releases the inline issue subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), analyzeTick(m.analyzeInterval), refresh(m.sampler), waitIssue(m.inline))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func analyzeTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return analyzeTickMsg(t) })
}

func refresh(s *engine.Sampler) tea.Cmd {
	return func() tea.Msg {
		return stateMsg{
			state: s.State(),
			procs: s.TopProcesses(context.Background(), topProcessCount),
		}
	}
}

func analyze(a *engine.Analyzer) tea.Cmd {
	return func() tea.Msg {
		return analysisMsg(a.Analyze(context.Background()))
	}
}

func waitIssue(ch <-chan model.Issue) tea.Cmd {
	return func() tea.Msg {
		iss, ok := <-ch
		if !ok {
			return issuesClosedMsg{}
		}
		return issueMsg(iss)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Close()
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.issues)-1 {
				m.selected++
			}
		case "c":
			m.analyzer.ClearCache()
			m.setStatus("Issue cache cleared")
		case "p":
			m.paused = !m.paused
			if m.paused {
				m.setStatus("Paused")
			} else {
				m.setStatus("Resumed")
				return m, refresh(m.sampler)
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.paused {
			return m, tick(m.interval)
		}
		return m, tea.Batch(tick(m.interval), refresh(m.sampler))
	case analyzeTickMsg:
		if m.paused {
			return m, analyzeTick(m.analyzeInterval)
		}
		return m, tea.Batch(analyzeTick(m.analyzeInterval), analyze(m.analyzer))
	case stateMsg:
		m.state = msg.state
		m.procs = msg.procs
	case analysisMsg:
		m.addIssues(msg...)
	case issueMsg:
		m.refreshIssue(model.Issue(msg))
		return m, waitIssue(m.inline)
	case issuesClosedMsg:
		m.inline = nil
	}
	return m, nil
}

// addIssues prepends issues so the newest is first, keeping the selection on
// the same issue where possible.
func (m *Model) addIssues(issues ...model.Issue) {
	if len(issues) == 0 {
		return
	}
	merged := make([]model.Issue, 0, len(issues)+len(m.issues))
	for i := len(issues) - 1; i >= 0; i-- {
		merged = append(merged, issues[i])
	}
	merged = append(merged, m.issues...)
	if len(merged) > MaxIssues {
		merged = merged[:MaxIssues]
	}
	if len(m.issues) > 0 {
		m.selected += len(issues)
	}
	if m.selected >= len(merged) {
		m.selected = len(merged) - 1
	}
	m.issues = merged
}

// refreshIssue handles per-tick issues, which repeat every sample while a
// condition holds: an issue whose key is already listed replaces that row in
// place, otherwise it is added as new.
func (m *Model) refreshIssue(iss model.Issue) {
	k := iss.Key()
	for i := range m.issues {
		if m.issues[i].Key() == k {
			m.issues[i] = iss
			return
		}
	}
	m.addIssues(iss)
}

func (m *Model) setStatus(s string) {
	m.statusMsg = s
	m.statusTime = time.Now()
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if !m.state.HasSnapshot {
		return "Collecting first sample..."
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderCharts())
	sb.WriteString("\n")
	sb.WriteString(m.renderProcesses())
	sb.WriteString("\n")
	sb.WriteString(m.renderIssues())
	sb.WriteString(m.renderDetail())

	lines := strings.Split(sb.String(), "\n")
	maxLines := m.height - 2
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n") + "\n" + m.renderStatusBar()
}

func (m Model) renderHeader() string {
	snap := m.state.Snapshot
	cells := []string{
		titleStyle.Render("perfwatch"),
		fmt.Sprintf("CPU %s %s", bar(snap.CPUPercent, 10), pctColor(snap.CPUPercent).Render(fmt.Sprintf("%5.1f%%", snap.CPUPercent))),
		fmt.Sprintf("RAM %s %s", bar(snap.RAMPercent, 10), pctColor(snap.RAMPercent).Render(fmt.Sprintf("%5.1f%%", snap.RAMPercent))),
		fmt.Sprintf("Disk R %s W %s Q %s",
			valueStyle.Render(fmt.Sprintf("%.1f MB/s", snap.DiskReadMBps)),
			valueStyle.Render(fmt.Sprintf("%.1f MB/s", snap.DiskWriteMBps)),
			valueStyle.Render(fmt.Sprintf("%.1f", snap.DiskQueueLength))),
		dimStyle.Render(snap.Timestamp.Format("15:04:05")),
	}
	if m.paused {
		cells = append(cells, warnStyle.Render("PAUSED"))
	}
	return strings.Join(cells, "  ")
}

func (m Model) renderCharts() string {
	st := m.state
	end := st.Snapshot.Timestamp
	start := end.Add(-time.Duration(max(len(st.CPU)-1, 0)) * m.interval)

	charts := []series{
		{label: "CPU", unit: "%", values: st.CPU, max: 100, color: pctChartColor},
		{label: "RAM", unit: "%", values: st.RAM, max: 100, color: pctChartColor},
		{label: "Disk", unit: " MB/s", values: st.Disk, max: autoScale(st.Disk), color: diskChartColor},
	}
	var sb strings.Builder
	for _, c := range charts {
		sb.WriteString(c.render(m.width, chartHeight, start, end))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderProcesses() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Top processes by memory"))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %-24s %8s %10s %8s", "NAME", "PID", "MEMORY", "THREADS")))
	sb.WriteString("\n")
	if len(m.procs) == 0 {
		sb.WriteString(dimStyle.Render("  (no process data)"))
		sb.WriteString("\n")
	}
	for _, p := range m.procs {
		mem := humanize.IBytes(uint64(p.MemoryMB * 1024 * 1024))
		sb.WriteString(fmt.Sprintf("  %s %8d %10s %8d\n", padRight(p.Name, 24), p.PID, mem, p.ThreadCount))
	}
	return sb.String()
}

func (m Model) renderIssues() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("Issues (%d)", len(m.issues))))
	sb.WriteString("\n")
	if len(m.issues) == 0 {
		sb.WriteString(okStyle.Render("  No issues detected"))
		sb.WriteString("\n")
		return sb.String()
	}

	visible := 6
	start := 0
	if m.selected >= visible {
		start = m.selected - visible + 1
	}
	end := min(start+visible, len(m.issues))
	for i := start; i < end; i++ {
		iss := m.issues[i]
		sev := severityColor(iss.Severity).Render(padRight(iss.Severity.String(), 8))
		line := fmt.Sprintf("%s %s %s  %s",
			dimStyle.Render(iss.DetectedAt.Format("15:04:05")),
			sev,
			truncate(iss.Title, 40),
			dimStyle.Render(truncate(iss.AffectedComponent, 24)))
		if i == m.selected {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		sb.WriteString(styledPad(line, m.width))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderDetail() string {
	if m.selected < 0 || m.selected >= len(m.issues) {
		return ""
	}
	iss := m.issues[m.selected]
	width := m.width - 4

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(severityColor(iss.Severity).Render(iss.String()))
	sb.WriteString("\n")
	for _, l := range wrap(iss.Description, width) {
		sb.WriteString("  " + valueStyle.Render(l) + "\n")
	}
	solutions := iss.Solutions
	if len(solutions) == 0 {
		// Per-tick issues skip the analyzer and carry no advice.
		solutions = m.remedy.Solutions(iss)
	}
	for _, s := range solutions {
		sb.WriteString("  " + dimStyle.Render(truncate(s, width)) + "\n")
	}
	sb.WriteString("  " + okStyle.Render(m.remedy.QuickFix(iss)) + "\n")
	return sb.String()
}

func (m Model) renderStatusBar() string {
	help := helpStyle.Render("q quit  ↑/↓ select  c clear cache  p pause")
	if m.statusMsg != "" && time.Since(m.statusTime) < statusTTL {
		return help + "  " + warnStyle.Render(m.statusMsg)
	}
	return help
}
