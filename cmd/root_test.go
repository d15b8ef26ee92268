package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfwatch/config"
	"github.com/ftahirops/perfwatch/model"
	"github.com/ftahirops/perfwatch/remedy"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: 3s\nlog_level: debug\n"), 0600))

	root := newRootCmd()
	root.SetArgs([]string{"version", "--config", path, "--analyze-interval", "7s"})
	root.SetOut(&bytes.Buffer{})
	require.NoError(t, root.Execute())

	ver, _, err := root.Find([]string{"version"})
	require.NoError(t, err)

	opts := &options{configPath: path, analyzeInterval: 7 * time.Second}
	cfg := opts.load(ver)
	assert.Equal(t, 3*time.Second, cfg.Interval, "file value kept when flag unset")
	assert.Equal(t, 7*time.Second, cfg.AnalyzeInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestIntervalFlagFloor(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	path := filepath.Join(t.TempDir(), "missing.yaml")
	root.SetArgs([]string{"version", "--config", path, "--interval", "1ms"})
	require.NoError(t, root.Execute())

	ver, _, err := root.Find([]string{"version"})
	require.NoError(t, err)
	opts := &options{configPath: path, interval: time.Millisecond}
	assert.Equal(t, config.MinInterval, opts.load(ver).Interval)
}

func TestUnsetFlagsKeepDefaults(t *testing.T) {
	root := newRootCmd()
	opts := &options{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
	cfg := opts.load(root)
	def := config.Default()
	assert.Equal(t, def.Interval, cfg.Interval)
	assert.Equal(t, def.AnalyzeInterval, cfg.AnalyzeInterval)
	assert.Equal(t, def.Listen, cfg.Listen)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "perfwatch v"+Version+"\n", out.String())
}

func TestAlertConfigSeverity(t *testing.T) {
	logger := newLogger(&bytes.Buffer{}, "error")
	cfg := config.Default()
	cfg.Alerts.MinSeverity = "medium"
	assert.Equal(t, model.SeverityMedium, alertConfig(cfg, logger).MinSeverity)

	cfg.Alerts.MinSeverity = "urgent"
	assert.Equal(t, model.SeverityHigh, alertConfig(cfg, logger).MinSeverity)
}

func TestWatchOutput(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	line := formatSample(model.MetricSnapshot{
		CPUPercent:      91.25,
		RAMPercent:      40,
		DiskReadMBps:    2,
		DiskWriteMBps:   0.5,
		DiskQueueLength: 1.5,
		Timestamp:       time.Date(2024, 1, 1, 12, 30, 5, 0, time.UTC),
	})
	assert.Equal(t, "12:30:05  CPU  91.2%  RAM  40.0%  Disk R 2.0 MiB/s W 512 KiB/s Q 1.5", line)

	var buf bytes.Buffer
	iss := model.NewIssue("High CPU Usage", model.CategoryCPU, model.SeverityHigh, "CPU", time.Now())
	iss.Description = "CPU above 80%"
	printIssue(&buf, remedy.New(), iss)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "High CPU Usage")
	assert.Equal(t, "    CPU above 80%", lines[1])
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[2]), "Quick Fix:"))
}
