package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ftahirops/perfwatch/model"
)

// AlertConfig defines alert destinations.
type AlertConfig struct {
	Webhook     string
	Command     string
	MinSeverity model.Severity
	PerMinute   int // delivery budget; 0 means 6
}

// Notifier forwards issues to a webhook and/or a shell command.
type Notifier struct {
	cfg     AlertConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	ctx    context.Context // cancelled by Close; bounds in-flight deliveries
	cancel context.CancelFunc
}

// NewNotifier creates a notifier. logger may be nil.
func NewNotifier(cfg AlertConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	perMin := cfg.PerMinute
	if perMin <= 0 {
		perMin = 6
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		logger:  logger,
	}
}

// Enabled returns true if any alert destination is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Webhook != "" || n.cfg.Command != ""
}

// Notify sends each issue at or above the minimum severity asynchronously.
// Issues beyond the rate budget are dropped and logged.
func (n *Notifier) Notify(issues []model.Issue) {
	if !n.Enabled() {
		return
	}
	for _, iss := range issues {
		if iss.Severity < n.cfg.MinSeverity {
			continue
		}
		if !n.limiter.Allow() {
			n.logger.Warn("alert dropped by rate limit", "title", iss.Title, "component", iss.AffectedComponent)
			continue
		}
		go n.deliver(iss)
	}
}

// validateWebhookURL checks that the webhook URL uses http/https and does not
// target loopback, private, link-local, or cloud metadata endpoints.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	switch host {
	case "", "localhost", "metadata.google.internal":
		return fmt.Errorf("webhook URL host %q is blocked", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	return nil
}

func (n *Notifier) deliver(iss model.Issue) {
	body := map[string]interface{}{
		"event": "issue",
		"issue": iss,
		"ts":    time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		n.logger.Error("alert marshal failed", "err", err)
		return
	}

	if n.cfg.Webhook != "" {
		if err := n.post(n.ctx, data); err != nil {
			n.logger.Warn("webhook delivery failed", "err", err)
		}
	}

	if n.cfg.Command != "" {
		ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
		defer cancel()
		cmd := exec.CommandContext(ctx, "sh", "-c", n.cfg.Command)
		cmd.Env = append(os.Environ(), "PERFWATCH_EVENT=issue", "PERFWATCH_PAYLOAD="+string(data))
		if err := cmd.Run(); err != nil {
			n.logger.Warn("alert command failed", "err", err)
		}
	}
}

// Close aborts in-flight webhook requests and alert commands. Later
// deliveries fail immediately.
func (n *Notifier) Close() {
	n.cancel()
}

func (n *Notifier) post(ctx context.Context, data []byte) error {
	if err := validateWebhookURL(n.cfg.Webhook); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Webhook, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
