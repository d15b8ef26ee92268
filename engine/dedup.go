package engine

import (
	"sync"
	"time"

	"github.com/ftahirops/perfwatch/model"
)

// DefaultCooldown is how long a reported (title, component) pair stays quiet.
const DefaultCooldown = 30 * time.Second

// Deduper suppresses issues whose (title, component) key was reported within
// the cooldown. Entries are refreshed only when an issue is let through, so a
// persistent condition resurfaces once per cooldown. Entries never expire on
// their own; the map grows with the number of distinct keys until Clear or Prune.
type Deduper struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	last     map[model.IssueKey]time.Time
}

// DedupOption configures a Deduper.
type DedupOption func(*Deduper)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) DedupOption {
	return func(dd *Deduper) { dd.cooldown = d }
}

// WithDedupClock injects the time source.
func WithDedupClock(now func() time.Time) DedupOption {
	return func(dd *Deduper) { dd.now = now }
}

// NewDeduper creates an empty cache.
func NewDeduper(opts ...DedupOption) *Deduper {
	d := &Deduper{
		cooldown: DefaultCooldown,
		now:      time.Now,
		last:     make(map[model.IssueKey]time.Time),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ShouldSuppress reports whether iss was already reported within the cooldown.
// When it returns false the key's timestamp is set to now. The check and the
// write happen under one lock, so concurrent callers cannot both pass.
func (d *Deduper) ShouldSuppress(iss model.Issue) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := iss.Key()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.cooldown {
		return true
	}
	d.last[key] = now
	return false
}

// Filter returns the issues that are not suppressed, preserving order.
func (d *Deduper) Filter(issues []model.Issue) []model.Issue {
	out := make([]model.Issue, 0, len(issues))
	for _, iss := range issues {
		if !d.ShouldSuppress(iss) {
			out = append(out, iss)
		}
	}
	return out
}

// Clear drops every entry.
func (d *Deduper) Clear() {
	d.mu.Lock()
	d.last = make(map[model.IssueKey]time.Time)
	d.mu.Unlock()
}

// Len returns the number of tracked keys.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

// Prune removes keys last reported more than olderThan ago and returns how
// many were removed. Nothing calls it implicitly.
func (d *Deduper) Prune(olderThan time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	n := 0
	for k, t := range d.last {
		if now.Sub(t) > olderThan {
			delete(d.last, k)
			n++
		}
	}
	return n
}
