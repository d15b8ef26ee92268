package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity ranks an issue. Values are ordered: Low < Medium < High < Critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"Low", "Medium", "High", "Critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return "Unknown"
	}
	return severityNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

// Category is the subsystem an issue belongs to.
type Category int

const (
	CategoryCPU Category = iota
	CategoryMemory
	CategoryDisk
	CategoryGPU
	CategoryNetwork
	CategoryProcess
	CategorySystem
)

var categoryNames = []string{"CPU", "Memory", "Disk", "GPU", "Network", "Process", "System"}

func (c Category) String() string {
	if c < CategoryCPU || c > CategorySystem {
		return "Unknown"
	}
	return categoryNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	for i, n := range categoryNames {
		if strings.EqualFold(n, string(b)) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(b))
}

// Issue is a classified performance problem.
type Issue struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Category          Category           `json:"category"`
	Severity          Severity           `json:"severity"`
	DetectedAt        time.Time          `json:"detected_at"`
	AffectedComponent string             `json:"affected_component"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`
	Solutions         []string           `json:"solutions"`
}

// IssueKey identifies an issue for deduplication.
type IssueKey struct {
	Title     string
	Component string
}

// NewIssue creates an issue with a fresh ID, empty metrics and no solutions.
func NewIssue(title string, cat Category, sev Severity, component string, at time.Time) Issue {
	return Issue{
		ID:                uuid.NewString(),
		Title:             title,
		Category:          cat,
		Severity:          sev,
		DetectedAt:        at,
		AffectedComponent: component,
		Metrics:           make(map[string]float64),
		Solutions:         []string{},
	}
}

// Key returns the (title, component) identity of the issue.
func (i Issue) Key() IssueKey {
	return IssueKey{Title: i.Title, Component: i.AffectedComponent}
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s - %s", i.Severity, i.Title, i.Description)
}
