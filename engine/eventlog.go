package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ftahirops/perfwatch/model"
)

// IssueLog appends reported issues to a JSONL file. It is write-only from the
// engine's point of view; nothing is loaded back into history on startup.
type IssueLog struct {
	path string
	mu   sync.Mutex
}

// NewIssueLog creates a writer for the given path.
func NewIssueLog(path string) *IssueLog {
	return &IssueLog{path: path}
}

// Path returns the log file location.
func (w *IssueLog) Path() string { return w.path }

// Write appends issues to the log file, one JSON object per line.
func (w *IssueLog) Write(issues ...model.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open issue log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, iss := range issues {
		if err := enc.Encode(iss); err != nil {
			return fmt.Errorf("write issue log: %w", err)
		}
	}
	return nil
}

// ReadIssueLog reads all issues from a JSONL file. A missing file yields no issues.
func ReadIssueLog(path string) ([]model.Issue, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var issues []model.Issue
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line limit
	for scanner.Scan() {
		var iss model.Issue
		if err := json.Unmarshal(scanner.Bytes(), &iss); err != nil {
			continue // skip malformed lines
		}
		issues = append(issues, iss)
	}
	return issues, scanner.Err()
}
