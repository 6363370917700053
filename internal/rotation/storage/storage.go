// Package storage persists secret-free rotation status and history.
package storage

import (
	"time"
)

// Storage defines the interface for rotation metadata storage
type Storage interface {
	// SaveStatus saves the latest status of a source
	SaveStatus(status *SourceStatus) error

	// GetStatus retrieves the latest status of a source
	GetStatus(source string) (*SourceStatus, error)

	// SaveHistory saves one run of one source
	SaveHistory(entry *HistoryEntry) error

	// GetHistory retrieves the history of a source, newest first
	GetHistory(source string, limit int) ([]HistoryEntry, error)

	// GetAllHistory retrieves the history of all sources, newest first
	GetAllHistory(limit int) ([]HistoryEntry, error)

	// CleanupOldEntries removes history entries older than the specified duration
	CleanupOldEntries(olderThan time.Duration) error
}

// SourceStatus summarizes the most recent run of a source.
type SourceStatus struct {
	Source    string    `json:"source"`
	Status    string    `json:"status"` // rotated, partial, unchanged, failed
	LastRun   time.Time `json:"last_run"`
	LastRunID string    `json:"last_run_id"`
	LastError string    `json:"last_error,omitempty"`
	RunCount  int       `json:"run_count"`
	Rotated   int       `json:"rotated"`
	Failed    int       `json:"failed"`
}

// HistoryEntry records one run of one source. It never contains secrets.
type HistoryEntry struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Path      string        `json:"path,omitempty"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Status    string        `json:"status"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Parsed    int           `json:"parsed"`
	Skipped   int           `json:"skipped"`
	Jobs      []JobRecord   `json:"jobs,omitempty"`
}

// JobRecord is the outcome of one rotation job.
type JobRecord struct {
	Site     string        `json:"site"`
	Username string        `json:"username"`
	Script   string        `json:"script"`
	Port     int           `json:"port"`
	Outcome  string        `json:"outcome"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
