package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// historyTimeFormat prefixes history file names; it sorts chronologically.
const historyTimeFormat = "20060102-150405.000000000"

// ErrNoStatus is returned by GetStatus for a source that never ran.
var ErrNoStatus = errors.New("no status recorded")

// FileStorage implements Storage using the filesystem
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{
		baseDir: baseDir,
	}
}

// DefaultStorageDir returns the default storage directory
func DefaultStorageDir() string {
	// Check for test environment variable first
	if testDir := os.Getenv("PASSUP_HISTORY_DIR"); testDir != "" {
		return testDir
	}

	// Try to use XDG_DATA_HOME first
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "passup", "history")
	}

	// Fall back to ~/.local/share
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "passup", "history")
	}

	// Last resort: use temp directory
	return filepath.Join(os.TempDir(), "passup", "history")
}

// SaveStatus saves the latest status of a source
func (fs *FileStorage) SaveStatus(status *SourceStatus) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	statusDir := filepath.Join(fs.baseDir, "status")
	if err := os.MkdirAll(statusDir, 0700); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	filename := filepath.Join(statusDir, fmt.Sprintf("%s.json", sanitizeFilename(status.Source)))
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}

	return nil
}

// GetStatus retrieves the latest status of a source
func (fs *FileStorage) GetStatus(source string) (*SourceStatus, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	filename := filepath.Join(fs.baseDir, "status", fmt.Sprintf("%s.json", sanitizeFilename(source)))
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for source %s", ErrNoStatus, source)
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status SourceStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

// SaveHistory saves one run of one source
func (fs *FileStorage) SaveHistory(entry *HistoryEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	historyDir := filepath.Join(fs.baseDir, "history", sanitizeFilename(entry.Source))
	if err := os.MkdirAll(historyDir, 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	filename := filepath.Join(historyDir, fmt.Sprintf("%s-%s.json", entry.Timestamp.UTC().Format(historyTimeFormat), entry.ID[:8]))
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// GetHistory retrieves the history of a source, newest first
func (fs *FileStorage) GetHistory(source string, limit int) ([]HistoryEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.readHistory(sanitizeFilename(source), limit)
}

func (fs *FileStorage) readHistory(dirName string, limit int) ([]HistoryEntry, error) {
	historyDir := filepath.Join(fs.baseDir, "history", dirName)

	if _, err := os.Stat(historyDir); os.IsNotExist(err) {
		return []HistoryEntry{}, nil
	}

	files, err := os.ReadDir(historyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	// Sort files by name (newest first)
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() > files[j].Name()
	})

	entries := []HistoryEntry{}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(historyDir, file.Name()))
		if err != nil {
			continue // Skip files that can't be read
		}

		var entry HistoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue // Skip invalid JSON files
		}

		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	return entries, nil
}

// GetAllHistory retrieves the history of all sources, newest first
func (fs *FileStorage) GetAllHistory(limit int) ([]HistoryEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	historyDir := filepath.Join(fs.baseDir, "history")
	if _, err := os.Stat(historyDir); os.IsNotExist(err) {
		return []HistoryEntry{}, nil
	}

	sourceDirs, err := os.ReadDir(historyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var all []HistoryEntry
	for _, dir := range sourceDirs {
		if !dir.IsDir() {
			continue
		}
		entries, err := fs.readHistory(dir.Name(), -1)
		if err != nil {
			continue // Skip sources with errors
		}
		all = append(all, entries...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all, nil
}

// CleanupOldEntries removes history entries older than the specified duration
func (fs *FileStorage) CleanupOldEntries(olderThan time.Duration) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	historyDir := filepath.Join(fs.baseDir, "history")
	cutoff := time.Now().Add(-olderThan)

	var errs []error
	err := filepath.WalkDir(historyDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		// Expected format: <historyTimeFormat>-<id>.json
		name := filepath.Base(path)
		if len(name) < len(historyTimeFormat) {
			return nil
		}
		ts, err := time.Parse(historyTimeFormat, name[:len(historyTimeFormat)])
		if err != nil || !ts.Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}
