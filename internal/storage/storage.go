package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
)

const (
	StatusPending = "pending"
)

// Entry is the last known state of one key.
type Entry struct {
	Key       models.RecordKey `json:"protein_id"`
	Status    string           `json:"status"` // pending, success, not_found, failed
	Name      string           `json:"name,omitempty"`
	Attempts  int              `json:"attempts,omitempty"`
	RunID     string           `json:"run_id,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Error     string           `json:"error,omitempty"`
}

// Done reports whether the key needs no further fetching.
func (e *Entry) Done() bool {
	return e.Status == models.StatusSuccess.String() || e.Status == models.StatusNotFound.String()
}

// ProgressStore tracks per-key progress across runs in a JSON file so an
// interrupted range can be resumed. It observes the pipeline driver.
type ProgressStore struct {
	mu       sync.RWMutex
	entries  map[models.RecordKey]*Entry
	filename string
	runID    string
	logger   *slog.Logger
	now      func() time.Time
}

func NewProgressStore(filename string, logger *slog.Logger) (*ProgressStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ps := &ProgressStore{
		entries:  make(map[models.RecordKey]*Entry),
		filename: filename,
		logger:   logger.With("component", "progress_store"),
		now:      time.Now,
	}

	// Load existing data if file exists
	if err := ps.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return ps, nil
}

// AddPending registers keys not seen before. Known keys keep their state.
func (ps *ProgressStore) AddPending(keys []models.RecordKey) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	for _, key := range keys {
		if !key.Valid() {
			continue
		}
		if _, ok := ps.entries[key]; ok {
			continue
		}
		ps.entries[key] = &Entry{
			Key:       key,
			Status:    StatusPending,
			AddedAt:   now,
			UpdatedAt: now,
		}
	}

	return ps.save()
}

// Record stores the outcome of a fetch.
func (ps *ProgressStore) Record(outcome models.Outcome) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	entry, ok := ps.entries[outcome.Key]
	if !ok {
		entry = &Entry{Key: outcome.Key, AddedAt: now}
		ps.entries[outcome.Key] = entry
	}

	entry.Status = outcome.Status.String()
	entry.Name = outcome.Name()
	entry.Attempts = outcome.Attempts
	entry.RunID = ps.runID
	entry.Error = outcome.Reason
	entry.UpdatedAt = now

	return ps.save()
}

func (ps *ProgressStore) Get(key models.RecordKey) (*Entry, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	entry, exists := ps.entries[key]
	if !exists {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// Remaining filters keys down to those not yet done, preserving order.
func (ps *ProgressStore) Remaining(keys []models.RecordKey) []models.RecordKey {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]models.RecordKey, 0, len(keys))
	for _, key := range keys {
		if e, ok := ps.entries[key]; ok && e.Done() {
			continue
		}
		out = append(out, key)
	}
	return out
}

// Failed returns the keys whose last fetch failed, in ascending order.
func (ps *ProgressStore) Failed() []models.RecordKey {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var keys []models.RecordKey
	for key, e := range ps.entries {
		if e.Status == models.StatusFailed.String() {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (ps *ProgressStore) GetStats() map[string]int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	stats := make(map[string]int)
	for _, e := range ps.entries {
		stats[e.Status]++
	}
	stats["total"] = len(ps.entries)
	return stats
}

func (ps *ProgressStore) RunStarted(_ context.Context, runID string, keys []models.RecordKey) {
	ps.mu.Lock()
	ps.runID = runID
	ps.mu.Unlock()

	if err := ps.AddPending(keys); err != nil {
		ps.logger.Warn("failed to save progress", "file", ps.filename, "error", err)
	}
}

func (ps *ProgressStore) Observe(_ context.Context, outcome models.Outcome) {
	if err := ps.Record(outcome); err != nil {
		ps.logger.Warn("failed to save progress", "file", ps.filename, "protein_id", outcome.Key, "error", err)
	}
}

func (ps *ProgressStore) RunFinished(_ context.Context, result *pipeline.Result) {
	ps.logger.Info("progress saved", "file", ps.filename, "run_id", result.RunID, "stats", ps.GetStats())
}

func (ps *ProgressStore) save() error {
	byID := make(map[string]*Entry, len(ps.entries))
	for key, e := range ps.entries {
		byID[strconv.Itoa(int(key))] = e
	}

	data, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(ps.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Write to temp file first for atomicity
	tmpFile := ps.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	// Rename to actual file
	return os.Rename(tmpFile, ps.filename)
}

func (ps *ProgressStore) Load() error {
	data, err := os.ReadFile(ps.filename)
	if err != nil {
		return err
	}

	var byID map[string]*Entry
	if err := json.Unmarshal(data, &byID); err != nil {
		return fmt.Errorf("failed to decode progress file: %w", err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	for id, e := range byID {
		n, err := strconv.Atoi(id)
		if err != nil || e == nil {
			continue
		}
		e.Key = models.RecordKey(n)
		ps.entries[e.Key] = e
	}
	return nil
}
