package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/phosphosite-scraper/internal/models"
)

// Jar is anything holding live session cookies, normally the browser context.
type Jar interface {
	Cookies() ([]models.Cookie, error)
	AddCookies(cookies []models.Cookie) error
}

// Store persists session cookies as a JSON array on disk. The file is the
// only state carried between runs.
type Store struct {
	mu       sync.Mutex
	filename string
	logger   *slog.Logger
}

func NewStore(filename string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		filename: filename,
		logger:   logger.With("component", "session_store"),
	}
}

func (s *Store) Path() string {
	return s.filename
}

// Load reads the persisted cookies. A missing file yields no cookies and no
// error.
func (s *Store) Load() ([]models.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode cookie file: %w", err)
	}
	return cookies, nil
}

// Save overwrites the cookie file.
func (s *Store) Save(cookies []models.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cookies == nil {
		cookies = []models.Cookie{}
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filename)
}

// Restore loads persisted cookies into jar. It never fails the caller: errors
// are logged and reported as zero cookies restored.
func (s *Store) Restore(jar Jar) int {
	cookies, err := s.Load()
	if err != nil {
		s.logger.Warn("error loading cookies", "file", s.filename, "error", err)
		return 0
	}
	if len(cookies) == 0 {
		return 0
	}

	if err := jar.AddCookies(cookies); err != nil {
		s.logger.Warn("error applying cookies", "file", s.filename, "error", err)
		return 0
	}

	s.logger.Debug("loaded cookies", "count", len(cookies))
	return len(cookies)
}

// Persist writes the jar's current cookies to disk. Like Restore it only
// logs failures; the returned bool reports whether the file was written.
func (s *Store) Persist(jar Jar) bool {
	cookies, err := jar.Cookies()
	if err != nil {
		s.logger.Warn("error reading cookies", "error", err)
		return false
	}

	if err := s.Save(cookies); err != nil {
		s.logger.Warn("error saving cookies", "file", s.filename, "error", err)
		return false
	}

	s.logger.Debug("saved cookies", "count", len(cookies))
	return true
}
