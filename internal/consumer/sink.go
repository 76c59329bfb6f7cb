package consumer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
)

// CSVSink appends rows to one CSV file, writing the header when the file
// is new or empty.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Path() string {
	return s.path
}

func (s *CSVSink) WriteRows(rows []models.ExplodedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	table := postprocess.Aggregate(rows)
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(table.Header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}
	return nil
}
