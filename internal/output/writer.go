package output

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
)

// CSVWriter writes each successful record to its own exploded CSV as soon as
// it is fetched and the combined file when the run finishes. Write failures
// are logged; they never abort the run.
type CSVWriter struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	written  []string
	combined string
}

func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{
		dir:    dir,
		logger: logger.With("component", "csv_writer"),
	}
}

func RecordPath(dir string, r models.RawRecord) string {
	return filepath.Join(dir, SanitizeName(r.Name())+"_details_exploded.csv")
}

func CombinedPath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("all_proteins_details_exploded_%s.csv", runID))
}

func (w *CSVWriter) RunStarted(context.Context, string, []models.RecordKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = nil
	w.combined = ""
}

func (w *CSVWriter) Observe(_ context.Context, o models.Outcome) {
	if !o.OK() {
		return
	}

	path := RecordPath(w.dir, *o.Record)
	table := postprocess.Aggregate(postprocess.ExplodeRecord(*o.Record))
	if err := WriteCSV(path, table); err != nil {
		w.logger.Error("failed to write record csv", "protein_id", int(o.Key), "path", path, "error", err)
		return
	}

	w.mu.Lock()
	w.written = append(w.written, path)
	w.mu.Unlock()
	w.logger.Debug("wrote record csv", "protein_id", int(o.Key), "path", path)
}

func (w *CSVWriter) RunFinished(_ context.Context, result *pipeline.Result) {
	if len(result.Rows) == 0 {
		w.logger.Warn("no results to combine", "run_id", result.RunID)
		return
	}

	path := CombinedPath(w.dir, result.RunID)
	if err := WriteCSV(path, postprocess.Aggregate(result.Rows)); err != nil {
		w.logger.Error("failed to write combined csv", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	w.combined = path
	w.mu.Unlock()
	w.logger.Info("wrote combined csv", "path", path, "rows", len(result.Rows))
}

// Written lists the per-record files written in the current run.
func (w *CSVWriter) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

// Combined is the combined file of the last finished run, or "".
func (w *CSVWriter) Combined() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.combined
}
