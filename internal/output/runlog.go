package output

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
)

var separator = strings.Repeat("=", 80)

// RunLog appends a human-readable line per key to
// <dir>/logs/protein_details_scraping_log_<runID>.txt.
type RunLog struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	path string
}

func NewRunLog(dir string, logger *slog.Logger) *RunLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLog{
		dir:    dir,
		now:    time.Now,
		logger: logger.With("component", "run_log"),
	}
}

func RunLogPath(dir, runID string) string {
	return filepath.Join(dir, "logs", fmt.Sprintf("protein_details_scraping_log_%s.txt", runID))
}

// Path is the log file of the current run.
func (l *RunLog) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *RunLog) RunStarted(_ context.Context, runID string, keys []models.RecordKey) {
	path := RunLogPath(l.dir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.logger.Error("failed to create log directory", "error", err)
		return
	}

	l.mu.Lock()
	l.path = path
	l.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Protein Details Scraping Log - Started at %s\n", l.now().Format("2006-01-02 15:04:05"))
	if len(keys) > 0 {
		fmt.Fprintf(&b, "Starting from Protein ID: %d\n", keys[0])
	}
	b.WriteString(separator + "\n\n")

	l.write(os.O_CREATE|os.O_TRUNC|os.O_WRONLY, b.String())
}

func (l *RunLog) Observe(_ context.Context, o models.Outcome) {
	line := fmt.Sprintf("[%s] Protein ID %d (%s): %s\n", l.now().Format("15:04:05"), o.Key, o.Name(), o.LogStatus())
	if o.Status == models.StatusFailed {
		line += fmt.Sprintf("  failed after %d attempt(s): %s\n", o.Attempts, o.Reason)
	}
	l.append(line)
}

func (l *RunLog) RunFinished(_ context.Context, result *pipeline.Result) {
	if len(result.Records) == 0 {
		l.append("\n[WARNING] No results to combine into CSV - all_results is empty\n")
		return
	}

	var b strings.Builder
	b.WriteString("\n" + separator + "\n")
	fmt.Fprintf(&b, "\nProtein Details Scraping completed at %s\n", l.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total proteins processed: %d\n", len(result.Records))
	fmt.Fprintf(&b, "Exploded combined data saved to: %s\n", CombinedPath(l.dir, result.RunID))
	l.append(b.String())
}

// Fatal records a run-level error.
func (l *RunLog) Fatal(err error) {
	l.append(fmt.Sprintf("\nFatal error: %v\n", err))
}

func (l *RunLog) append(s string) {
	l.write(os.O_APPEND|os.O_CREATE|os.O_WRONLY, s)
}

func (l *RunLog) write(flag int, s string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return
	}

	f, err := os.OpenFile(l.path, flag, 0o644)
	if err != nil {
		l.logger.Error("failed to open run log", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(s); err != nil {
		l.logger.Error("failed to write run log", "path", l.path, "error", err)
	}
}
