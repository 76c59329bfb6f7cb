package output

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func abl1() models.RawRecord {
	return models.RawRecord{
		Key:         1035,
		DisplayName: models.StringPtr("ABL1"),
		AltNames:    models.StringPtr("ABL; c-ABL, isoform 1"),
		ExternalID:  models.StringPtr("P00519"),
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "ABL1", SanitizeName("ABL1"))
	assert.Equal(t, "p53_human", SanitizeName("p53/human"))
	assert.Equal(t, "unnamed", SanitizeName(" ../ "))
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	table := postprocess.Aggregate(postprocess.ExplodeRecord(abl1()))

	require.NoError(t, WriteCSV(path, table))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, postprocess.Header, rows[0])
	assert.Equal(t, []string{"1035", "ABL1", "c-ABL, isoform 1", "P00519", "", "ABL; c-ABL, isoform 1"}, rows[2])

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCSVWriterPerRecordAndCombined(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)
	ctx := context.Background()

	w.RunStarted(ctx, "20250101_120000", []models.RecordKey{1035, 1036, 1037})
	w.Observe(ctx, models.Success(abl1(), 1))
	w.Observe(ctx, models.NotFound(1036, 1))
	w.Observe(ctx, models.Success(models.RawRecord{Key: 1037}, 2))

	assert.Equal(t, []string{
		filepath.Join(dir, "ABL1_details_exploded.csv"),
		filepath.Join(dir, "Protein_1037_details_exploded.csv"),
	}, w.Written())

	records := []models.RawRecord{abl1(), {Key: 1037}}
	w.RunFinished(ctx, &pipeline.Result{
		RunID:   "20250101_120000",
		Records: records,
		Rows:    postprocess.Explode(records),
	})

	combined := filepath.Join(dir, "all_proteins_details_exploded_20250101_120000.csv")
	assert.Equal(t, combined, w.Combined())
	rows := readCSV(t, combined)
	require.Len(t, rows, 4)
	assert.Equal(t, "1037", rows[3][0])
}

func TestCSVWriterNoRows(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)

	w.RunFinished(context.Background(), &pipeline.Result{RunID: "x"})

	assert.Empty(t, w.Combined())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunLog(t *testing.T) {
	dir := t.TempDir()
	l := NewRunLog(dir, nil)
	l.now = func() time.Time { return time.Date(2025, 1, 1, 9, 30, 15, 0, time.UTC) }
	ctx := context.Background()

	l.RunStarted(ctx, "20250101_093015", []models.RecordKey{1035, 1036, 1037})
	l.Observe(ctx, models.Success(abl1(), 1))
	l.Observe(ctx, models.NotFound(1036, 1))
	l.Observe(ctx, models.Failed(1037, "info-tab-not-found", 3))
	l.RunFinished(ctx, &pipeline.Result{RunID: "20250101_093015", Records: []models.RawRecord{abl1()}})

	path := filepath.Join(dir, "logs", "protein_details_scraping_log_20250101_093015.txt")
	assert.Equal(t, path, l.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "Protein Details Scraping Log - Started at 2025-01-01 09:30:15\nStarting from Protein ID: 1035\n"))
	assert.Contains(t, text, "[09:30:15] Protein ID 1035 (ABL1): Success\n")
	assert.Contains(t, text, "[09:30:15] Protein ID 1036 (Protein_1036): No data\n")
	assert.Contains(t, text, "[09:30:15] Protein ID 1037 (Protein_1037): No data\n  failed after 3 attempt(s): info-tab-not-found\n")
	assert.Contains(t, text, "Total proteins processed: 1\n")
	assert.Contains(t, text, "all_proteins_details_exploded_20250101_093015.csv")
}

func TestRunLogEmptyRunAndFatal(t *testing.T) {
	dir := t.TempDir()
	l := NewRunLog(dir, nil)
	ctx := context.Background()

	l.RunStarted(ctx, "r1", nil)
	l.RunFinished(ctx, &pipeline.Result{RunID: "r1"})
	l.Fatal(errors.New("failed to launch browser session"))

	data, err := os.ReadFile(RunLogPath(dir, "r1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[WARNING] No results to combine")
	assert.Contains(t, string(data), "Fatal error: failed to launch browser session")
}

func TestRunLogWithoutStartIsNoop(t *testing.T) {
	dir := t.TempDir()
	l := NewRunLog(dir, nil)
	l.Observe(context.Background(), models.NotFound(1, 1))

	_, err := os.Stat(filepath.Join(dir, "logs"))
	assert.True(t, os.IsNotExist(err))
}
