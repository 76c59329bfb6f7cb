package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/phosphosite-scraper/internal/config"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every file the command touches at a temp dir and turns
// the outbox off.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_HOST", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("SESSION_COOKIE_FILE", filepath.Join(dir, "cookies.json"))
	t.Setenv("SESSION_PROGRESS_FILE", "")
	return dir
}

func TestRunRejectsBadIDs(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"-ids", "1035,abc"}, &out))
	assert.Equal(t, 2, run([]string{"-no-such-flag"}, &out))
	assert.Empty(t, out.String())
}

func TestRunResumeWithNothingLeft(t *testing.T) {
	dir := isolate(t)
	state := filepath.Join(dir, "progress.json")

	ps, err := storage.NewProgressStore(state, nil)
	require.NoError(t, err)
	require.NoError(t, ps.Record(models.NotFound(1035, 1)))
	require.NoError(t, ps.Record(models.Success(models.RawRecord{Key: 1036}, 1)))

	var out bytes.Buffer
	code := run([]string{"-ids", "1035,1036", "-resume", "-state", state}, &out)

	assert.Equal(t, 0, code)
	assert.Empty(t, out.String())
	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err))
}

func TestSelectKeys(t *testing.T) {
	cfg := &config.Config{Scraper: config.ScraperConfig{StartID: 5, EndID: 7}}

	keys, err := selectKeys(cfg, "9,8,9", "", "")
	require.NoError(t, err)
	assert.Equal(t, []models.RecordKey{9, 8}, keys)

	file := filepath.Join(t.TempDir(), "ids.csv")
	require.NoError(t, os.WriteFile(file, []byte("Protein_ID\n12\n11\n"), 0o644))
	keys, err = selectKeys(cfg, "", file, "Protein_ID")
	require.NoError(t, err)
	assert.Equal(t, []models.RecordKey{12, 11}, keys)

	keys, err = selectKeys(cfg, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, []models.RecordKey{5, 6, 7}, keys)

	_, err = selectKeys(cfg, "", filepath.Join(t.TempDir(), "missing.csv"), "Protein_ID")
	assert.Error(t, err)
}
