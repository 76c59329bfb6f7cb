// Package output writes run results to disk: exploded CSV files and the
// plain-text run log.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._\-]+`)

// SanitizeName makes a display name safe to use as a file name.
func SanitizeName(name string) string {
	name = unsafeName.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "unnamed"
	}
	return name
}

// EncodeCSV renders a table with its header row.
func EncodeCSV(t postprocess.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes t to path through a temporary file and a rename.
func WriteCSV(path string, t postprocess.Table) error {
	data, err := EncodeCSV(t)
	if err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to move csv into place: %w", err)
	}
	return nil
}
