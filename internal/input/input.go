// Package input turns user-supplied ranges, lists and tabular files into an
// ordered list of record keys.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/maltedev/phosphosite-scraper/internal/models"
)

const DefaultColumn = "Protein_ID"

var ErrNoKeys = errors.New("no record keys supplied")

// Range returns start..end inclusive.
func Range(start, end int) ([]models.RecordKey, error) {
	if start < 1 {
		return nil, fmt.Errorf("start id must be positive, got %d", start)
	}
	if end < start {
		return nil, fmt.Errorf("end id %d is before start id %d", end, start)
	}

	keys := make([]models.RecordKey, 0, end-start+1)
	for id := start; id <= end; id++ {
		keys = append(keys, models.RecordKey(id))
	}
	return keys, nil
}

// ParseList parses a comma, whitespace or newline separated list of keys.
func ParseList(s string) ([]models.RecordKey, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})

	keys := make([]models.RecordKey, 0, len(fields))
	for _, f := range fields {
		key, err := parseKey(f)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return Dedupe(keys), nil
}

// FromCSV reads keys from column of a CSV file with a header row. Blank
// cells are skipped.
func FromCSV(r io.Reader, column string) ([]models.RecordKey, error) {
	if column == "" {
		column = DefaultColumn
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoKeys
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in csv header", column)
	}

	var keys []models.RecordKey
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		if idx >= len(rec) || strings.TrimSpace(rec[idx]) == "" {
			continue
		}
		key, err := parseKey(rec[idx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return Dedupe(keys), nil
}

// Dedupe drops repeated keys, keeping the first occurrence.
func Dedupe(keys []models.RecordKey) []models.RecordKey {
	seen := make(map[models.RecordKey]struct{}, len(keys))
	out := make([]models.RecordKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func parseKey(s string) (models.RecordKey, error) {
	s = strings.TrimSpace(s)
	// Spreadsheet exports often write integer ids as floats.
	s = strings.TrimSuffix(s, ".0")

	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid record key %q", s)
	}
	key := models.RecordKey(id)
	if !key.Valid() {
		return 0, fmt.Errorf("record key must be positive, got %d", id)
	}
	return key, nil
}
