// Package postprocess turns fetched records into exploded output rows.
package postprocess

import (
	"strconv"
	"strings"

	"github.com/maltedev/phosphosite-scraper/internal/models"
)

var Header = []string{
	"Protein_ID",
	"PhosphoSite_Protein_Name",
	"Alt_Name",
	"UniProt_ID",
	"Gene_Symbols",
	"Original_Alt_Names",
}

// Table is a header plus string cells; absent values are empty cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// SplitAltNames splits a semicolon-delimited list, trimming each value and
// dropping empties.
func SplitAltNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Explode yields one row per alternate name of each record, in record
// order. A record without alternate names yields a single row with no
// AltName.
func Explode(records []models.RawRecord) []models.ExplodedRow {
	rows := make([]models.ExplodedRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, ExplodeRecord(r)...)
	}
	return rows
}

func ExplodeRecord(r models.RawRecord) []models.ExplodedRow {
	base := models.ExplodedRow{
		Key:              r.Key,
		DisplayName:      r.DisplayName,
		ExternalID:       r.ExternalID,
		GeneSymbols:      r.GeneSymbols,
		OriginalAltNames: r.AltNames,
	}

	if r.AltNames == nil {
		return []models.ExplodedRow{base}
	}

	names := SplitAltNames(*r.AltNames)
	if len(names) == 0 {
		return []models.ExplodedRow{base}
	}

	rows := make([]models.ExplodedRow, 0, len(names))
	for _, name := range names {
		row := base
		row.AltName = &name
		rows = append(rows, row)
	}
	return rows
}

// Aggregate converts rows to a table, preserving order and every column.
func Aggregate(rows []models.ExplodedRow) Table {
	t := Table{
		Header: append([]string(nil), Header...),
		Rows:   make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(int(r.Key)),
			models.Deref(r.DisplayName),
			models.Deref(r.AltName),
			models.Deref(r.ExternalID),
			models.Deref(r.GeneSymbols),
			models.Deref(r.OriginalAltNames),
		})
	}
	return t
}

// Records returns the records of the successful outcomes, in order.
func Records(outcomes []models.Outcome) []models.RawRecord {
	var out []models.RawRecord
	for _, o := range outcomes {
		if o.OK() {
			out = append(out, *o.Record)
		}
	}
	return out
}
