package models

import (
	"fmt"
	"strconv"
)

// RecordKey identifies a catalog entry. Valid keys are positive.
type RecordKey int

func (k RecordKey) Valid() bool {
	return k > 0
}

func (k RecordKey) String() string {
	return strconv.Itoa(int(k))
}

// RawRecord is what a successful fetch produces for one key. Fields the page
// did not carry stay nil.
type RawRecord struct {
	Key         RecordKey `json:"protein_id"`
	DisplayName *string   `json:"phosphosite_protein_name,omitempty"`
	AltNames    *string   `json:"alt_names,omitempty"`
	ExternalID  *string   `json:"uniprot_id,omitempty"`
	GeneSymbols *string   `json:"gene_symbols,omitempty"`
}

// Name returns the display name, falling back to Protein_<key>.
func (r RawRecord) Name() string {
	if r.DisplayName != nil && *r.DisplayName != "" {
		return *r.DisplayName
	}
	return fmt.Sprintf("Protein_%d", r.Key)
}

// ExplodedRow is one output row; a record with several alternate names
// yields one row per name.
type ExplodedRow struct {
	Key              RecordKey `json:"protein_id"`
	DisplayName      *string   `json:"phosphosite_protein_name,omitempty"`
	AltName          *string   `json:"alt_name,omitempty"`
	ExternalID       *string   `json:"uniprot_id,omitempty"`
	GeneSymbols      *string   `json:"gene_symbols,omitempty"`
	OriginalAltNames *string   `json:"original_alt_names,omitempty"`
}

// Cookie mirrors the browser engine's cookie export so persisted session
// files can be fed straight back into a browser context.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
