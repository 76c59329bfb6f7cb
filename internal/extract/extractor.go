package extract

import (
	"log/slog"
	"strings"

	"github.com/maltedev/phosphosite-scraper/internal/browser"
)

// Transform maps the raw text of a match to the field value.
type Transform func(string) string

func TrimSpace(s string) string {
	return strings.TrimSpace(s)
}

// StripLabel removes every occurrence of label and trims the result.
func StripLabel(label string) Transform {
	return func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, label, ""))
	}
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With("component", "field_extractor")}
}

// Field returns the transformed text of the first locator yielding
// non-empty text, or nil. A missing field is a data gap, not an error.
func (e *Extractor) Field(page browser.Page, name string, locators []Locator, transform Transform) *string {
	if transform == nil {
		transform = TrimSpace
	}

	var value string
	_, loc := e.chain(locators).Walk(page, func(loc Locator, el browser.Element) bool {
		text, err := el.InnerText()
		if err != nil {
			e.logger.Debug("reading text failed", "locator", loc.String(), "error", err)
			return false
		}
		value = transform(text)
		return value != ""
	})
	if loc == nil {
		e.logger.Debug("field not found", "field", name, "strategies", len(locators))
		return nil
	}

	e.logger.Debug("field found", "field", name, "locator", loc.String())
	return &value
}

// Element returns the first element any locator matches.
func (e *Extractor) Element(page browser.Page, locators []Locator) (browser.Element, Locator) {
	return e.chain(locators).Walk(page, nil)
}

func (e *Extractor) chain(locators []Locator) Chain {
	return Chain{Locators: locators, Logger: e.logger}
}
