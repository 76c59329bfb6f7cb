// Package fetcher extracts a single catalog record from a live page.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/browser"
	"github.com/maltedev/phosphosite-scraper/internal/evasion"
	"github.com/maltedev/phosphosite-scraper/internal/extract"
	"github.com/maltedev/phosphosite-scraper/internal/models"
)

var (
	ErrInfoTabNotFound = errors.New("info-tab-not-found")
	ErrNoRecord        = errors.New("no protein record found")
)

var breadcrumbPattern = regexp.MustCompile(`>\s*Protein\s*>\s*([A-Za-z0-9_\-]+)`)

// Bypasser clears an anti-automation challenge if the page shows one.
type Bypasser interface {
	TryBypass(ctx context.Context, page browser.Page) bool
}

type Humanizer interface {
	Simulate(page evasion.Page)
}

type Config struct {
	BaseURL        string
	LoadTimeout    time.Duration
	RetryDelay     time.Duration
	PreTabPause    time.Duration
	PostClickPause time.Duration
	BypassPauseMin time.Duration
	BypassPauseMax time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://www.phosphosite.org",
		LoadTimeout:    30 * time.Second,
		RetryDelay:     2 * time.Second,
		PreTabPause:    2 * time.Second,
		PostClickPause: 3 * time.Second,
		BypassPauseMin: 5 * time.Second,
		BypassPauseMax: 8 * time.Second,
	}
}

// RecordURL is the detail page for key.
func (c Config) RecordURL(key models.RecordKey) string {
	return fmt.Sprintf("%s/proteinAction.action?id=%d&showAllSites=true", strings.TrimRight(c.BaseURL, "/"), key)
}

type Fetcher struct {
	cfg       Config
	bypass    Bypasser
	humanizer Humanizer
	extractor *extract.Extractor
	sleep     func(time.Duration)
	logger    *slog.Logger
}

func New(cfg Config, bypass Bypasser, humanizer Humanizer, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:       cfg,
		bypass:    bypass,
		humanizer: humanizer,
		extractor: extract.NewExtractor(logger),
		sleep:     time.Sleep,
		logger:    logger.With("component", "record_fetcher"),
	}
}

// WithSleep replaces the pause function; tests pass a no-op.
func (f *Fetcher) WithSleep(sleep func(time.Duration)) *Fetcher {
	f.sleep = sleep
	return f
}

// Fetch extracts the record for key, restarting from navigation on any
// error up to maxAttempts times. A missing record is definitive and is
// never retried. The page is borrowed and left open.
func (f *Fetcher) Fetch(ctx context.Context, key models.RecordKey, page browser.Page, maxAttempts int) models.Outcome {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log := f.logger.With("protein_id", int(key), "attempt", attempt, "max_attempts", maxAttempts)

		record, err := f.attempt(ctx, key, page)
		if errors.Is(err, ErrNoRecord) {
			log.Info("no protein record found")
			return models.NotFound(key, attempt)
		}
		if err == nil {
			log.Info("record extracted", "name", record.Name())
			return models.Success(record, attempt)
		}

		lastErr = err
		log.Warn("attempt failed", "error", err)
		if attempt < maxAttempts {
			f.sleep(f.cfg.RetryDelay)
		}
	}

	return models.Failed(key, lastErr.Error(), maxAttempts)
}

func (f *Fetcher) attempt(ctx context.Context, key models.RecordKey, page browser.Page) (models.RawRecord, error) {
	if err := page.Goto(f.cfg.RecordURL(key)); err != nil {
		return models.RawRecord{}, fmt.Errorf("navigation failed: %w", err)
	}

	if f.bypass != nil && f.bypass.TryBypass(ctx, page) {
		f.sleep(evasion.RandomDelay(f.cfg.BypassPauseMin, f.cfg.BypassPauseMax))
	}

	if f.humanizer != nil {
		f.humanizer.Simulate(page)
	}

	if err := page.WaitForLoadState(browser.LoadStateDOMContentLoaded, f.cfg.LoadTimeout); err != nil {
		return models.RawRecord{}, fmt.Errorf("page load failed: %w", err)
	}

	missing, err := f.noRecord(page)
	if err != nil {
		return models.RawRecord{}, err
	}
	if missing {
		return models.RawRecord{}, ErrNoRecord
	}

	record := models.RawRecord{
		Key:         key,
		DisplayName: f.displayName(page),
	}

	f.sleep(f.cfg.PreTabPause)
	tab, loc := f.extractor.Element(page, infoTabLocators)
	if tab == nil {
		return models.RawRecord{}, ErrInfoTabNotFound
	}
	f.logger.Debug("found info tab", "protein_id", int(key), "locator", loc.String())
	if err := tab.Click(); err != nil {
		return models.RawRecord{}, fmt.Errorf("failed to open info tab: %w", err)
	}
	f.sleep(f.cfg.PostClickPause)

	record.AltNames = f.extractor.Field(page, "alt_names", altNamesLocators, extract.StripLabel(altNamesLabel))
	record.ExternalID = f.extractor.Field(page, "uniprot_id", externalIDLocators, extract.TrimSpace)
	record.GeneSymbols = f.extractor.Field(page, "gene_symbols", geneSymbolsLocators, extract.StripLabel(geneSymbolsLabel))

	return record, nil
}

func (f *Fetcher) noRecord(page browser.Page) (bool, error) {
	el, err := page.QuerySelector(noRecordSelector)
	if err != nil {
		return false, fmt.Errorf("failed to query no-record marker: %w", err)
	}
	if el == nil {
		return false, nil
	}
	text, err := el.InnerText()
	if err != nil {
		return false, fmt.Errorf("failed to read no-record marker: %w", err)
	}
	return strings.Contains(text, noRecordText), nil
}

// displayName reads the record name from the header breadcrumb. A missing
// or unexpected breadcrumb leaves the name unset.
func (f *Fetcher) displayName(page browser.Page) *string {
	el, err := page.QuerySelector(breadcrumbSel)
	if err != nil || el == nil {
		return nil
	}
	text, err := el.InnerText()
	if err != nil {
		return nil
	}
	m := breadcrumbPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	return models.StringPtr(strings.TrimSpace(m[1]))
}
