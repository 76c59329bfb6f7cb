// Package pipeline runs the fetcher over an ordered list of keys with a
// single browser session.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/browser"
	"github.com/maltedev/phosphosite-scraper/internal/evasion"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
	"github.com/maltedev/phosphosite-scraper/internal/session"
)

// Session is a live browser session: one context and its cookie jar.
type Session interface {
	NewPage() (browser.Page, error)
	Cookies() ([]models.Cookie, error)
	AddCookies(cookies []models.Cookie) error
	Close() error
}

// Launcher starts the browser session for a run.
type Launcher func(ctx context.Context) (Session, error)

type RecordFetcher interface {
	Fetch(ctx context.Context, key models.RecordKey, page browser.Page, maxAttempts int) models.Outcome
}

// CookieStore restores and persists session cookies. Both calls are
// best-effort.
type CookieStore interface {
	Restore(jar session.Jar) int
	Persist(jar session.Jar) bool
}

type Limiter interface {
	Wait(ctx context.Context) error
}

type Humanizer interface {
	Simulate(page evasion.Page)
}

// feedback is implemented by limiters that adapt to outcomes.
type feedback interface {
	RecordSuccess()
	RecordError()
}

type Config struct {
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 3}
}

type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Records  []models.RawRecord
	Rows     []models.ExplodedRow
	Outcomes []models.Outcome
}

// Counts tallies outcomes by status.
func (r *Result) Counts() (success, notFound, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case models.StatusSuccess:
			success++
		case models.StatusNotFound:
			notFound++
		case models.StatusFailed:
			failed++
		}
	}
	return success, notFound, failed
}

type Driver struct {
	cfg       Config
	launch    Launcher
	fetcher   RecordFetcher
	store     CookieStore
	limiter   Limiter
	humanizer Humanizer
	observers []Observer
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	lastRunID string
	runSeq    int
}

func NewDriver(cfg Config, launch Launcher, fetcher RecordFetcher, store CookieStore, logger *slog.Logger) *Driver {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:     cfg,
		launch:  launch,
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
		logger:  logger.With("component", "pipeline"),
	}
}

func (d *Driver) WithLimiter(l Limiter) *Driver {
	d.limiter = l
	return d
}

func (d *Driver) WithHumanizer(h Humanizer) *Driver {
	d.humanizer = h
	return d
}

func (d *Driver) AddObserver(o Observer) *Driver {
	d.observers = append(d.observers, o)
	return d
}

// Run fetches keys strictly in order. Per-key failures are recorded as
// outcomes and never stop the run; only failing to start the session or
// open a page is fatal. Cancellation is honoured between keys, in which
// case the partial result is returned together with the context error.
func (d *Driver) Run(ctx context.Context, keys []models.RecordKey) (*Result, error) {
	started := d.now()
	result := &Result{
		RunID:   d.nextRunID(started),
		Started: started,
	}
	log := d.logger.With("run_id", result.RunID)
	log.Info("starting run", "keys", len(keys))

	d.notifyStart(ctx, result.RunID, keys)

	var sess Session
	defer func() {
		if sess != nil {
			if err := sess.Close(); err != nil {
				log.Warn("failed to close browser session", "error", err)
			}
		}
	}()

	var runErr error
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", "processed", i, "remaining", len(keys)-i)
			runErr = err
			break
		}

		if sess == nil {
			s, err := d.launch(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to launch browser session: %w", err)
			}
			sess = s
			restored := d.store.Restore(sess)
			log.Info("browser session started", "restored_cookies", restored)
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				log.Warn("run cancelled", "processed", i, "remaining", len(keys)-i)
				runErr = err
				break
			}
		}

		outcome, err := d.process(ctx, sess, key)
		if err != nil {
			return nil, err
		}

		log.Info("key processed", "protein_id", int(key), "status", outcome.Status.String(),
			"attempts", outcome.Attempts, "progress", fmt.Sprintf("%d/%d", i+1, len(keys)))

		result.Outcomes = append(result.Outcomes, outcome)
		d.feedback(outcome)
		d.notify(ctx, outcome)
	}

	result.Records = postprocess.Records(result.Outcomes)
	result.Rows = postprocess.Explode(result.Records)
	result.Finished = d.now()

	success, notFound, failed := result.Counts()
	log.Info("run finished", "success", success, "not_found", notFound, "failed", failed,
		"rows", len(result.Rows), "duration", result.Finished.Sub(result.Started))

	d.notifyFinish(ctx, result)
	return result, runErr
}

func (d *Driver) process(ctx context.Context, sess Session, key models.RecordKey) (models.Outcome, error) {
	page, err := sess.NewPage()
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			d.logger.Debug("failed to close page", "protein_id", int(key), "error", err)
		}
	}()

	outcome := d.fetch(ctx, key, page)

	d.store.Persist(sess)

	if d.humanizer != nil {
		d.humanizer.Simulate(page)
	}

	return outcome, nil
}

// fetch turns a panicking fetch into a failed outcome.
func (d *Driver) fetch(ctx context.Context, key models.RecordKey, page browser.Page) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("fetch panicked", "protein_id", int(key), "panic", r)
			outcome = models.Failed(key, fmt.Sprintf("panic: %v", r), 0)
		}
	}()
	return d.fetcher.Fetch(ctx, key, page, d.cfg.MaxAttempts)
}

func (d *Driver) feedback(o models.Outcome) {
	fb, ok := d.limiter.(feedback)
	if !ok {
		return
	}
	if o.Status == models.StatusFailed {
		fb.RecordError()
	} else {
		fb.RecordSuccess()
	}
}

// RunID names a run after its start time, to the millisecond.
func RunID(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// nextRunID never hands out the same id twice, even when two runs start
// within the same millisecond.
func (d *Driver) nextRunID(t time.Time) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := RunID(t)
	if id == d.lastRunID {
		d.runSeq++
	} else {
		d.lastRunID, d.runSeq = id, 0
	}
	if d.runSeq > 0 {
		return fmt.Sprintf("%s-%d", id, d.runSeq)
	}
	return id
}
