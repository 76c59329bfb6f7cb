// Package challenge clears the anti-automation interstitial in front of the
// catalog by solving it out of band and moving the resulting session into
// the browser.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/browser"
)

// MarkerSelector matches the challenge widget frame.
const MarkerSelector = "iframe[src*='challenges.cloudflare.com']"

const defaultSettleTimeout = 30 * time.Second

// injectTokenJS writes a solved token into every response field and submits
// the enclosing form, if any.
const injectTokenJS = `(token) => {
	const inputs = document.querySelectorAll('[name="cf-turnstile-response"]');
	inputs.forEach((input) => { input.value = token; });
	const form = inputs.length ? inputs[0].closest('form') : null;
	if (form) { form.submit(); }
	return inputs.length;
}`

var errNoSiteKey = errors.New("turnstile site key not found")

type Bypasser struct {
	client        Client
	solver        TurnstileSolver
	settleTimeout time.Duration
	logger        *slog.Logger
}

// NewBypasser returns a Bypasser. solver may be nil, which disables the
// Turnstile fallback.
func NewBypasser(client Client, solver TurnstileSolver, logger *slog.Logger) *Bypasser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bypasser{
		client:        client,
		solver:        solver,
		settleTimeout: defaultSettleTimeout,
		logger:        logger.With("component", "challenge_bypass"),
	}
}

// Detect reports whether the page is showing the challenge widget.
func (b *Bypasser) Detect(page browser.Page) bool {
	el, err := page.QuerySelector(MarkerSelector)
	if err != nil {
		b.logger.Debug("challenge marker query failed", "error", err)
		return false
	}
	return el != nil
}

// TryBypass clears a challenge on page. It returns false when there was no
// challenge or when clearing it failed; failures are logged and the caller
// continues with the page as it is.
func (b *Bypasser) TryBypass(ctx context.Context, page browser.Page) bool {
	if !b.Detect(page) {
		return false
	}

	pageURL := page.URL()
	b.logger.Info("challenge detected, attempting bypass", "url", pageURL)

	err := b.viaClient(ctx, page, pageURL)
	if err == nil {
		b.logger.Info("challenge bypassed", "url", pageURL)
		return true
	}
	b.logger.Warn("challenge bypass failed", "url", pageURL, "error", err)

	if b.solver == nil {
		return false
	}

	if err := b.viaSolver(ctx, page, pageURL); err != nil {
		b.logger.Warn("turnstile fallback failed", "url", pageURL, "error", err)
		return false
	}
	b.logger.Info("challenge solved via turnstile fallback", "url", pageURL)
	return true
}

func (b *Bypasser) viaClient(ctx context.Context, page browser.Page, pageURL string) error {
	status, cookies, err := b.client.Get(ctx, pageURL)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}

	if err := page.AddCookies(cookies); err != nil {
		return fmt.Errorf("failed to transfer cookies: %w", err)
	}
	b.logger.Debug("transferred challenge cookies", "count", len(cookies))

	if err := page.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	if err := page.WaitForLoadState(browser.LoadStateNetworkIdle, b.settleTimeout); err != nil {
		return fmt.Errorf("page did not settle: %w", err)
	}
	return nil
}

func (b *Bypasser) viaSolver(ctx context.Context, page browser.Page, pageURL string) error {
	html, err := page.Content()
	if err != nil {
		return fmt.Errorf("failed to read challenge page: %w", err)
	}

	siteKey := ExtractSiteKey(html)
	if siteKey == "" {
		return errNoSiteKey
	}

	token, err := b.solver.SolveTurnstile(ctx, siteKey, pageURL)
	if err != nil {
		return err
	}

	if _, err := page.Evaluate(injectTokenJS, token); err != nil {
		return fmt.Errorf("failed to inject token: %w", err)
	}
	if err := page.WaitForLoadState(browser.LoadStateNetworkIdle, b.settleTimeout); err != nil {
		return fmt.Errorf("page did not settle: %w", err)
	}
	if b.Detect(page) {
		return errors.New("challenge still present after token submission")
	}
	return nil
}
