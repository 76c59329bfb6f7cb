package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/stealth"
	"github.com/maltedev/phosphosite-scraper/internal/evasion"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	WindowWidth    int
	WindowHeight   int
	TimezoneID     string
	Locale         string
	Latitude       float64
	Longitude      float64
	ProxyServer    string
	ExtraHeaders   map[string]string
	Stealth        bool
}

func DefaultOptions() *Options {
	fp := evasion.NewFingerprint(nil, nil)
	return OptionsFromFingerprint(fp, true, 30*time.Second)
}

// OptionsFromFingerprint builds launch options presenting fp.
func OptionsFromFingerprint(fp evasion.Fingerprint, headless bool, timeout time.Duration) *Options {
	return &Options{
		Headless:       headless,
		Timeout:        timeout,
		UserAgent:      fp.UserAgent,
		ViewportWidth:  fp.ViewportWidth,
		ViewportHeight: fp.ViewportHeight,
		WindowWidth:    fp.WindowWidth,
		WindowHeight:   fp.WindowHeight,
		TimezoneID:     fp.TimezoneID,
		Locale:         fp.Locale,
		Latitude:       fp.Geolocation.Latitude,
		Longitude:      fp.Geolocation.Longitude,
		ExtraHeaders:   fp.Headers,
		Stealth:        true,
	}
}

func launchArgs(opts *Options) []string {
	return []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-blink-features=AutomationControlled",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-site-isolation-trials",
		"--disable-web-security",
		"--disable-setuid-sandbox",
		"--disable-webgl",
		"--disable-threaded-animation",
		"--disable-threaded-scrolling",
		"--disable-in-process-stack-traces",
		"--disable-histogram-customizer",
		"--disable-extensions",
		"--metrics-recording-only",
		"--no-first-run",
		"--password-store=basic",
		"--use-mock-keychain",
		fmt.Sprintf("--window-size=%d,%d", opts.WindowWidth, opts.WindowHeight),
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args:     launchArgs(opts),
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		Geolocation: &playwright.Geolocation{
			Latitude:  opts.Latitude,
			Longitude: opts.Longitude,
		},
		Permissions:      []string{"geolocation"},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	logger := slog.Default().With("component", "browser")

	if opts.Stealth {
		if err := context.AddInitScript(playwright.Script{Content: playwright.String(stealth.JS)}); err != nil {
			logger.Warn("failed to install stealth script", "error", err)
		}
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

func (b *Browser) NewPage() (Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	ms := float64(b.timeout.Milliseconds())
	page.SetDefaultTimeout(ms)
	page.SetDefaultNavigationTimeout(ms)

	return WrapPage(page, b.timeout), nil
}

// Cookies returns every cookie held by the browser context.
func (b *Browser) Cookies() ([]models.Cookie, error) {
	cookies, err := b.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return fromPlaywrightCookies(cookies), nil
}

// AddCookies installs previously persisted cookies. Domainless cookies are
// skipped since there is no page URL to scope them to.
func (b *Browser) AddCookies(cookies []models.Cookie) error {
	pc := toPlaywrightCookies(cookies, "")
	if len(pc) == 0 {
		return nil
	}
	if err := b.context.AddCookies(pc); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
