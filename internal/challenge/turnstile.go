package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	api2captcha "github.com/2captcha/2captcha-go"
)

// TurnstileSolver obtains a Turnstile response token for a page.
type TurnstileSolver interface {
	SolveTurnstile(ctx context.Context, siteKey, pageURL string) (string, error)
}

// TwoCaptchaSolver solves Turnstile widgets through the 2captcha service.
type TwoCaptchaSolver struct {
	client *api2captcha.Client
	logger *slog.Logger
}

func NewTwoCaptchaSolver(apiKey string, timeout time.Duration, logger *slog.Logger) *TwoCaptchaSolver {
	if logger == nil {
		logger = slog.Default()
	}

	client := api2captcha.NewClient(apiKey)
	client.DefaultTimeout = int(timeout.Seconds())
	client.PollingInterval = 5

	return &TwoCaptchaSolver{
		client: client,
		logger: logger.With("component", "2captcha"),
	}
}

func (s *TwoCaptchaSolver) SolveTurnstile(ctx context.Context, siteKey, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.logger.Info("solving turnstile", "site_key", siteKey, "url", pageURL)
	start := time.Now()

	captcha := api2captcha.CloudflareTurnstile{
		SiteKey: siteKey,
		Url:     pageURL,
	}
	code, captchaID, err := s.client.Solve(captcha.ToRequest())
	if err != nil {
		return "", fmt.Errorf("failed to solve turnstile (captcha %s): %w", captchaID, err)
	}

	s.logger.Info("turnstile solved", "site_key", siteKey, "duration", time.Since(start))
	return code, nil
}

var siteKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`class="[^"]*cf-turnstile[^"]*"[^>]*data-sitekey=['"]([^'"]+)['"]`),
	regexp.MustCompile(`data-sitekey=['"]([^'"]+)['"][^>]*class="[^"]*cf-turnstile`),
	regexp.MustCompile(`turnstile\.render\([^)]*sitekey['"]?\s*:\s*['"]([^'"]+)['"]`),
	regexp.MustCompile(`challenges\.cloudflare\.com/[^"']*?/(0x[0-9A-Za-z_-]{10,})/`),
}

// ExtractSiteKey finds the Turnstile site key in a challenge page, or "".
func ExtractSiteKey(html string) string {
	for _, re := range siteKeyPatterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if key := strings.TrimSpace(m[1]); key != "" {
				return key
			}
		}
	}
	return ""
}
