package challenge

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"golang.org/x/time/rate"
)

// Client fetches a URL outside the browser and returns the status code and
// the session cookies the host set for it.
type Client interface {
	Get(ctx context.Context, rawURL string) (int, []models.Cookie, error)
}

type ClientOptions struct {
	Timeout time.Duration
	// RatePerSec bounds requests to the challenge host.
	RatePerSec float64
	UserAgent  string
	Headers    map[string]string
}

// HTTPClient is a resty client whose transport mimics a desktop browser's
// TLS handshake so the challenge provider lets it through.
type HTTPClient struct {
	http *resty.Client
	jar  *cookiejar.Jar
}

func NewHTTPClient(opts ClientOptions) (*HTTPClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetTimeout(opts.Timeout)

	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &HTTPClient{http: client, jar: jar}, nil
}

func (c *HTTPClient) Get(ctx context.Context, rawURL string) (int, []models.Cookie, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		return 0, nil, fmt.Errorf("challenge request failed: %w", err)
	}

	// The jar only reports name and value; the browser scopes them to the
	// page URL.
	var cookies []models.Cookie
	for _, hc := range c.jar.Cookies(u) {
		cookies = append(cookies, models.Cookie{Name: hc.Name, Value: hc.Value})
	}

	return res.StatusCode(), cookies, nil
}
