package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/evasion"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.ViewportWidth < evasion.MinViewportWidth || opts.ViewportWidth > evasion.MaxViewportWidth {
		t.Errorf("Viewport width out of range: %d", opts.ViewportWidth)
	}

	if opts.Locale != "en-US" {
		t.Errorf("Expected locale to be en-US, got %s", opts.Locale)
	}

	assert.True(t, opts.Stealth)
}

func TestLaunchArgsWindowSize(t *testing.T) {
	args := launchArgs(&Options{WindowWidth: 1280, WindowHeight: 900})
	assert.Contains(t, args, "--window-size=1280,900")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	for _, a := range args {
		assert.True(t, strings.HasPrefix(a, "--"))
	}
}

func TestToPlaywrightCookies(t *testing.T) {
	cookies := []models.Cookie{
		{Name: "cf_clearance", Value: "abc"},
		{Name: "JSESSIONID", Value: "xyz", Domain: "www.phosphosite.org", Expires: -1, HTTPOnly: true, SameSite: "Lax"},
	}

	t.Run("scoped to url", func(t *testing.T) {
		out := toPlaywrightCookies(cookies, "https://www.phosphosite.org/proteinAction.action?id=1")
		require.Len(t, out, 2)

		require.NotNil(t, out[0].URL)
		assert.Equal(t, "https://www.phosphosite.org/proteinAction.action?id=1", *out[0].URL)
		assert.Nil(t, out[0].Domain)
		assert.Nil(t, out[0].Expires)

		require.NotNil(t, out[1].Domain)
		assert.Equal(t, "www.phosphosite.org", *out[1].Domain)
		assert.Equal(t, "/", *out[1].Path)
		assert.Equal(t, -1.0, *out[1].Expires)
		assert.True(t, *out[1].HttpOnly)
		assert.Equal(t, playwright.SameSiteAttributeLax, out[1].SameSite)
	})

	t.Run("domainless dropped without url", func(t *testing.T) {
		out := toPlaywrightCookies(cookies, "")
		require.Len(t, out, 1)
		assert.Equal(t, "JSESSIONID", out[0].Name)
	})
}

func TestFromPlaywrightCookies(t *testing.T) {
	in := []playwright.Cookie{{
		Name:     "a",
		Value:    "1",
		Domain:   ".phosphosite.org",
		Path:     "/",
		Expires:  1700000000,
		HttpOnly: true,
		Secure:   true,
		SameSite: playwright.SameSiteAttributeNone,
	}}

	out := fromPlaywrightCookies(in)
	require.Len(t, out, 1)
	assert.Equal(t, models.Cookie{
		Name:     "a",
		Value:    "1",
		Domain:   ".phosphosite.org",
		Path:     "/",
		Expires:  1700000000,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "None",
	}, out[0])
}
