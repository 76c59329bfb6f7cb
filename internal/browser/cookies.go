package browser

import (
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/playwright-community/playwright-go"
)

func fromPlaywrightCookies(cookies []playwright.Cookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		mc := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			mc.SameSite = string(*c.SameSite)
		}
		out = append(out, mc)
	}
	return out
}

// toPlaywrightCookies converts cookies for BrowserContext.AddCookies.
// Playwright requires either a url or a domain+path pair; cookies without a
// domain are bound to scopeURL.
func toPlaywrightCookies(cookies []models.Cookie, scopeURL string) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
		}

		if c.Domain == "" {
			if scopeURL == "" {
				continue
			}
			oc.URL = playwright.String(scopeURL)
		} else {
			path := c.Path
			if path == "" {
				path = "/"
			}
			oc.Domain = playwright.String(c.Domain)
			oc.Path = playwright.String(path)
		}

		if c.Expires != 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			oc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			oc.Secure = playwright.Bool(true)
		}
		if ss := sameSite(c.SameSite); ss != nil {
			oc.SameSite = ss
		}

		out = append(out, oc)
	}
	return out
}

func sameSite(v string) *playwright.SameSiteAttribute {
	switch v {
	case "Strict":
		return playwright.SameSiteAttributeStrict
	case "Lax":
		return playwright.SameSiteAttributeLax
	case "None":
		return playwright.SameSiteAttributeNone
	default:
		return nil
	}
}
