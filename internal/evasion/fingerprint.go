package evasion

import (
	"math/rand"
	"time"
)

const (
	MinViewportWidth  = 1050
	MaxViewportWidth  = 1920
	MinViewportHeight = 800
	MaxViewportHeight = 1080
)

var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
}

type Geolocation struct {
	Latitude  float64
	Longitude float64
}

// Fingerprint is the set of browser identity parameters presented to the
// target host, shared by the browser context and the challenge client.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	WindowWidth    int
	WindowHeight   int
	Locale         string
	TimezoneID     string
	Geolocation    Geolocation
	Headers        map[string]string
}

// NewFingerprint draws a randomized desktop fingerprint. An empty userAgents
// falls back to DefaultUserAgents.
func NewFingerprint(rng *rand.Rand, userAgents []string) Fingerprint {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}

	return Fingerprint{
		UserAgent:      userAgents[rng.Intn(len(userAgents))],
		ViewportWidth:  randInt(rng, MinViewportWidth, MaxViewportWidth),
		ViewportHeight: randInt(rng, MinViewportHeight, MaxViewportHeight),
		WindowWidth:    randInt(rng, MinViewportWidth, MaxViewportWidth),
		WindowHeight:   randInt(rng, MinViewportHeight, MaxViewportHeight),
		Locale:         "en-US",
		TimezoneID:     "America/New_York",
		Geolocation:    Geolocation{Latitude: 40.7128, Longitude: -74.0060},
		Headers:        DefaultHeaders(),
	}
}

func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
		"sec-ch-ua":                 `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"macOS"`,
	}
}

// RandomDelay returns a duration drawn uniformly from [min, max].
func RandomDelay(min, max time.Duration) time.Duration {
	return randomDelay(nil, min, max)
}

func randomDelay(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	delta := int64(max - min)
	var n int64
	if rng != nil {
		n = rng.Int63n(delta + 1)
	} else {
		n = rand.Int63n(delta + 1)
	}
	return min + time.Duration(n)
}

// randInt returns an int in [min, max].
func randInt(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.Intn(max-min+1)
}
