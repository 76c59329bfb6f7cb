package evasion

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPage struct {
	moves    [][2]float64
	wheels   []float64
	keys     []string
	viewport [][2]int
	failOn   string
}

func (p *recordingPage) MoveMouse(x, y float64) error {
	if p.failOn == "move" {
		return errors.New("mouse detached")
	}
	p.moves = append(p.moves, [2]float64{x, y})
	return nil
}

func (p *recordingPage) Wheel(_, dy float64) error {
	p.wheels = append(p.wheels, dy)
	return nil
}

func (p *recordingPage) PressKey(key string) error {
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPage) SetViewportSize(w, h int) error {
	p.viewport = append(p.viewport, [2]int{w, h})
	return nil
}

func TestRandomDelay(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := RandomDelay(3*time.Second, 7*time.Second)
		require.GreaterOrEqual(t, d, 3*time.Second)
		require.LessOrEqual(t, d, 7*time.Second)
	}

	assert.Equal(t, 2*time.Second, RandomDelay(2*time.Second, 2*time.Second))
	assert.Equal(t, 5*time.Second, RandomDelay(5*time.Second, time.Second))
}

func TestNewFingerprint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		fp := NewFingerprint(rng, nil)
		assert.Contains(t, DefaultUserAgents, fp.UserAgent)
		assert.GreaterOrEqual(t, fp.ViewportWidth, MinViewportWidth)
		assert.LessOrEqual(t, fp.ViewportWidth, MaxViewportWidth)
		assert.GreaterOrEqual(t, fp.ViewportHeight, MinViewportHeight)
		assert.LessOrEqual(t, fp.ViewportHeight, MaxViewportHeight)
		assert.Equal(t, "en-US", fp.Locale)
		assert.Equal(t, "en-US,en;q=0.9", fp.Headers["Accept-Language"])
	}

	fp := NewFingerprint(rng, []string{"custom-agent"})
	assert.Equal(t, "custom-agent", fp.UserAgent)
}

func TestHumanizerSimulate(t *testing.T) {
	var slept time.Duration
	h := NewHumanizer(nil).
		WithRand(rand.New(rand.NewSource(7))).
		WithSleep(func(d time.Duration) { slept += d })

	for i := 0; i < 20; i++ {
		page := &recordingPage{}
		h.Simulate(page)

		assert.GreaterOrEqual(t, len(page.moves), 2)
		assert.LessOrEqual(t, len(page.moves), 5)
		for _, m := range page.moves {
			assert.True(t, m[0] >= 0 && m[0] <= 800 && m[1] >= 0 && m[1] <= 600)
		}

		require.Len(t, page.wheels, 2)
		assert.True(t, page.wheels[0] >= 100 && page.wheels[0] <= 500)
		assert.True(t, page.wheels[1] <= -100 && page.wheels[1] >= -200)

		require.Len(t, page.viewport, 1)
		assert.True(t, page.viewport[0][0] >= MinViewportWidth && page.viewport[0][0] <= MaxViewportWidth)

		assert.GreaterOrEqual(t, len(page.keys), 1)
		assert.LessOrEqual(t, len(page.keys), 3)
		for _, k := range page.keys {
			assert.Equal(t, "Tab", k)
		}
	}
	assert.Greater(t, slept, time.Duration(0))
}

func TestHumanizerSwallowsErrors(t *testing.T) {
	h := NewHumanizer(nil).WithSleep(func(time.Duration) {})
	page := &recordingPage{failOn: "move"}

	assert.NotPanics(t, func() { h.Simulate(page) })
	assert.Empty(t, page.wheels)
	assert.Empty(t, page.keys)
}
