package evasion

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Page is the slice of a browser page the humanizer drives.
type Page interface {
	MoveMouse(x, y float64) error
	Wheel(deltaX, deltaY float64) error
	PressKey(key string) error
	SetViewportSize(width, height int) error
}

// Humanizer issues randomized pointer, scroll, resize and keyboard events.
// Simulate is best-effort: it logs and swallows every error.
type Humanizer struct {
	logger *slog.Logger
	sleep  func(time.Duration)

	mu  sync.Mutex
	rng *rand.Rand
}

func NewHumanizer(logger *slog.Logger) *Humanizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Humanizer{
		logger: logger.With("component", "evasion"),
		sleep:  time.Sleep,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSleep replaces the pause function; tests pass a no-op.
func (h *Humanizer) WithSleep(sleep func(time.Duration)) *Humanizer {
	h.sleep = sleep
	return h
}

// WithRand fixes the random source.
func (h *Humanizer) WithRand(rng *rand.Rand) *Humanizer {
	h.rng = rng
	return h
}

func (h *Humanizer) Simulate(page Page) {
	if err := h.simulate(page); err != nil {
		h.logger.Warn("random behavior failed", "error", err)
	}
}

func (h *Humanizer) simulate(page Page) error {
	moves := h.intn(2, 5)
	for i := 0; i < moves; i++ {
		x, y := float64(h.intn(0, 800)), float64(h.intn(0, 600))
		if err := page.MoveMouse(x, y); err != nil {
			return err
		}
		h.pause(100*time.Millisecond, 300*time.Millisecond)
	}

	if err := page.Wheel(0, float64(h.intn(100, 500))); err != nil {
		return err
	}
	h.pause(500*time.Millisecond, 1500*time.Millisecond)
	if err := page.Wheel(0, -float64(h.intn(100, 200))); err != nil {
		return err
	}

	width := h.intn(MinViewportWidth, MaxViewportWidth)
	height := h.intn(MinViewportHeight, MaxViewportHeight)
	if err := page.SetViewportSize(width, height); err != nil {
		return err
	}

	presses := h.intn(1, 3)
	for i := 0; i < presses; i++ {
		if err := page.PressKey("Tab"); err != nil {
			return err
		}
		h.pause(100*time.Millisecond, 300*time.Millisecond)
	}

	return nil
}

func (h *Humanizer) intn(min, max int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return randInt(h.rng, min, max)
}

func (h *Humanizer) pause(min, max time.Duration) {
	h.mu.Lock()
	d := randomDelay(h.rng, min, max)
	h.mu.Unlock()
	h.sleep(d)
}
