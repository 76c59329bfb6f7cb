// Package app assembles the pipeline and its optional outbox from
// configuration. Both commands build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/phosphosite-scraper/internal/browser"
	"github.com/maltedev/phosphosite-scraper/internal/challenge"
	"github.com/maltedev/phosphosite-scraper/internal/config"
	"github.com/maltedev/phosphosite-scraper/internal/database"
	"github.com/maltedev/phosphosite-scraper/internal/evasion"
	"github.com/maltedev/phosphosite-scraper/internal/events"
	"github.com/maltedev/phosphosite-scraper/internal/fetcher"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
	"github.com/maltedev/phosphosite-scraper/internal/ratelimit"
	"github.com/maltedev/phosphosite-scraper/internal/session"
	"github.com/maltedev/phosphosite-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Driver    *pipeline.Driver
	Limiter   ratelimit.RateLimiter
	Cookies   *session.Store
	Progress  *storage.ProgressStore
	DB        *database.DB
	Publisher *events.Publisher
	Relay     *database.Relay
	Redis     *redis.Client

	logger *slog.Logger
}

// BrowserOptions derives launch options from fp and the browser section.
func BrowserOptions(cfg config.BrowserConfig, fp evasion.Fingerprint) *browser.Options {
	opts := browser.OptionsFromFingerprint(fp, cfg.Headless, cfg.Timeout)
	if cfg.Locale != "" {
		opts.Locale = cfg.Locale
	}
	if cfg.TimezoneID != "" {
		opts.TimezoneID = cfg.TimezoneID
	}
	return opts
}

// Launcher starts a fresh browser for each run.
func Launcher(opts *browser.Options) pipeline.Launcher {
	return func(ctx context.Context) (pipeline.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := browser.New(opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// New wires every component. The outbox is only connected when a database
// is configured, and the relay only when Redis is configured as well.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fp := evasion.NewFingerprint(nil, cfg.Browser.UserAgents)
	opts := BrowserOptions(cfg.Browser, fp)

	client, err := challenge.NewHTTPClient(challenge.ClientOptions{
		Timeout:    cfg.Challenge.SolverTimeout,
		RatePerSec: cfg.Challenge.SolverRatePerSec,
		UserAgent:  fp.UserAgent,
		Headers:    fp.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge client: %w", err)
	}

	var solver challenge.TurnstileSolver
	if cfg.Challenge.CaptchaAPIKey != "" {
		solver = challenge.NewTwoCaptchaSolver(cfg.Challenge.CaptchaAPIKey, cfg.Challenge.CaptchaTimeout, logger)
	}
	bypass := challenge.NewBypasser(client, solver, logger)

	humanizer := evasion.NewHumanizer(logger)

	fcfg := fetcher.DefaultConfig()
	fcfg.BaseURL = cfg.Scraper.BaseURL
	fcfg.LoadTimeout = cfg.Browser.Timeout
	fcfg.RetryDelay = cfg.Scraper.RetryDelay
	f := fetcher.New(fcfg, bypass, humanizer, logger)

	a := &App{
		Limiter: ratelimit.New(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax, cfg.Scraper.AdaptiveDelay),
		Cookies: session.NewStore(cfg.Session.CookieFile, logger),
		logger:  logger,
	}

	a.Driver = pipeline.NewDriver(pipeline.Config{MaxAttempts: cfg.Scraper.MaxAttempts}, Launcher(opts), f, a.Cookies, logger).
		WithLimiter(a.Limiter).
		WithHumanizer(humanizer)

	if cfg.Session.ProgressFile != "" {
		a.Progress, err = storage.NewProgressStore(cfg.Session.ProgressFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open progress file: %w", err)
		}
		a.Driver.AddObserver(a.Progress)
	}

	if cfg.Database.Enabled() {
		if err := a.connectOutbox(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) connectOutbox(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	a.Publisher = events.NewPublisher(database.NewOutboxRepository(db), cfg.Redis.Stream, a.logger)
	a.Driver.AddObserver(a.Publisher)

	if !cfg.Redis.Enabled() {
		return nil
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.Relay = database.NewRelay(db, a.Redis, a.logger, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		Retention:    cfg.Redis.RelayRetention,
	})
	return nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
