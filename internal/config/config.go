package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Browser   BrowserConfig
	Challenge ChallengeConfig
	Session   SessionConfig
	Output    OutputConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxKeys         int
}

type ScraperConfig struct {
	BaseURL      string
	StartID      int
	EndID        int
	MaxAttempts  int
	RetryDelay   time.Duration
	RateLimitMin time.Duration
	RateLimitMax time.Duration

	// AdaptiveDelay widens the delay window after runs of failed keys.
	AdaptiveDelay bool
}

type BrowserConfig struct {
	Headless   bool
	Timeout    time.Duration
	Locale     string
	TimezoneID string
	UserAgents []string
}

type ChallengeConfig struct {
	SolverTimeout    time.Duration
	SolverRatePerSec float64
	CaptchaAPIKey    string
	CaptchaTimeout   time.Duration
}

type SessionConfig struct {
	CookieFile string
	// ProgressFile enables per-key progress tracking for resumable runs.
	ProgressFile string
}

type OutputConfig struct {
	Dir string
}

// DatabaseConfig is optional; an empty Host disables the event outbox.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string

	// Relay settings for moving outbox events onto Stream.
	RelayInterval  time.Duration
	RelayRetention time.Duration
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_CORS_ORIGINS", nil),
			MaxKeys:         getIntOrDefault("SERVER_MAX_KEYS", 10000),
		},
		Scraper: ScraperConfig{
			BaseURL:      getEnvOrDefault("SCRAPER_BASE_URL", "https://www.phosphosite.org"),
			StartID:      getIntOrDefault("SCRAPER_START_ID", 1035),
			EndID:        getIntOrDefault("SCRAPER_END_ID", 1035),
			MaxAttempts:  getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			RetryDelay:   getDurationOrDefault("SCRAPER_RETRY_DELAY", 2*time.Second),
			RateLimitMin: getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 3*time.Second),
			RateLimitMax: getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 7*time.Second),

			AdaptiveDelay: getBoolOrDefault("SCRAPER_ADAPTIVE_DELAY", false),
		},
		Browser: BrowserConfig{
			Headless:   getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:    getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			Locale:     getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			TimezoneID: getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			UserAgents: getStringSliceOrDefault("BROWSER_USER_AGENTS", nil),
		},
		Challenge: ChallengeConfig{
			SolverTimeout:    getDurationOrDefault("CHALLENGE_SOLVER_TIMEOUT", 30*time.Second),
			SolverRatePerSec: getFloatOrDefault("CHALLENGE_SOLVER_RATE", 1),
			CaptchaAPIKey:    getEnvOrDefault("TWOCAPTCHA_API_KEY", ""),
			CaptchaTimeout:   getDurationOrDefault("TWOCAPTCHA_TIMEOUT", 120*time.Second),
		},
		Session: SessionConfig{
			CookieFile:   getEnvOrDefault("SESSION_COOKIE_FILE", "cookies.json"),
			ProgressFile: getEnvOrDefault("SESSION_PROGRESS_FILE", ""),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("OUTPUT_DIR", "protein_details_data"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "phosphosite"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:protein_records"),

			RelayInterval:  getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			RelayRetention: getDurationOrDefault("RELAY_RETENTION", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.StartID < 1 || c.Scraper.EndID < c.Scraper.StartID {
		return fmt.Errorf("invalid id range %d-%d", c.Scraper.StartID, c.Scraper.EndID)
	}

	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("BROWSER_TIMEOUT must be positive")
	}

	if c.Challenge.SolverRatePerSec <= 0 {
		return fmt.Errorf("CHALLENGE_SOLVER_RATE must be positive")
	}

	if c.Session.CookieFile == "" {
		return fmt.Errorf("SESSION_COOKIE_FILE is required")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Redis.Enabled() && !c.Database.Enabled() {
		return fmt.Errorf("REDIS_ADDR requires DB_HOST: the relay reads from the outbox")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, "|") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
