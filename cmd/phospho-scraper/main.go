package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/app"
	"github.com/maltedev/phosphosite-scraper/internal/config"
	"github.com/maltedev/phosphosite-scraper/internal/input"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/output"
	"github.com/maltedev/phosphosite-scraper/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes one scraping run and returns the process exit code: 0 on
// success, 1 on fatal errors, 2 on bad input and 130 when interrupted.
// Returning instead of exiting lets deferred cleanup close the outbox
// connections.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("phospho-scraper", flag.ContinueOnError)
	var (
		start    = fs.Int("start", 0, "First protein ID of the range (default SCRAPER_START_ID)")
		end      = fs.Int("end", 0, "Last protein ID of the range, inclusive (default SCRAPER_END_ID)")
		ids      = fs.String("ids", "", "Comma-separated list of protein IDs")
		file     = fs.String("file", "", "CSV file containing protein IDs")
		column   = fs.String("column", input.DefaultColumn, "Column of -file holding the protein IDs")
		headless = fs.Bool("headless", true, "Run browser in headless mode")
		attempts = fs.Int("attempts", 0, "Attempts per protein ID (default SCRAPER_MAX_ATTEMPTS)")
		outDir   = fs.String("output", "", "Output directory (default OUTPUT_DIR)")
		state    = fs.String("state", "", "Progress file for resumable runs (default SESSION_PROGRESS_FILE)")
		resume   = fs.Bool("resume", false, "Skip IDs the progress file already has a final answer for")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Browser.Headless = *headless
		case "attempts":
			cfg.Scraper.MaxAttempts = *attempts
		case "output":
			cfg.Output.Dir = *outDir
		case "state":
			cfg.Session.ProgressFile = *state
		case "start":
			cfg.Scraper.StartID = *start
		case "end":
			cfg.Scraper.EndID = *end
		}
	})
	if *start > 0 && *end == 0 {
		cfg.Scraper.EndID = *start
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 2
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	keys, err := selectKeys(cfg, *ids, *file, *column)
	if err != nil {
		logger.Error("no protein ids to process", "error", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, stopping after the current protein")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	if *resume {
		if a.Progress == nil {
			logger.Warn("-resume needs a progress file, processing every id")
		} else {
			before := len(keys)
			keys = a.Progress.Remaining(keys)
			logger.Info("resuming", "skipped", before-len(keys), "remaining", len(keys))
			if len(keys) == 0 {
				logger.Info("nothing left to do")
				return 0
			}
		}
	}

	csvWriter := output.NewCSVWriter(cfg.Output.Dir, logger)
	runLog := output.NewRunLog(cfg.Output.Dir, logger)
	a.Driver.AddObserver(csvWriter).AddObserver(runLog)

	minDelay, maxDelay := a.Limiter.Delay()
	logger.Info("Starting PhosphoSite scraper",
		"first_id", keys[0],
		"keys", len(keys),
		"attempts", cfg.Scraper.MaxAttempts,
		"delay", fmt.Sprintf("%s-%s", minDelay, maxDelay),
		"adaptive_delay", cfg.Scraper.AdaptiveDelay,
		"output", cfg.Output.Dir)

	result, err := a.Driver.Run(ctx, keys)
	if result == nil {
		runLog.Fatal(err)
		logger.Error("run failed", "error", err)
		return 1
	}
	if err != nil {
		logger.Warn("run interrupted", "error", err, "processed", len(result.Outcomes))
	}

	if a.Relay != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, ferr := a.Relay.Flush(flushCtx)
		flushCancel()
		if ferr != nil {
			logger.Warn("failed to flush outbox", "error", ferr)
		} else {
			logger.Info("outbox flushed", "published", n)
		}
	}

	a.Report(stdout, result)
	if path := csvWriter.Combined(); path != "" {
		fmt.Fprintf(stdout, "\nCombined results: %s\n", path)
	}
	fmt.Fprintf(stdout, "Run log: %s\n", runLog.Path())

	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 0
}

// selectKeys prefers -ids, then -file, then the configured range.
func selectKeys(cfg *config.Config, ids, file, column string) ([]models.RecordKey, error) {
	switch {
	case ids != "":
		return input.ParseList(ids)
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open id file: %w", err)
		}
		defer f.Close()
		return input.FromCSV(f, column)
	default:
		return input.Range(cfg.Scraper.StartID, cfg.Scraper.EndID)
	}
}
