package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the part of the Redis client the relay publishes with.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the outbox as seen by the relay.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
	PurgeProcessed(ctx context.Context, before time.Time) (int64, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Source is stamped into each message's metadata.
	Source string
	// Retention, when set, deletes processed events older than this on
	// every poll.
	Retention time.Duration
}

// Relay moves outbox events onto their Redis streams.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	cfg    RelayConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), redisClient, logger, cfg)
}

func newRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Source == "" {
		cfg.Source = "phosphosite-scraper"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
		now:    time.Now,
	}
}

// Start polls the outbox until ctx is done. Errors are logged and the next
// poll tries again.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.poll(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Relay) poll(ctx context.Context) {
	if _, err := r.Flush(ctx); err != nil {
		r.logger.Error("failed to process events", "error", err)
	}

	if r.cfg.Retention <= 0 {
		return
	}
	n, err := r.outbox.PurgeProcessed(ctx, r.now().Add(-r.cfg.Retention))
	if err != nil {
		r.logger.Error("failed to purge processed events", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("purged processed events", "count", n)
	}
}

// Flush publishes everything currently due, batch by batch, and returns the
// number of events published. Events that fail stay in the outbox with a
// retry time.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	published := 0
	for {
		events, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return published, fmt.Errorf("failed to get pending events: %w", err)
		}
		if len(events) == 0 {
			return published, nil
		}

		progressed := false
		for _, event := range events {
			if err := r.relay(ctx, event); err != nil {
				r.logger.Error("failed to process event",
					"event_id", event.ID,
					"aggregate_id", event.AggregateID,
					"error", err)
				continue
			}
			published++
			progressed = true
		}
		if !progressed || len(events) < r.cfg.BatchSize {
			return published, nil
		}
	}
}

// relay publishes one event and records the result in the outbox.
func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return err
	}

	r.logger.Info("event processed successfully",
		"event_id", event.ID,
		"event_type", event.EventType,
		"aggregate_id", event.AggregateID,
		"target_stream", event.TargetStream)
	return nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event, r.cfg.Source)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{Stream: event.TargetStream, Values: values}
	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// streamMessage is the JSON document carried in a message's data field.
type streamMessage struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// streamValues builds the stream entry for event: the full message as JSON
// under "data" plus flat routing fields consumers can filter on.
func streamValues(event *OutboxEvent, source string) (map[string]interface{}, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("event %s has an invalid payload", event.ID)
	}

	data, err := json.Marshal(streamMessage{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: streamMetadata{
			Source:       source,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream data: %w", err)
	}

	return map[string]interface{}{
		"data":           string(data),
		"type":           event.EventType,
		"event_type":     event.EventType,
		"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
		"original_id":    event.ID.String(),
		"aggregate_id":   event.AggregateID,
		"aggregate_type": event.AggregateType,
	}, nil
}

// GetPendingCount returns the number of events still to be published.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	counts, err := r.outbox.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	return counts[OutboxStatusPending] + counts[OutboxStatusFailed], nil
}

// GetDeadLetterCount returns the number of events given up on.
func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	counts, err := r.outbox.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	return counts[OutboxStatusDeadLetter], nil
}
