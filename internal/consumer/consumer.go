// Package consumer reads PROTEIN_RECORD_FETCHED events back off the Redis
// stream the relay publishes to and hands their rows to a sink.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/events"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

// Streams is the subset of the Redis client the consumer needs.
type Streams interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Sink receives the exploded rows of each fetched record.
type Sink interface {
	WriteRows(rows []models.ExplodedRow) error
}

type Config struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
}

type Consumer struct {
	redis  Streams
	sink   Sink
	cfg    Config
	logger *slog.Logger
	sleep  func(time.Duration)
}

func New(rdb Streams, sink Sink, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Group == "" {
		cfg.Group = "protein-export-group"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		redis:  rdb,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("component", "stream_consumer"),
		sleep:  time.Sleep,
	}
}

// Run reads the stream until ctx is done. Messages are acknowledged once
// handled; messages that fail stay pending in the group.
func (c *Consumer) Run(ctx context.Context) error {
	// Create consumer group (ignore error if already exists)
	if err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil &&
		!strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			c.sleep(time.Second)
		}
	}
}

// Poll reads one batch and returns the number of messages acknowledged.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := c.processMessage(message); err != nil {
				c.logger.Error("failed to process message", "id", message.ID, "error", err)
				continue
			}

			if err := c.redis.XAck(ctx, stream.Stream, c.cfg.Group, message.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

// envelope is the JSON the relay stores in a message's data field.
type envelope struct {
	Type        string                      `json:"type"`
	AggregateID string                      `json:"aggregate_id"`
	Payload     events.RecordFetchedPayload `json:"payload"`
}

func (c *Consumer) processMessage(msg redis.XMessage) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(events.EventTypeRecordFetched) {
		return nil // skip other events
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data in event")
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if !env.Payload.ProteinID.Valid() {
		return fmt.Errorf("missing protein_id in payload")
	}

	c.logger.Info("processing record",
		"message_id", msg.ID,
		"protein_id", env.Payload.ProteinID,
		"rows", len(env.Payload.Rows))

	if len(env.Payload.Rows) == 0 {
		return nil
	}
	return c.sink.WriteRows(env.Payload.Rows)
}
