package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/phosphosite-scraper/internal/database"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeRecordFetched is published for every successfully fetched record
	EventTypeRecordFetched EventType = "PROTEIN_RECORD_FETCHED"

	aggregateType = "protein"
)

// RecordFetchedPayload represents the payload for PROTEIN_RECORD_FETCHED
type RecordFetchedPayload struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	RunID     string               `json:"run_id,omitempty"`
	ProteinID models.RecordKey     `json:"protein_id"`
	Record    models.RawRecord     `json:"record"`
	Rows      []models.ExplodedRow `json:"rows"`
	Attempts  int                  `json:"attempts"`
	Source    string               `json:"source"`
}

// Outbox is the part of the outbox repository the publisher writes to.
type Outbox interface {
	Insert(ctx context.Context, event *database.OutboxEvent) error
}

// Publisher turns fetched records into outbox events. It is attached to the
// pipeline driver as an observer, so a failed insert is logged and the run
// carries on.
type Publisher struct {
	outbox Outbox
	stream string
	source string
	runID  string
	logger *slog.Logger
	now    func() time.Time

	published int
	failed    int
}

// NewPublisher creates a publisher writing to stream. An empty stream falls
// back to database.DefaultStream.
func NewPublisher(outbox Outbox, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		outbox: outbox,
		stream: stream,
		source: "phosphosite-scraper",
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

// RunStarted remembers the run id for the payloads of this run.
func (p *Publisher) RunStarted(_ context.Context, runID string, _ []models.RecordKey) {
	p.runID = runID
	p.published, p.failed = 0, 0
}

func (p *Publisher) Observe(ctx context.Context, outcome models.Outcome) {
	if !outcome.OK() {
		return
	}
	if err := p.PublishRecordFetched(ctx, *outcome.Record, outcome.Attempts); err != nil {
		p.failed++
		p.logger.Error("failed to publish record", "protein_id", outcome.Key, "error", err)
		return
	}
	p.published++
}

func (p *Publisher) RunFinished(_ context.Context, result *pipeline.Result) {
	p.logger.Info("run events queued",
		"run_id", result.RunID,
		"published", p.published,
		"failed", p.failed)
}

// PublishRecordFetched inserts a PROTEIN_RECORD_FETCHED event for record.
func (p *Publisher) PublishRecordFetched(ctx context.Context, record models.RawRecord, attempts int) error {
	payload := &RecordFetchedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeRecordFetched),
		Timestamp: p.now(),
		RunID:     p.runID,
		ProteinID: record.Key,
		Record:    record,
		Rows:      postprocess.ExplodeRecord(record),
		Attempts:  attempts,
		Source:    p.source,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   record.Key.String(),
		EventType:     string(EventTypeRecordFetched),
		Payload:       data,
		TargetStream:  p.stream,
	}

	if err := p.outbox.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"protein_id", record.Key,
		"outbox_id", event.ID,
	)
	return nil
}

// Stats reports how many events this run published and how many failed.
func (p *Publisher) Stats() (published, failed int) {
	return p.published, p.failed
}
