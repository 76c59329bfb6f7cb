package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	return redis.NewStringResult("1234567890-0", mockArgs.Error(0))
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockOutboxRepository is a mock for OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockOutboxRepository) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func proteinEvent(key string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "protein",
		AggregateID:   key,
		EventType:     "PROTEIN_RECORD_FETCHED",
		Payload:       json.RawMessage(`{"protein_id":` + key + `,"record":{"phosphosite_protein_name":"ABL1"}}`),
		TargetStream:  DefaultStream,
		Status:        OutboxStatusPending,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRelay_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		events := []*OutboxEvent{proteinEvent("1035"), proteinEvent("1036")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil).Once()
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Stream == DefaultStream
		})).Return(nil).Twice()
		for _, e := range events {
			mockOutbox.On("MarkProcessed", ctx, e.ID).Return(nil).Once()
		}

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, published)
		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("failed publish is marked for retry and others continue", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		bad, good := proteinEvent("1035"), proteinEvent("1036")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{bad, good}, nil).Once()
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]interface{})["aggregate_id"] == "1035"
		})).Return(errors.New("redis connection failed")).Once()
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil).Once()
		mockOutbox.On("MarkFailed", ctx, bad.ID, mock.Anything).Return(nil).Once()
		mockOutbox.On("MarkProcessed", ctx, good.ID).Return(nil).Once()

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, published)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("invalid payload is never sent", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		event := proteinEvent("1035")
		event.Payload = json.RawMessage(`{broken`)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil).Once()
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil).Once()

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("drains full batches", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 2})

		first := []*OutboxEvent{proteinEvent("1"), proteinEvent("2")}
		second := []*OutboxEvent{proteinEvent("3")}
		mockOutbox.On("GetPending", ctx, 2).Return(first, nil).Once()
		mockOutbox.On("GetPending", ctx, 2).Return(second, nil).Once()
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, mock.Anything).Return(nil)

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, published)
		mockOutbox.AssertNumberOfCalls(t, "GetPending", 2)
	})

	t.Run("stops when nothing progresses", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 1})

		mockOutbox.On("GetPending", ctx, 1).Return([]*OutboxEvent{proteinEvent("1")}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("down"))
		mockOutbox.On("MarkFailed", ctx, mock.Anything, mock.Anything).Return(nil)

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)
		mockOutbox.AssertNumberOfCalls(t, "GetPending", 1)
	})

	t.Run("empty outbox", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{})

		mockOutbox.On("GetPending", ctx, 100).Return([]*OutboxEvent{}, nil)

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)
	})

	t.Run("outbox error", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{BatchSize: 10})

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("database error"))

		_, err := relay.Flush(ctx)
		assert.Error(t, err)
	})
}

func TestStreamValues(t *testing.T) {
	event := proteinEvent("1035")
	event.RetryCount = 2

	values, err := streamValues(event, "phosphosite-scraper")
	require.NoError(t, err)

	assert.Equal(t, "PROTEIN_RECORD_FETCHED", values["event_type"])
	assert.Equal(t, "PROTEIN_RECORD_FETCHED", values["type"])
	assert.Equal(t, "1035", values["aggregate_id"])
	assert.Equal(t, "protein", values["aggregate_type"])
	assert.Equal(t, event.ID.String(), values["original_id"])
	assert.Equal(t, "1714564800000000000", values["timestamp"])

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &data))
	assert.Equal(t, event.ID.String(), data["id"])
	assert.Equal(t, "2024-05-01T12:00:00Z", data["timestamp"])

	payload := data["payload"].(map[string]interface{})
	assert.Equal(t, float64(1035), payload["protein_id"])

	metadata := data["metadata"].(map[string]interface{})
	assert.Equal(t, "phosphosite-scraper", metadata["source"])
	assert.Equal(t, float64(2), metadata["retry_count"])
	assert.Equal(t, DefaultStream, metadata["target_stream"])
}

func TestRelay_Start(t *testing.T) {
	t.Run("stop on context cancellation", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{PollInterval: 10 * time.Millisecond})

		mockOutbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() {
			done <- relay.Start(ctx)
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("relay did not stop")
		}
		mockOutbox.AssertCalled(t, "GetPending", mock.Anything, 100)
	})

	t.Run("purges processed events past retention", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{Retention: time.Hour})
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		relay.now = func() time.Time { return now }

		mockOutbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{}, nil)
		mockOutbox.On("PurgeProcessed", mock.Anything, now.Add(-time.Hour)).Return(int64(3), nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := relay.Start(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		mockOutbox.AssertExpectations(t)
	})
}

func TestRelay_Counts(t *testing.T) {
	ctx := context.Background()
	mockOutbox := new(MockOutboxRepository)
	relay := newRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{})

	mockOutbox.On("CountByStatus", ctx).Return(map[string]int64{
		OutboxStatusPending:    4,
		OutboxStatusFailed:     2,
		OutboxStatusProcessed:  10,
		OutboxStatusDeadLetter: 1,
	}, nil)

	pending, err := relay.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pending)

	dead, err := relay.GetDeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}
