package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
	"github.com/maltedev/phosphosite-scraper/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]models.RecordKey
	observe pipeline.Observer
	block   chan struct{}
	err     error
}

func (r *fakeRunner) Run(ctx context.Context, keys []models.RecordKey) (*pipeline.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, keys)
	r.mu.Unlock()

	result := &pipeline.Result{RunID: "20240501_120000"}
	for i, key := range keys {
		if r.block != nil && i > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-r.block:
			}
		}
		o := models.NotFound(key, 1)
		if key%2 == 1 {
			rec := models.RawRecord{Key: key, DisplayName: models.StringPtr("P"), AltNames: models.StringPtr("a; b")}
			o = models.Success(rec, 1)
			result.Records = append(result.Records, rec)
			result.Rows = append(result.Rows,
				models.ExplodedRow{Key: key, AltName: models.StringPtr("a")},
				models.ExplodedRow{Key: key, AltName: models.StringPtr("b")})
		}
		result.Outcomes = append(result.Outcomes, o)
		if r.observe != nil {
			r.observe.Observe(ctx, o)
		}
	}
	return result, r.err
}

func startManager(t *testing.T, runner *fakeRunner) (*Manager, context.CancelFunc) {
	t.Helper()
	m := NewManager(runner, queue.NewInMemoryQueue(), nil)
	runner.observe = m
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.StartWorker(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, cancel
}

func waitStatus(t *testing.T, m *Manager, id string, want Status) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.GetJob(context.Background(), id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestManager_RunsJobToCompletion(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := startManager(t, runner)
	ctx := context.Background()

	job, err := m.CreateJob(ctx, []models.RecordKey{1035, 1036})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 2, job.Total)

	done := waitStatus(t, m, job.ID, StatusCompleted)
	assert.Equal(t, "20240501_120000", done.RunID)
	assert.Equal(t, 2, done.Processed)
	assert.Equal(t, 1, done.Success)
	assert.Equal(t, 1, done.NotFound)
	assert.Equal(t, 2, done.Rows)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	rows, err := m.GetJobRows(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	stats := m.GetStats(ctx)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 1, stats.TotalRecords)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
}

func TestManager_JobsRunInSubmissionOrder(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := startManager(t, runner)
	ctx := context.Background()

	a, err := m.CreateJob(ctx, []models.RecordKey{1})
	require.NoError(t, err)
	b, err := m.CreateJob(ctx, []models.RecordKey{2})
	require.NoError(t, err)

	waitStatus(t, m, a.ID, StatusCompleted)
	waitStatus(t, m, b.ID, StatusCompleted)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, [][]models.RecordKey{{1}, {2}}, runner.calls)
}

func TestManager_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("failed to launch browser")}
	m, _ := startManager(t, runner)

	job, err := m.CreateJob(context.Background(), []models.RecordKey{1})
	require.NoError(t, err)

	failed := waitStatus(t, m, job.ID, StatusFailed)
	assert.Equal(t, "failed to launch browser", failed.Error)
}

func TestManager_CancelPending(t *testing.T) {
	m := NewManager(&fakeRunner{}, queue.NewInMemoryQueue(), nil)
	ctx := context.Background()

	job, err := m.CreateJob(ctx, []models.RecordKey{1})
	require.NoError(t, err)

	require.NoError(t, m.CancelJob(ctx, job.ID))
	got, err := m.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	assert.ErrorIs(t, m.CancelJob(ctx, job.ID), ErrJobFinished)
	assert.ErrorIs(t, m.CancelJob(ctx, "missing"), ErrJobNotFound)
}

func TestManager_CancelRunningKeepsPartialRows(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	m, _ := startManager(t, runner)
	ctx := context.Background()

	job, err := m.CreateJob(ctx, []models.RecordKey{1, 3, 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := m.GetJob(ctx, job.ID)
		return got.Status == StatusRunning && got.Processed == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, err = m.GetJobRows(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, m.CancelJob(ctx, job.ID))

	cancelled := waitStatus(t, m, job.ID, StatusCancelled)
	assert.Equal(t, 1, cancelled.Processed)

	rows, err := m.GetJobRows(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestManager_ListJobsNewestFirst(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := m.CreateJob(context.Background(), []models.RecordKey{1})
	require.NoError(t, err)
	second, err := m.CreateJob(context.Background(), []models.RecordKey{2})
	require.NoError(t, err)

	jobs := m.ListJobs(context.Background())
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestManager_CreateJobOnClosedQueue(t *testing.T) {
	q := queue.NewInMemoryQueue()
	require.NoError(t, q.Close())
	m := NewManager(&fakeRunner{}, q, nil)

	_, err := m.CreateJob(context.Background(), []models.RecordKey{1})
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
	assert.Empty(t, m.ListJobs(context.Background()))
}

func TestManager_GetJobNotFound(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, nil)
	_, err := m.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = m.GetJobRows(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
