package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
	"github.com/maltedev/phosphosite-scraper/internal/queue"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
	ErrNotReady    = errors.New("job has no results yet")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Runner executes one batch of keys; *pipeline.Driver satisfies it.
type Runner interface {
	Run(ctx context.Context, keys []models.RecordKey) (*pipeline.Result, error)
}

// Job represents a submitted run
type Job struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	RunID       string     `json:"run_id,omitempty"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Success     int        `json:"success"`
	NotFound    int        `json:"not_found"`
	Failed      int        `json:"failed"`
	Rows        int        `json:"rows"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	rows     []models.ExplodedRow
	cancel   context.CancelFunc
	canceled bool
}

// Stats represents scraper statistics
type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalRecords  int     `json:"total_records"`
	TotalRows     int     `json:"total_rows"`
	SuccessRate   float64 `json:"success_rate"`
}

// Manager queues runs and executes them one at a time on a single worker,
// so the browser session is never shared between runs. Jobs live in memory.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	current *Job

	queue  queue.Queue
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(runner Runner, q queue.Queue, logger *slog.Logger) *Manager {
	if q == nil {
		q = queue.NewInMemoryQueue()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		queue:  q,
		runner: runner,
		logger: logger.With("component", "job_manager"),
		now:    time.Now,
	}
}

// CreateJob creates a new run for keys and queues it
func (m *Manager) CreateJob(_ context.Context, keys []models.RecordKey) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Total:     len(keys),
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if err := m.queue.Push(&queue.Task{ID: job.ID, Keys: keys, CreatedAt: job.CreatedAt}); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "keys", len(keys))
	snapshot := *job
	return &snapshot, nil
}

// GetJob retrieves a job by ID
func (m *Manager) GetJob(_ context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// ListJobs lists jobs, newest first
func (m *Manager) ListJobs(_ context.Context) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > 100 {
		jobs = jobs[:100]
	}
	return jobs
}

// GetJobRows returns the exploded rows of a finished job. Cancelled runs
// return what was fetched before cancellation.
func (m *Manager) GetJobRows(_ context.Context, jobID string) ([]models.ExplodedRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if !job.Status.Finished() {
		return nil, ErrNotReady
	}
	return append([]models.ExplodedRow(nil), job.rows...), nil
}

// CancelJob drops a queued job or interrupts the running one between keys.
func (m *Manager) CancelJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Finished() {
		return ErrJobFinished
	}

	job.canceled = true
	switch job.Status {
	case StatusPending:
		m.queue.Remove(jobID)
		now := m.now()
		job.Status = StatusCancelled
		job.CompletedAt = &now
	case StatusRunning:
		if job.cancel != nil {
			job.cancel()
		}
	}

	m.logger.Info("job cancel requested", "id", jobID)
	return nil
}

// GetStats aggregates over all known jobs
func (m *Manager) GetStats(_ context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	var processed int
	for _, job := range m.jobs {
		s.TotalJobs++
		switch job.Status {
		case StatusPending:
			s.PendingJobs++
		case StatusRunning:
			s.RunningJobs++
		case StatusCompleted:
			s.CompletedJobs++
		case StatusFailed:
			s.FailedJobs++
		}
		s.TotalRecords += job.Success
		s.TotalRows += job.Rows
		processed += job.Processed
	}
	if processed > 0 {
		s.SuccessRate = float64(s.TotalRecords) / float64(processed)
	}
	return s
}

// Observe updates the live counters of the running job. Register the
// manager as an observer on the driver it runs.
func (m *Manager) Observe(_ context.Context, outcome models.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := m.current
	if job == nil {
		return
	}
	job.Processed++
	switch outcome.Status {
	case models.StatusSuccess:
		job.Success++
	case models.StatusNotFound:
		job.NotFound++
	case models.StatusFailed:
		job.Failed++
	}
}
