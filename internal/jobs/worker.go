package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/phosphosite-scraper/internal/queue"
)

// StartWorker processes queued jobs until ctx is done or the queue is closed
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				m.logger.Error("failed to take next job", "error", err)
			}
			m.logger.Info("job worker stopping")
			return
		}
		m.processJob(ctx, task)
	}
}

// processJob runs a single queued task
func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	job, ok := m.jobs[task.ID]
	if !ok || job.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	started := m.now()
	job.Status = StatusRunning
	job.StartedAt = &started
	job.cancel = cancel
	m.current = job
	m.mu.Unlock()

	log := m.logger.With("id", task.ID)
	log.Info("processing job", "keys", len(task.Keys))

	result, err := m.runner.Run(jobCtx, task.Keys)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	job.cancel = nil
	completed := m.now()
	job.CompletedAt = &completed

	if result != nil {
		job.RunID = result.RunID
		job.rows = result.Rows
		job.Rows = len(result.Rows)
		job.Success, job.NotFound, job.Failed = result.Counts()
		job.Processed = len(result.Outcomes)
	}

	switch {
	case err == nil:
		job.Status = StatusCompleted
		log.Info("job completed", "run_id", job.RunID, "rows", job.Rows)
	case job.canceled && errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
		log.Info("job cancelled", "processed", job.Processed)
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
		log.Error("job failed", "error", err)
	}
}
