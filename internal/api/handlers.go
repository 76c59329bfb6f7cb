package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/maltedev/phosphosite-scraper/internal/input"
	"github.com/maltedev/phosphosite-scraper/internal/jobs"
	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/maltedev/phosphosite-scraper/internal/output"
	"github.com/maltedev/phosphosite-scraper/internal/postprocess"
)

// DefaultMaxKeys bounds a single submitted run.
const DefaultMaxKeys = 10000

var validate = validator.New()

// JobService is the job manager as seen by the handlers.
type JobService interface {
	CreateJob(ctx context.Context, keys []models.RecordKey) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) []*jobs.Job
	GetJobRows(ctx context.Context, jobID string) ([]models.ExplodedRow, error)
	CancelJob(ctx context.Context, jobID string) error
	GetStats(ctx context.Context) jobs.Stats
}

// OutboxHealth reports outbox backlog; the relay satisfies it.
type OutboxHealth interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	jobs    JobService
	outbox  OutboxHealth
	maxKeys int
	logger  *slog.Logger
}

func NewHandlers(jobs JobService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:    jobs,
		maxKeys: DefaultMaxKeys,
		logger:  logger.With("component", "api"),
	}
}

// WithOutboxHealth adds outbox counters to /health.
func (h *Handlers) WithOutboxHealth(o OutboxHealth) *Handlers {
	h.outbox = o
	return h
}

func (h *Handlers) WithMaxKeys(n int) *Handlers {
	if n > 0 {
		h.maxKeys = n
	}
	return h
}

// CreateRunRequest selects keys either as an inclusive range or a list.
type CreateRunRequest struct {
	Start int   `json:"start" validate:"required_without=IDs,omitempty,gt=0"`
	End   int   `json:"end" validate:"required_with=Start,omitempty,gtefield=Start"`
	IDs   []int `json:"ids" validate:"required_without=Start,omitempty,dive,gt=0"`
}

func (req CreateRunRequest) keys(max int) ([]models.RecordKey, error) {
	if req.Start > 0 && len(req.IDs) > 0 {
		return nil, errors.New("use either start/end or ids, not both")
	}
	if req.Start > 0 && req.End-req.Start+1 > max {
		return nil, fmt.Errorf("too many protein ids: %d > %d", req.End-req.Start+1, max)
	}
	if len(req.IDs) > 0 {
		keys := make([]models.RecordKey, len(req.IDs))
		for i, id := range req.IDs {
			keys[i] = models.RecordKey(id)
		}
		return input.Dedupe(keys), nil
	}
	return input.Range(req.Start, req.End)
}

// CreateRunResponse represents the run creation response
type CreateRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Keys    int    `json:"keys"`
	Message string `json:"message"`
}

// CreateRun queues a run for a key range or list
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	keys, err := req.keys(h.maxKeys)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.submit(w, r, keys)
}

// UploadRun queues a run for the keys in an uploaded CSV file. The form
// field "file" carries the file and "column" optionally names the key column.
func (h *Handlers) UploadRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	keys, err := input.FromCSV(file, r.FormValue("column"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.submit(w, r, keys)
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, keys []models.RecordKey) {
	if len(keys) == 0 {
		h.respondError(w, http.StatusBadRequest, "no protein ids supplied")
		return
	}
	if len(keys) > h.maxKeys {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("too many protein ids: %d > %d", len(keys), h.maxKeys))
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), keys)
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to queue run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateRunResponse{
		RunID:   job.ID,
		Status:  string(job.Status),
		Keys:    len(keys),
		Message: "Run queued",
	})
}

// GetRun handles run status retrieval
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	job, err := h.jobs.GetJob(r.Context(), runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListRuns handles listing all runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs(r.Context()))
}

// GetRunRows streams the exploded rows of a finished run as CSV
func (h *Handlers) GetRunRows(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	rows, err := h.jobs.GetJobRows(r.Context(), runID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, jobs.ErrNotReady):
		h.respondError(w, http.StatusConflict, "run has not finished")
		return
	case err != nil:
		h.logger.Error("failed to get run rows", "run_id", runID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get rows")
		return
	}

	data, err := output.EncodeCSV(postprocess.Aggregate(rows))
	if err != nil {
		h.logger.Error("failed to encode rows", "run_id", runID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to encode rows")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run_%s.csv"`, runID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// CancelRun drops a queued run or stops a running one between keys
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	err := h.jobs.CancelJob(r.Context(), runID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, jobs.ErrJobFinished):
		h.respondError(w, http.StatusConflict, "run already finished")
		return
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "message": "Cancellation requested"})
}

// GetStats handles statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.GetStats(r.Context()))
}

// Health reports liveness plus outbox backlog when an outbox is configured
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pendingCount, _ := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, _ := h.outbox.GetDeadLetterCount(r.Context())

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
