package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/service"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	svc    *service.TaskService
	checks map[string]HealthCheck
}

func NewHandler(svc *service.TaskService, checks map[string]HealthCheck) *Handler {
	return &Handler{svc: svc, checks: checks}
}

type healthResp struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health godoc
// @Summary Liveness and dependency check
// @Tags ops
// @Produce json
// @Success 200 {object} healthResp
// @Failure 503 {object} healthResp
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResp{Status: "ok", Checks: map[string]string{}}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

type createTaskDTO struct {
	TaskID       string `json:"task_id,omitempty"`
	ImageID      string `json:"image_id"`
	ReaderTestID string `json:"reader_test_id"`
}

type createTaskResp struct {
	TaskID string `json:"task_id"`
}

// CreateTask godoc
// @Summary Enqueue a task
// @Description Writes a PENDING task into the queue. A task id is generated when none is given.
// @Tags tasks
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body createTaskDTO true "task payload"
// @Success 201 {object} createTaskResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 409 {object} apiError
// @Router /tasks [post]
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var dto createTaskDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := h.svc.CreateTask(r.Context(), service.CreateTaskRequest{
		TaskID:       dto.TaskID,
		ImageID:      dto.ImageID,
		ReaderTestID: dto.ReaderTestID,
	})
	if err != nil {
		writeServiceErr(w, r, err, "task not found")
		return
	}

	writeJSON(w, http.StatusCreated, createTaskResp{TaskID: id})
}

// GetTask godoc
// @Summary Get task status
// @Description Reports the queued task, or COMPLETED once only its output record remains.
// @Tags tasks
// @Produce json
// @Param id path string true "task id"
// @Success 200 {object} service.TaskView
// @Failure 404 {object} apiError
// @Router /tasks/{id} [get]
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RetryTask godoc
// @Summary Retry a failed task
// @Description Resets a task that used up its attempts to PENDING with a fresh budget.
// @Tags tasks
// @Security ApiKeyAuth
// @Param id path string true "task id"
// @Success 204
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Router /tasks/{id}/retry [post]
func (h *Handler) RetryTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RetryTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceErr(w, r, err, "no failed task with this id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setTotalDTO struct {
	TotalCount *int `json:"total_count"`
}

type readerTestResp struct {
	ID             string  `json:"id"`
	TotalCount     *int    `json:"total_count"`
	ProcessedCount int     `json:"processed_count"`
	Done           bool    `json:"done"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

func toReaderTestResp(rt *entity.ReaderTest) readerTestResp {
	resp := readerTestResp{
		ID:             rt.ID,
		TotalCount:     rt.TotalCount,
		ProcessedCount: rt.ProcessedCount,
		Done:           rt.Done(),
	}
	if rt.CompletedAt != nil {
		ts := rt.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &ts
	}
	return resp
}

// SetReaderTestTotal godoc
// @Summary Register the task count of a reader test
// @Tags reader-tests
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "reader test id"
// @Param request body setTotalDTO true "expected number of tasks"
// @Success 200 {object} readerTestResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Router /reader-tests/{id} [put]
func (h *Handler) SetReaderTestTotal(w http.ResponseWriter, r *http.Request) {
	var dto setTotalDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.TotalCount == nil {
		writeErr(w, http.StatusBadRequest, "total_count is required")
		return
	}

	rt, err := h.svc.SetReaderTestTotal(r.Context(), chi.URLParam(r, "id"), *dto.TotalCount)
	if err != nil {
		writeServiceErr(w, r, err, "reader test not found")
		return
	}
	writeJSON(w, http.StatusOK, toReaderTestResp(rt))
}

// GetReaderTest godoc
// @Summary Get reader test progress
// @Tags reader-tests
// @Produce json
// @Param id path string true "reader test id"
// @Success 200 {object} readerTestResp
// @Failure 404 {object} apiError
// @Router /reader-tests/{id} [get]
func (h *Handler) GetReaderTest(w http.ResponseWriter, r *http.Request) {
	rt, err := h.svc.GetReaderTest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, r, err, "reader test not found")
		return
	}
	writeJSON(w, http.StatusOK, toReaderTestResp(rt))
}
