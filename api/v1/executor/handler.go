package executor

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"fleetops/internal/cascade"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

// Handler is the update contract endpoint consumed by the external job
// executor and by interactive cancel actions. It intentionally responds
// with the flat {success, error} envelope the executor expects rather
// than the standard API envelope.
type Handler struct {
	store  *store.Store
	engine *cascade.Engine
}

// NewHandler 创建 handler 实例
func NewHandler(st *store.Store, engine *cascade.Engine) *Handler {
	return &Handler{store: st, engine: engine}
}

// JobUpdate is the optional job object of an update request
type JobUpdate struct {
	JobID       int64           `json:"job_id"`
	Status      *string         `json:"status"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Details     json.RawMessage `json:"details"`
}

// TaskUpdate is the optional task object of an update request
type TaskUpdate struct {
	TaskID      int64      `json:"task_id"`
	Status      *string    `json:"status"`
	Log         *string    `json:"log"`
	Progress    *int       `json:"progress"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// UpdateRequest carries an optional job object and/or an optional task
// object
type UpdateRequest struct {
	Job  *JobUpdate  `json:"job"`
	Task *TaskUpdate `json:"task"`
}

// Update 执行器状态回报
// POST /api/v1/executor/update
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Job == nil && req.Task == nil {
		fail(c, http.StatusBadRequest, "request carries neither a job nor a task update")
		return
	}

	if req.Job != nil {
		if err := h.applyJobUpdate(req.Job); err != nil {
			failFromErr(c, err)
			return
		}
	}
	if req.Task != nil {
		if err := h.applyTaskUpdate(req.Task); err != nil {
			failFromErr(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) applyJobUpdate(u *JobUpdate) error {
	fields := cascade.JobFields{
		StartedAt:   u.StartedAt,
		CompletedAt: u.CompletedAt,
	}
	if u.Status != nil {
		status, ok := model.ParseJobStatus(*u.Status)
		if !ok {
			return &badRequestError{msg: "unknown job status: " + *u.Status}
		}
		fields.Status = &status
	}
	if len(u.Details) > 0 {
		fields.Details = datatypes.JSON(u.Details)
	}

	_, err := h.engine.UpdateJob(u.JobID, fields)
	return err
}

func (h *Handler) applyTaskUpdate(u *TaskUpdate) error {
	fields := cascade.TaskFields{
		Log:         u.Log,
		Progress:    u.Progress,
		StartedAt:   u.StartedAt,
		CompletedAt: u.CompletedAt,
	}
	if u.Status != nil {
		status, ok := model.ParseJobStatus(*u.Status)
		if !ok {
			return &badRequestError{msg: "unknown task status: " + *u.Status}
		}
		fields.Status = &status
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return &badRequestError{msg: "progress must be between 0 and 100"}
	}

	_, err := h.engine.UpdateTask(u.TaskID, fields)
	return err
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func failFromErr(c *gin.Context, err error) {
	var br *badRequestError
	switch {
	case errors.As(err, &br):
		fail(c, http.StatusBadRequest, br.msg)
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, cascade.ErrTerminal):
		fail(c, http.StatusConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}
