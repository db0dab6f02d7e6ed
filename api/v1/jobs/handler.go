package jobs

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"fleetops/internal/activitylog"
	"fleetops/internal/cascade"
	"fleetops/internal/httpx"
	"fleetops/internal/model"
	"fleetops/internal/progress"
	"fleetops/internal/store"
)

// Handler jobs handler
type Handler struct {
	store  *store.Store
	engine *cascade.Engine
	feed   cascade.Feed
}

// NewHandler 创建 handler 实例
func NewHandler(st *store.Store, engine *cascade.Engine, feed cascade.Feed) *Handler {
	return &Handler{store: st, engine: engine, feed: feed}
}

// List 查询 jobs 列表
// GET /api/v1/jobs
func (h *Handler) List(c *gin.Context) {
	filter := store.JobFilter{}

	if s := c.Query("status"); s != "" {
		status, ok := model.ParseJobStatus(s)
		if !ok {
			httpx.FailErr(c, httpx.ErrParamInvalid("unknown status: "+s))
			return
		}
		filter.Status = status
	}
	if t := c.Query("jobType"); t != "" {
		jobType, ok := model.ParseJobType(t)
		if !ok {
			httpx.FailErr(c, httpx.ErrParamInvalid("unknown job type: "+t))
			return
		}
		filter.JobType = jobType
	}
	if p := c.Query("parentId"); p != "" {
		parentID, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("parentId must be an integer"))
			return
		}
		filter.ParentJobID = &parentID
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, total, err := h.store.ListJobs(filter)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	httpx.OKItems(c, items, total, page, pageSize)
}

// CreateRequest is the POST /jobs body
type CreateRequest struct {
	JobType     string          `json:"job_type" binding:"required"`
	TargetScope json.RawMessage `json:"target_scope"`
	Details     json.RawMessage `json:"details"`
	ParentJobID *int64          `json:"parent_job_id"`
	CreatedBy   string          `json:"created_by"`
}

// Create 创建 job（初始状态 pending）
// POST /api/v1/jobs
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	jobType, ok := model.ParseJobType(req.JobType)
	if !ok {
		httpx.FailErr(c, httpx.ErrParamInvalid("unknown job type: "+req.JobType))
		return
	}

	if req.ParentJobID != nil {
		parent, err := h.store.GetJob(*req.ParentJobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httpx.FailErr(c, httpx.ErrNotFound("parent job not found"))
				return
			}
			httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
			return
		}
		if parent.Status.Terminal() {
			httpx.FailErr(c, httpx.ErrStateConflict("parent job is already "+string(parent.Status)))
			return
		}
	}

	job := &model.Job{
		UID:         uuid.NewString(),
		JobType:     jobType,
		Status:      model.JobStatusPending,
		TargetScope: datatypes.JSON(req.TargetScope),
		Details:     datatypes.JSON(req.Details),
		ParentJobID: req.ParentJobID,
		CreatedBy:   req.CreatedBy,
	}

	created, err := h.store.CreateJob(job)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}

	if h.feed != nil {
		h.feed.PublishJobEvent(model.EventTypeAdd, created)
	}

	httpx.OK(c, created)
}

// Get 查询单个 job（含 tasks 与 workflow steps）
// GET /api/v1/jobs/:id
func (h *Handler) Get(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	tasks, err := h.store.TasksForJob(job.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}
	steps, err := h.store.StepsForJob(job.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}

	httpx.OK(c, gin.H{
		"job":   job,
		"tasks": tasks,
		"steps": steps,
	})
}

// CancelRequest is the POST /jobs/:id/cancel body
type CancelRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

// Cancel 取消 job（级联处理子任务）
// POST /api/v1/jobs/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.engine.CancelJob(job.ID, req.Reason, req.CancelledBy)
	if err != nil {
		if errors.Is(err, cascade.ErrTerminal) {
			httpx.FailErr(c, httpx.ErrStateConflict(err.Error()))
			return
		}
		httpx.FailErr(c, httpx.ErrInternalError("failed to cancel job", err))
		return
	}

	httpx.OK(c, updated)
}

// Progress 查询 job 进度
// GET /api/v1/jobs/:id/progress
func (h *Handler) Progress(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	tasks, err := h.store.TasksForJob(job.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}

	httpx.OK(c, progress.Aggregate(job, tasks, time.Now()))
}

// Activity 查询 job 活动日志
// GET /api/v1/jobs/:id/activity?view=all|executor|errors
func (h *Handler) Activity(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	tasks, err := h.store.TasksForJob(job.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}
	records, err := h.store.ActivityForJob(job.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}
	details, err := model.DecodeDetails(job.Details)
	if err != nil {
		// A corrupt details blob only loses the executor view.
		details = model.JobDetails{}
	}

	views := activitylog.Merge(tasks, records, details)

	switch c.DefaultQuery("view", "all") {
	case "all":
		httpx.OK(c, views.All)
	case "executor":
		httpx.OK(c, views.Executor)
	case "errors":
		httpx.OK(c, views.Errors)
	default:
		httpx.FailErr(c, httpx.ErrParamInvalid("view must be all, executor or errors"))
	}
}

// loadJob resolves the :id path parameter, by primary key or by uid
func (h *Handler) loadJob(c *gin.Context) (*model.Job, bool) {
	idStr := c.Param("id")

	var job *model.Job
	var err error
	if id, perr := strconv.ParseInt(idStr, 10, 64); perr == nil {
		job, err = h.store.GetJob(id)
	} else {
		job, err = h.store.GetJobByUID(idStr)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("job not found"))
			return nil, false
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return nil, false
	}
	return job, true
}
