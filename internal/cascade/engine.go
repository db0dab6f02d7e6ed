package cascade

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// ErrTerminal is returned when an update would resurrect a record that
// already reached a terminal status.
var ErrTerminal = errors.New("record is in a terminal state")

// Notifier receives status-transition notifications. Dispatch is
// fire-and-forget: implementations log their own failures and never
// return them.
type Notifier interface {
	JobStatusChanged(job *model.Job)
}

// Feed publishes change-feed events for live viewers. Publication
// failures must not fail the originating update.
type Feed interface {
	PublishJobEvent(eventType string, job *model.Job)
}

// Engine applies requested status changes to jobs and tasks and
// propagates terminal statuses to dependents. All cascade sub-steps are
// predicate-guarded conditional updates, so a record can only move toward
// a terminal state and a cascade racing another writer is a no-op on
// records that already terminated.
type Engine struct {
	store    *store.Store
	notifier Notifier
	feed     Feed
	logger   *logrus.Entry
}

// New creates an Engine. notifier and feed may be nil.
func New(st *store.Store, notifier Notifier, feed Feed, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		store:    st,
		notifier: notifier,
		feed:     feed,
		logger:   logger.WithField("component", "cascade"),
	}
}

// JobFields is a sparse job update: only non-nil fields are merged.
type JobFields struct {
	Status      *model.JobStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Details     datatypes.JSON
}

// TaskFields is a sparse task update: only non-nil fields are merged.
type TaskFields struct {
	Status      *model.JobStatus
	Log         *string
	Progress    *int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// updateRetries bounds the re-read/re-apply loop on a contended status
// write before the update is abandoned as a conflict.
const updateRetries = 3

// UpdateJob merges the supplied fields into the job record. A status
// change is written through a conditional UPDATE predicated on the status
// the caller observed, so two racing writers cannot both move the record:
// the loser re-reads and either re-applies or hits the terminal check.
// Once the primary write has committed, terminal statuses cascade to
// dependents and a notification fires; both are best-effort side effects
// that never fail the update itself.
func (e *Engine) UpdateJob(jobID int64, fields JobFields) (*model.Job, error) {
	for attempt := 0; ; attempt++ {
		job, err := e.store.GetJob(jobID)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		updates := map[string]interface{}{}

		if fields.Status != nil {
			newStatus := *fields.Status
			if job.Status.Terminal() && newStatus != job.Status {
				return nil, fmt.Errorf("job %d is already %s and cannot move to %s: %w", jobID, job.Status, newStatus, ErrTerminal)
			}
			if newStatus != job.Status {
				updates["status"] = newStatus
				// started_at is set no later than the first transition
				// away from pending.
				if job.StartedAt == nil && fields.StartedAt == nil && newStatus != model.JobStatusPending {
					updates["started_at"] = now
				}
				if newStatus.Terminal() && fields.CompletedAt == nil {
					updates["completed_at"] = now
				}
			}
		}
		if fields.StartedAt != nil {
			updates["started_at"] = *fields.StartedAt
		}
		if fields.CompletedAt != nil {
			updates["completed_at"] = *fields.CompletedAt
		}
		if fields.Details != nil {
			updates["details"] = fields.Details
		}

		statusChanged := fields.Status != nil && *fields.Status != job.Status
		if !statusChanged {
			return e.store.UpdateJobFields(jobID, updates)
		}

		n, err := e.store.UpdateJobStatusFields(jobID, job.Status, updates)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Another writer moved the record between the read and the
			// write. Re-read: if they terminated it, the terminal check
			// rejects on the next pass.
			if attempt >= updateRetries {
				return nil, fmt.Errorf("job %d: conflicting concurrent status updates, giving up", jobID)
			}
			continue
		}

		updated, err := e.store.GetJob(jobID)
		if err != nil {
			return nil, err
		}

		if updated.Status == model.JobStatusCancelled || updated.Status == model.JobStatusFailed {
			e.Cascade(updated)
		}

		switch updated.Status {
		case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusRunning:
			if e.notifier != nil {
				e.notifier.JobStatusChanged(updated)
			}
		}
		if e.feed != nil {
			e.feed.PublishJobEvent(model.EventTypeUpdate, updated)
		}

		return updated, nil
	}
}

// CancelJob is the user-facing cancel: a plain status update with the
// cancellation reason noted in the details blob.
func (e *Engine) CancelJob(jobID int64, reason, cancelledBy string) (*model.Job, error) {
	job, err := e.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %d is already %s: %w", jobID, job.Status, ErrTerminal)
	}

	if reason == "" {
		reason = "Cancelled by user"
	}
	if cancelledBy != "" {
		reason = fmt.Sprintf("%s (%s)", reason, cancelledBy)
	}
	details, err := model.WithCancellationReason(job.Details, reason)
	if err != nil {
		return nil, err
	}

	status := model.JobStatusCancelled
	return e.UpdateJob(jobID, JobFields{Status: &status, Details: details})
}

// UpdateTask merges the supplied fields into a task record. Task updates
// come from the executor; they never cascade, but they do surface on the
// owning job's change feed. Status changes are written through the same
// observed-status conditional UPDATE as job updates.
func (e *Engine) UpdateTask(taskID int64, fields TaskFields) (*model.Task, error) {
	for attempt := 0; ; attempt++ {
		task, err := e.store.GetTask(taskID)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		updates := map[string]interface{}{}

		if fields.Status != nil {
			newStatus := *fields.Status
			if task.Status.Terminal() && newStatus != task.Status {
				return nil, fmt.Errorf("task %d is already %s and cannot move to %s: %w", taskID, task.Status, newStatus, ErrTerminal)
			}
			if newStatus != task.Status {
				updates["status"] = newStatus
				if task.StartedAt == nil && fields.StartedAt == nil && newStatus != model.JobStatusPending {
					updates["started_at"] = now
				}
				if newStatus.Terminal() && fields.CompletedAt == nil {
					updates["completed_at"] = now
				}
			}
		}
		if fields.Log != nil {
			updates["log"] = *fields.Log
		}
		if fields.Progress != nil {
			updates["progress"] = *fields.Progress
		}
		if fields.StartedAt != nil {
			updates["started_at"] = *fields.StartedAt
		}
		if fields.CompletedAt != nil {
			updates["completed_at"] = *fields.CompletedAt
		}

		var updated *model.Task
		statusChanged := fields.Status != nil && *fields.Status != task.Status
		if statusChanged {
			n, uerr := e.store.UpdateTaskStatusFields(taskID, task.Status, updates)
			if uerr != nil {
				return nil, uerr
			}
			if n == 0 {
				if attempt >= updateRetries {
					return nil, fmt.Errorf("task %d: conflicting concurrent status updates, giving up", taskID)
				}
				continue
			}
			updated, err = e.store.GetTask(taskID)
		} else {
			updated, err = e.store.UpdateTaskFields(taskID, updates)
		}
		if err != nil {
			return nil, err
		}

		if e.feed != nil {
			if job, jerr := e.store.GetJob(updated.JobID); jerr == nil {
				e.feed.PublishJobEvent(model.EventTypeUpdate, job)
			} else {
				e.logger.WithError(jerr).Warnf("feed publish skipped: owning job %d not found", updated.JobID)
			}
		}

		return updated, nil
	}
}
