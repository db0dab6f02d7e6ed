package cascade

import (
	"time"

	"fleetops/internal/model"
)

// Cascade propagates a job's terminal failure/cancellation to its
// dependents: child jobs first, then pending tasks, then running workflow
// steps. The three sub-steps are independent and best-effort; a failure
// in one is logged and the next still runs. Re-running the cascade on the
// same job is idempotent: every write is guarded by a status predicate,
// so records that already terminated are left untouched.
func (e *Engine) Cascade(job *model.Job) {
	if job.Status != model.JobStatusCancelled && job.Status != model.JobStatusFailed {
		return
	}

	now := time.Now()
	log := e.logger.WithField("jobId", job.ID).WithField("status", job.Status)

	// 1. Child jobs
	children, err := e.store.ChildJobs(job.ID)
	if err != nil {
		log.WithError(err).Error("cascade: failed to load child jobs")
	} else {
		reason := "Cancelled - parent job cancelled"
		if job.Status == model.JobStatusFailed {
			reason = "Cancelled - parent job failed"
		}
		for i := range children {
			child := &children[i]
			if child.Status.Terminal() {
				continue
			}
			details, derr := model.WithCancellationReason(child.Details, reason)
			if derr != nil {
				log.WithError(derr).Errorf("cascade: failed to note reason on child job %d", child.ID)
				details = child.Details
			}
			n, cerr := e.store.CancelChildJob(child.ID, details, now)
			if cerr != nil {
				log.WithError(cerr).Errorf("cascade: failed to cancel child job %d", child.ID)
				continue
			}
			if n > 0 {
				log.Infof("cascade: cancelled child job %d", child.ID)
				// The child is now terminal; its own dependents
				// follow the same rules.
				child.Status = model.JobStatusCancelled
				e.Cascade(child)
				if e.feed != nil {
					if fresh, ferr := e.store.GetJob(child.ID); ferr == nil {
						e.feed.PublishJobEvent(model.EventTypeUpdate, fresh)
					}
				}
			}
		}
	}

	// 2. Pending tasks. Running tasks are left to the executor.
	taskLog := "Cancelled by user"
	if job.Status == model.JobStatusFailed {
		taskLog = "Cancelled - parent job failed"
	}
	if n, err := e.store.CancelPendingTasks(job.ID, taskLog, now); err != nil {
		log.WithError(err).Error("cascade: failed to cancel pending tasks")
	} else if n > 0 {
		log.Infof("cascade: cancelled %d pending tasks", n)
	}

	// 3. Running workflow steps mirror the parent's terminal status.
	if n, err := e.store.CloseRunningSteps(job.ID, job.Status, now); err != nil {
		log.WithError(err).Error("cascade: failed to close running workflow steps")
	} else if n > 0 {
		log.Infof("cascade: closed %d running workflow steps", n)
	}
}
