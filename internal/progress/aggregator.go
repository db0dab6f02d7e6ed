package progress

import (
	"time"

	"fleetops/internal/model"
)

// Snapshot is the derived progress view of one job.
type Snapshot struct {
	CompletedTasks  int           `json:"completed_tasks"`
	TotalTasks      int           `json:"total_tasks"`
	ProgressPercent int           `json:"progress_percent"`
	CurrentStep     *string       `json:"current_step"`
	Elapsed         time.Duration `json:"-"`
	ElapsedSeconds  int64         `json:"elapsed_seconds"`
}

// Aggregate computes a job's progress from its task records and details
// payload. It is a pure function of its inputs.
//
// Stage-based jobs carry a finer-grained progress signal in details;
// when present it supersedes the generic task ratio, both for the
// percentage and for the current-step label. A job with no tasks and no
// stage reports 0% with a nil current step, which renders as
// indeterminate rather than "0% done".
func Aggregate(job *model.Job, tasks []model.Task, now time.Time) Snapshot {
	snap := Snapshot{TotalTasks: len(tasks)}

	for i := range tasks {
		if tasks[i].Status == model.JobStatusCompleted {
			snap.CompletedTasks++
		}
	}
	if snap.TotalTasks > 0 {
		snap.ProgressPercent = 100 * snap.CompletedTasks / snap.TotalTasks
	}

	details, _ := model.DecodeDetails(job.Details)
	if details.Stage != "" {
		label := details.Label(job.JobType)
		snap.CurrentStep = &label
		if sp := details.StageProgress; sp != nil && sp.Total > 0 {
			percent := 100 * sp.Current / sp.Total
			if percent > 100 {
				percent = 100
			}
			snap.ProgressPercent = percent
		}
	} else {
		snap.CurrentStep = latestTaskLog(tasks)
	}

	snap.Elapsed = elapsed(job, now)
	snap.ElapsedSeconds = int64(snap.Elapsed / time.Second)
	return snap
}

// latestTaskLog picks the latest non-empty log line among tasks ordered
// by started_at descending. Tasks that never started sort by created_at.
func latestTaskLog(tasks []model.Task) *string {
	var best *model.Task
	for i := range tasks {
		t := &tasks[i]
		if t.Log == "" {
			continue
		}
		if best == nil || startTime(t).After(startTime(best)) {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	log := best.Log
	return &log
}

func startTime(t *model.Task) time.Time {
	if t.StartedAt != nil {
		return *t.StartedAt
	}
	return t.CreatedAt
}

// elapsed runs while the job is pending/running and freezes at
// completed_at - started_at once terminal.
func elapsed(job *model.Job, now time.Time) time.Duration {
	if job.Status.Terminal() {
		if job.StartedAt != nil && job.CompletedAt != nil {
			return job.CompletedAt.Sub(*job.StartedAt)
		}
		return 0
	}
	start := job.CreatedAt
	if job.StartedAt != nil {
		start = *job.StartedAt
	}
	return now.Sub(start)
}
