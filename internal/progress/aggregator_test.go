package progress

import (
	"testing"
	"time"

	"gorm.io/datatypes"

	"fleetops/internal/model"
)

func taskWith(status model.JobStatus, logLine string, startedAt *time.Time) model.Task {
	return model.Task{Status: status, Log: logLine, StartedAt: startedAt, CreatedAt: time.Now()}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestAggregateTaskRatio(t *testing.T) {
	now := time.Now()
	job := &model.Job{JobType: model.JobTypeDiscoveryScan, Status: model.JobStatusRunning, CreatedAt: now.Add(-time.Minute)}
	tasks := []model.Task{
		taskWith(model.JobStatusCompleted, "", nil),
		taskWith(model.JobStatusCompleted, "", nil),
		taskWith(model.JobStatusRunning, "", nil),
		taskWith(model.JobStatusPending, "", nil),
	}

	snap := Aggregate(job, tasks, now)
	if snap.TotalTasks != 4 || snap.CompletedTasks != 2 {
		t.Errorf("expected 2/4, got %d/%d", snap.CompletedTasks, snap.TotalTasks)
	}
	if snap.ProgressPercent != 50 {
		t.Errorf("expected 50%%, got %d%%", snap.ProgressPercent)
	}
}

func TestAggregateZeroTasksIsIndeterminate(t *testing.T) {
	job := &model.Job{JobType: model.JobTypeHealthCheck, Status: model.JobStatusPending, CreatedAt: time.Now()}

	snap := Aggregate(job, nil, time.Now())
	if snap.ProgressPercent != 0 {
		t.Errorf("expected 0%%, got %d%%", snap.ProgressPercent)
	}
	if snap.CurrentStep != nil {
		t.Errorf("expected nil current step, got %q", *snap.CurrentStep)
	}
}

func TestAggregateStagePrecedence(t *testing.T) {
	job := &model.Job{
		JobType: model.JobTypeFirmwareUpdate,
		Status:  model.JobStatusRunning,
		Details: datatypes.JSON(`{"stage":"flashing","stage_progress":{"current":2,"total":5}}`),
	}
	// Tasks exist too; the stage signal must win.
	tasks := []model.Task{
		taskWith(model.JobStatusCompleted, "task one done", nil),
		taskWith(model.JobStatusPending, "", nil),
	}

	snap := Aggregate(job, tasks, time.Now())
	if snap.CurrentStep == nil {
		t.Fatal("expected a stage-derived current step")
	}
	if *snap.CurrentStep != "Flashing firmware (2/5)" {
		t.Errorf("unexpected label %q", *snap.CurrentStep)
	}
	if snap.ProgressPercent != 40 {
		t.Errorf("expected 40%% from stage progress, got %d%%", snap.ProgressPercent)
	}
}

func TestAggregateCurrentStepLatestTaskLog(t *testing.T) {
	now := time.Now()
	tasks := []model.Task{
		taskWith(model.JobStatusCompleted, "older line", timePtr(now.Add(-2*time.Minute))),
		taskWith(model.JobStatusRunning, "newer line", timePtr(now.Add(-time.Minute))),
		taskWith(model.JobStatusRunning, "", timePtr(now)),
	}
	job := &model.Job{JobType: model.JobTypeDiscoveryScan, Status: model.JobStatusRunning, CreatedAt: now}

	snap := Aggregate(job, tasks, now)
	if snap.CurrentStep == nil || *snap.CurrentStep != "newer line" {
		t.Errorf("expected latest non-empty log, got %v", snap.CurrentStep)
	}
}

func TestAggregateProgressMonotonic(t *testing.T) {
	now := time.Now()
	job := &model.Job{JobType: model.JobTypeDiscoveryScan, Status: model.JobStatusRunning, CreatedAt: now}
	tasks := []model.Task{
		taskWith(model.JobStatusPending, "", nil),
		taskWith(model.JobStatusPending, "", nil),
		taskWith(model.JobStatusPending, "", nil),
	}

	// Tasks only ever move forward; the percentage never goes down.
	prev := -1
	advance := []model.JobStatus{model.JobStatusRunning, model.JobStatusCompleted}
	for i := range tasks {
		for _, status := range advance {
			tasks[i].Status = status
			snap := Aggregate(job, tasks, now)
			if snap.ProgressPercent < prev {
				t.Fatalf("progress went backwards: %d%% after %d%%", snap.ProgressPercent, prev)
			}
			prev = snap.ProgressPercent
		}
	}
	if prev != 100 {
		t.Errorf("expected to end at 100%%, got %d%%", prev)
	}
}

func TestAggregateElapsed(t *testing.T) {
	now := time.Now()
	started := now.Add(-10 * time.Minute)
	completed := now.Add(-4 * time.Minute)

	running := &model.Job{Status: model.JobStatusRunning, CreatedAt: now.Add(-time.Hour), StartedAt: &started}
	snap := Aggregate(running, nil, now)
	if snap.Elapsed != 10*time.Minute {
		t.Errorf("running: expected 10m, got %s", snap.Elapsed)
	}

	// Terminal jobs freeze at completed_at - started_at.
	terminal := &model.Job{Status: model.JobStatusCompleted, StartedAt: &started, CompletedAt: &completed}
	snap = Aggregate(terminal, nil, now)
	if snap.Elapsed != 6*time.Minute {
		t.Errorf("terminal: expected 6m, got %s", snap.Elapsed)
	}

	// Never started: falls back to created_at.
	pending := &model.Job{Status: model.JobStatusPending, CreatedAt: now.Add(-30 * time.Second)}
	snap = Aggregate(pending, nil, now)
	if snap.Elapsed != 30*time.Second {
		t.Errorf("pending: expected 30s, got %s", snap.Elapsed)
	}
}

func TestAggregateAllTasksCancelledJobStillRunning(t *testing.T) {
	// Legitimate transient state: executor has not posted the job-level
	// terminal status yet.
	now := time.Now()
	job := &model.Job{JobType: model.JobTypeDiscoveryScan, Status: model.JobStatusRunning, CreatedAt: now}
	tasks := []model.Task{
		taskWith(model.JobStatusCancelled, "", nil),
		taskWith(model.JobStatusCancelled, "", nil),
	}

	snap := Aggregate(job, tasks, now)
	if snap.ProgressPercent != 0 {
		t.Errorf("expected 0%%, got %d%%", snap.ProgressPercent)
	}
	if snap.TotalTasks != 2 || snap.CompletedTasks != 0 {
		t.Errorf("unexpected counts: %d/%d", snap.CompletedTasks, snap.TotalTasks)
	}
}
