package cascade

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleetops/internal/db"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store.New(gdb)
}

var uidSeq int

func newJob(t *testing.T, st *store.Store, status model.JobStatus, parentID *int64) *model.Job {
	t.Helper()
	uidSeq++
	job := &model.Job{
		UID:         fmt.Sprintf("test-uid-%d-%d", time.Now().UnixNano(), uidSeq),
		JobType:     model.JobTypeFirmwareUpdate,
		Status:      status,
		ParentJobID: parentID,
	}
	if status != model.JobStatusPending {
		now := time.Now()
		job.StartedAt = &now
		if status.Terminal() {
			job.CompletedAt = &now
		}
	}
	created, err := st.CreateJob(job)
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return created
}

func newTask(t *testing.T, st *store.Store, jobID int64, status model.JobStatus, logLine string) *model.Task {
	t.Helper()
	task := &model.Task{JobID: jobID, Status: status, Log: logLine}
	created, err := st.CreateTask(task)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return created
}

type fakeNotifier struct {
	statuses []model.JobStatus
}

func (f *fakeNotifier) JobStatusChanged(job *model.Job) {
	f.statuses = append(f.statuses, job.Status)
}

func statusPtr(s model.JobStatus) *model.JobStatus { return &s }

func TestUpdateJobStampsTimestamps(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	job := newJob(t, st, model.JobStatusPending, nil)

	updated, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusRunning)})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if updated.Status != model.JobStatusRunning {
		t.Errorf("expected status running, got %s", updated.Status)
	}
	if updated.StartedAt == nil {
		t.Error("expected started_at to be stamped on leaving pending")
	}
	if updated.CompletedAt != nil {
		t.Error("completed_at should not be set for a running job")
	}

	updated, err = engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusCompleted)})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Error("expected completed_at to be stamped on terminal status")
	}
}

func TestUpdateJobNoResurrection(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	job := newJob(t, st, model.JobStatusCompleted, nil)

	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusRunning)}); err == nil {
		t.Fatal("expected error when resurrecting a completed job")
	}

	// Re-posting the same terminal status is a no-op, not an error.
	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusCompleted)}); err != nil {
		t.Fatalf("reposting the same terminal status should be accepted: %v", err)
	}
}

func TestCascadeCancelsNonTerminalChildren(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	parent := newJob(t, st, model.JobStatusRunning, nil)
	pendingChild := newJob(t, st, model.JobStatusPending, &parent.ID)
	runningChild := newJob(t, st, model.JobStatusRunning, &parent.ID)
	doneChild := newJob(t, st, model.JobStatusCompleted, &parent.ID)
	doneAt := *doneChild.CompletedAt

	if _, err := engine.UpdateJob(parent.ID, JobFields{Status: statusPtr(model.JobStatusFailed)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	for _, id := range []int64{pendingChild.ID, runningChild.ID} {
		child, err := st.GetJob(id)
		if err != nil {
			t.Fatalf("failed to reload child %d: %v", id, err)
		}
		if child.Status != model.JobStatusCancelled {
			t.Errorf("child %d: expected cancelled, got %s", id, child.Status)
		}
		if child.CompletedAt == nil {
			t.Errorf("child %d: expected completed_at to be set", id)
		}
		details, err := model.DecodeDetails(child.Details)
		if err != nil {
			t.Fatalf("child %d: failed to decode details: %v", id, err)
		}
		if details.CancellationReason == "" {
			t.Errorf("child %d: expected a cancellation_reason note", id)
		}
	}

	// A child already terminal is left untouched.
	done, err := st.GetJob(doneChild.ID)
	if err != nil {
		t.Fatalf("failed to reload completed child: %v", err)
	}
	if done.Status != model.JobStatusCompleted {
		t.Errorf("completed child must not change, got %s", done.Status)
	}
	if done.CompletedAt == nil || done.CompletedAt.Unix() != doneAt.Unix() {
		t.Error("completed child's completed_at must not change")
	}
}

func TestCascadeTaskSubordination(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	job := newJob(t, st, model.JobStatusRunning, nil)
	pending := newTask(t, st, job.ID, model.JobStatusPending, "")
	running := newTask(t, st, job.ID, model.JobStatusRunning, "flashing 40%")

	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusFailed)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := st.GetTask(pending.ID)
	if err != nil {
		t.Fatalf("failed to reload pending task: %v", err)
	}
	if got.Status != model.JobStatusCancelled {
		t.Errorf("pending task: expected cancelled, got %s", got.Status)
	}
	if got.Log != "Cancelled - parent job failed" {
		t.Errorf("pending task: unexpected log %q", got.Log)
	}
	if got.CompletedAt == nil {
		t.Error("pending task: expected completed_at to be set")
	}

	// Running tasks stay with the executor.
	got, err = st.GetTask(running.ID)
	if err != nil {
		t.Fatalf("failed to reload running task: %v", err)
	}
	if got.Status != model.JobStatusRunning {
		t.Errorf("running task must not change, got %s", got.Status)
	}
	if got.Log != "flashing 40%" {
		t.Errorf("running task log must not change, got %q", got.Log)
	}
}

func TestCascadeUserCancelTaskLog(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	job := newJob(t, st, model.JobStatusRunning, nil)
	pending := newTask(t, st, job.ID, model.JobStatusPending, "")

	if _, err := engine.CancelJob(job.ID, "", "operator"); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	got, err := st.GetTask(pending.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if got.Log != "Cancelled by user" {
		t.Errorf("unexpected log %q", got.Log)
	}
}

func TestCascadeClosesRunningSteps(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	job := newJob(t, st, model.JobStatusRunning, nil)
	running, err := st.CreateStep(&model.WorkflowStep{JobID: job.ID, Name: "drain host", StepStatus: model.JobStatusRunning})
	if err != nil {
		t.Fatalf("failed to create step: %v", err)
	}
	done, err := st.CreateStep(&model.WorkflowStep{JobID: job.ID, Name: "update host", StepStatus: model.JobStatusCompleted})
	if err != nil {
		t.Fatalf("failed to create step: %v", err)
	}

	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusFailed)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	steps, err := st.StepsForJob(job.ID)
	if err != nil {
		t.Fatalf("failed to reload steps: %v", err)
	}
	for _, step := range steps {
		switch step.ID {
		case running.ID:
			if step.StepStatus != model.JobStatusFailed {
				t.Errorf("running step should mirror the parent's failed status, got %s", step.StepStatus)
			}
			if step.StepCompletedAt == nil {
				t.Error("running step should get step_completed_at")
			}
		case done.ID:
			if step.StepStatus != model.JobStatusCompleted {
				t.Errorf("completed step must not change, got %s", step.StepStatus)
			}
		}
	}
}

func TestCascadeIdempotent(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	parent := newJob(t, st, model.JobStatusRunning, nil)
	newJob(t, st, model.JobStatusPending, &parent.ID)
	newTask(t, st, parent.ID, model.JobStatusPending, "")
	if _, err := st.CreateStep(&model.WorkflowStep{JobID: parent.ID, Name: "scan", StepStatus: model.JobStatusRunning}); err != nil {
		t.Fatalf("failed to create step: %v", err)
	}

	updated, err := engine.UpdateJob(parent.ID, JobFields{Status: statusPtr(model.JobStatusCancelled)})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	first := snapshotState(t, st, parent.ID)

	// Simulate the race: a second cascade over the same job.
	engine.Cascade(updated)

	second := snapshotState(t, st, parent.ID)
	if first != second {
		t.Errorf("cascade is not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func snapshotState(t *testing.T, st *store.Store, parentID int64) string {
	t.Helper()
	out := ""
	children, err := st.ChildJobs(parentID)
	if err != nil {
		t.Fatalf("failed to load children: %v", err)
	}
	for _, c := range children {
		out += fmt.Sprintf("job %d %s %v;", c.ID, c.Status, c.CompletedAt)
	}
	tasks, err := st.TasksForJob(parentID)
	if err != nil {
		t.Fatalf("failed to load tasks: %v", err)
	}
	for _, task := range tasks {
		out += fmt.Sprintf("task %d %s %q %v;", task.ID, task.Status, task.Log, task.CompletedAt)
	}
	steps, err := st.StepsForJob(parentID)
	if err != nil {
		t.Fatalf("failed to load steps: %v", err)
	}
	for _, step := range steps {
		out += fmt.Sprintf("step %d %s %v;", step.ID, step.StepStatus, step.StepCompletedAt)
	}
	return out
}

func TestNotifierFiresOnSelectedTransitions(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	engine := New(st, notifier, nil, nil)

	job := newJob(t, st, model.JobStatusPending, nil)

	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusRunning)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusCompleted)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	other := newJob(t, st, model.JobStatusRunning, nil)
	if _, err := engine.UpdateJob(other.ID, JobFields{Status: statusPtr(model.JobStatusCancelled)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	want := []model.JobStatus{model.JobStatusRunning, model.JobStatusCompleted}
	if len(notifier.statuses) != len(want) {
		t.Fatalf("expected %d notifications, got %d (%v)", len(want), len(notifier.statuses), notifier.statuses)
	}
	for i, s := range want {
		if notifier.statuses[i] != s {
			t.Errorf("notification %d: expected %s, got %s", i, s, notifier.statuses[i])
		}
	}
}

func TestCascadeRecursesIntoGrandchildren(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	parent := newJob(t, st, model.JobStatusRunning, nil)
	child := newJob(t, st, model.JobStatusRunning, &parent.ID)
	grandchild := newJob(t, st, model.JobStatusPending, &child.ID)

	if _, err := engine.UpdateJob(parent.ID, JobFields{Status: statusPtr(model.JobStatusCancelled)}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := st.GetJob(grandchild.ID)
	if err != nil {
		t.Fatalf("failed to reload grandchild: %v", err)
	}
	if got.Status != model.JobStatusCancelled {
		t.Errorf("grandchild: expected cancelled, got %s", got.Status)
	}
}

func TestStatusWriteRefusesStaleObservation(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	// Writer A reads the job while it is still running; before A writes,
	// writer B cancels it through the engine. A's conditional write must
	// lose, not flip the cancelled job to completed.
	job := newJob(t, st, model.JobStatusRunning, nil)
	observed := job.Status

	if _, err := engine.CancelJob(job.ID, "", "operator"); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	now := time.Now()
	n, err := st.UpdateJobStatusFields(job.ID, observed, map[string]interface{}{
		"status":       model.JobStatusCompleted,
		"completed_at": now,
	})
	if err != nil {
		t.Fatalf("UpdateJobStatusFields failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("a write predicated on the stale status must affect 0 rows, got %d", n)
	}

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if got.Status != model.JobStatusCancelled {
		t.Errorf("cancelled job must not be overridden, got %s", got.Status)
	}

	// The loser's re-read path: posting completed through the engine now
	// hits the terminal check.
	if _, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusCompleted)}); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal after losing the race, got %v", err)
	}
}

func TestCascadeSubStepFailureDoesNotEscalate(t *testing.T) {
	st := testStore(t)
	engine := New(st, nil, nil, nil)

	job := newJob(t, st, model.JobStatusRunning, nil)
	step, err := st.CreateStep(&model.WorkflowStep{JobID: job.ID, Name: "drain host", StepStatus: model.JobStatusRunning})
	if err != nil {
		t.Fatalf("failed to create step: %v", err)
	}

	// Break the task sub-step: CancelPendingTasks now errors.
	if err := st.DB().Migrator().DropTable(&model.Task{}); err != nil {
		t.Fatalf("failed to drop tasks table: %v", err)
	}

	updated, err := engine.UpdateJob(job.ID, JobFields{Status: statusPtr(model.JobStatusFailed)})
	if err != nil {
		t.Fatalf("a cascade sub-step failure must not escalate to the caller: %v", err)
	}
	if updated.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", updated.Status)
	}

	// The step sub-step still ran after the task one errored.
	steps, err := st.StepsForJob(job.ID)
	if err != nil {
		t.Fatalf("failed to reload steps: %v", err)
	}
	if len(steps) != 1 || steps[0].ID != step.ID {
		t.Fatalf("unexpected steps: %+v", steps)
	}
	if steps[0].StepStatus != model.JobStatusFailed {
		t.Errorf("running step should still be closed, got %s", steps[0].StepStatus)
	}
	if steps[0].StepCompletedAt == nil {
		t.Error("running step should still get step_completed_at")
	}
}
