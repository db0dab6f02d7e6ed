package activitylog

import (
	"testing"
	"time"

	"fleetops/internal/model"
)

func TestParseConsoleLineGrammars(t *testing.T) {
	cases := []struct {
		line string
		want ConsoleLine
		ok   bool
	}{
		{"[10:15:02] [INFO] starting", ConsoleLine{"10:15:02", "INFO", "starting"}, true},
		{"[10:15:03] WARN: retrying", ConsoleLine{"10:15:03", "WARN", "retrying"}, true},
		{"[10:15:04] done", ConsoleLine{"10:15:04", "INFO", "done"}, true},
		{"[10:15:05] ERROR: flash failed", ConsoleLine{"10:15:05", "ERROR", "flash failed"}, true},
		{"garbage text", ConsoleLine{}, false},
		{"", ConsoleLine{}, false},
		{"[10:15] missing seconds", ConsoleLine{}, false},
	}

	for _, c := range cases {
		got, ok := ParseConsoleLine(c.line)
		if ok != c.ok {
			t.Errorf("%q: expected ok=%v, got %v", c.line, c.ok, ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("%q: expected %+v, got %+v", c.line, c.want, got)
		}
	}
}

func TestMergeOrdering(t *testing.T) {
	t0 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	tasks := []model.Task{
		{Status: model.JobStatusRunning, Log: "task line", StartedAt: &t1},
	}
	activities := []model.ActivityRecord{
		{Operation: "redfish.GET", Endpoint: "/redfish/v1/Systems", Timestamp: t0, Success: true},
	}

	views := Merge(tasks, activities, model.JobDetails{})
	if len(views.All) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(views.All))
	}
	// Activity entry at T+0 sorts before the task entry at T+1.
	if views.All[0].Source != SourceActivity {
		t.Errorf("expected the activity entry first, got %v", views.All[0].Source)
	}
	if views.All[1].Message != "task line" {
		t.Errorf("unexpected second entry: %+v", views.All[1])
	}
}

func TestMergeTieBreakBySourcePriority(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	tasks := []model.Task{
		{Status: model.JobStatusRunning, Log: "task line", StartedAt: &ts},
	}
	activities := []model.ActivityRecord{
		{Operation: "vcenter.MigrateVM", Endpoint: "/sdk", Timestamp: ts, Success: true},
	}

	views := Merge(tasks, activities, model.JobDetails{})
	if views.All[0].Source != SourceTask {
		t.Errorf("tie must break Task before Activity, got %v first", views.All[0].Source)
	}

	// The merge is a pure function: same inputs, same order.
	again := Merge(tasks, activities, model.JobDetails{})
	for i := range views.All {
		if views.All[i].Message != again.All[i].Message {
			t.Errorf("merge is not order-stable at %d", i)
		}
	}
}

func TestMergeConsoleFoldInOnlyWhenEmpty(t *testing.T) {
	details := model.JobDetails{ConsoleLog: []string{
		"[10:15:02] [INFO] starting",
		"garbage text",
		"[10:15:04] done",
	}}

	// No task/activity entries yet: console lines form the All view.
	views := Merge(nil, nil, details)
	if len(views.Executor) != 2 {
		t.Fatalf("expected 2 parsed executor entries, got %d", len(views.Executor))
	}
	if len(views.All) != 2 {
		t.Errorf("expected console lines folded into All, got %d entries", len(views.All))
	}

	// With a task entry present, console lines stay out of All.
	ts := time.Now()
	tasks := []model.Task{{Status: model.JobStatusRunning, Log: "working", StartedAt: &ts}}
	views = Merge(tasks, nil, details)
	if len(views.All) != 1 {
		t.Errorf("expected only the task entry in All, got %d", len(views.All))
	}
	if len(views.Executor) != 2 {
		t.Errorf("executor view must still carry %d entries, got %d", 2, len(views.Executor))
	}
}

func TestMergeErrorsView(t *testing.T) {
	t0 := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	tasks := []model.Task{
		{Status: model.JobStatusFailed, Log: "flash failed", StartedAt: &t0},
		{Status: model.JobStatusCompleted, Log: "ok", StartedAt: &t0},
	}
	activities := []model.ActivityRecord{
		{Operation: "redfish.POST", Endpoint: "/redfish/v1/UpdateService", Timestamp: t0, Success: false, ErrorMessage: "500 from iDRAC"},
		{Operation: "redfish.GET", Endpoint: "/redfish/v1/Systems", Timestamp: t0, Success: true},
	}
	details := model.JobDetails{ConsoleLog: []string{
		"[09:00:01] ERROR: device not responding",
		"[09:00:02] [INFO] retrying",
	}}

	views := Merge(tasks, activities, details)

	if len(views.Errors) != 3 {
		t.Fatalf("expected 3 error entries, got %d", len(views.Errors))
	}
	for _, e := range views.Errors {
		if !e.Failed {
			t.Errorf("non-failed entry in Errors view: %+v", e)
		}
	}
}

func TestMergeTaskWithoutLogGetsStatusMessage(t *testing.T) {
	ts := time.Now()
	tasks := []model.Task{{Status: model.JobStatusPending, CreatedAt: ts}}

	views := Merge(tasks, nil, model.JobDetails{})
	if len(views.All) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(views.All))
	}
	if views.All[0].Message != "Task pending" {
		t.Errorf("unexpected message %q", views.All[0].Message)
	}
}

func TestMergeActivityAnnotations(t *testing.T) {
	ts := time.Now()
	activities := []model.ActivityRecord{
		{Operation: "redfish.GET", Endpoint: "/redfish/v1/Chassis", Timestamp: ts, Success: true, ResponseTimeMs: 42},
	}

	views := Merge(nil, activities, model.JobDetails{})
	if len(views.All) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(views.All))
	}
	want := "redfish.GET - /redfish/v1/Chassis (42ms)"
	if views.All[0].Message != want {
		t.Errorf("expected %q, got %q", want, views.All[0].Message)
	}
}
