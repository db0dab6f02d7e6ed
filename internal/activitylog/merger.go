package activitylog

import (
	"fmt"
	"sort"
	"time"

	"fleetops/internal/model"
)

// Source identifies where a merged entry came from. Lower values win
// timestamp ties, so the ordering here is also the tie-break priority.
type Source int

const (
	SourceTask Source = iota
	SourceActivity
	SourceExecutor
)

func (s Source) String() string {
	switch s {
	case SourceTask:
		return "task"
	case SourceActivity:
		return "activity"
	case SourceExecutor:
		return "executor"
	}
	return "unknown"
}

// Entry is one line of the unified activity stream.
type Entry struct {
	Time      time.Time `json:"time,omitempty"`
	TimeOfDay string    `json:"time_of_day,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Source    Source    `json:"-"`
	SourceTag string    `json:"source"`
	Failed    bool      `json:"failed"`
}

// Views holds the three renderings of a job's activity stream.
type Views struct {
	All      []Entry `json:"all"`
	Executor []Entry `json:"executor"`
	Errors   []Entry `json:"errors"`
}

// Merge produces the chronologically ordered activity views of one job
// from its three log sources: task records, activity/command records and
// the free-text console lines in the job's details. It is a pure
// function: same inputs, same output, stable order.
//
// Parsed console lines form the Executor view on their own and fold into
// All only while no task/activity entries exist yet; mixing time-of-day
// lines into a dated stream would break ordering.
func Merge(tasks []model.Task, activities []model.ActivityRecord, details model.JobDetails) Views {
	var views Views

	for i := range tasks {
		views.All = append(views.All, taskEntry(&tasks[i]))
	}
	for i := range activities {
		views.All = append(views.All, activityEntry(&activities[i]))
	}

	// Entries are appended task-first, so a stable sort keeps the
	// Task < Activity < Executor priority on timestamp ties.
	sort.SliceStable(views.All, func(i, j int) bool {
		return views.All[i].Time.Before(views.All[j].Time)
	})

	for _, line := range details.ConsoleLog {
		parsed, ok := ParseConsoleLine(line)
		if !ok {
			continue
		}
		views.Executor = append(views.Executor, consoleEntry(parsed))
	}

	folded := len(views.All) == 0
	if folded {
		views.All = append(views.All, views.Executor...)
	}

	for _, e := range views.All {
		if e.Failed {
			views.Errors = append(views.Errors, e)
		}
	}
	if !folded {
		// Executor-only errors still belong in the Errors view even
		// when the console lines were not folded into All.
		for _, e := range views.Executor {
			if e.Failed {
				views.Errors = append(views.Errors, e)
			}
		}
	}

	return views
}

func taskEntry(t *model.Task) Entry {
	ts := t.CreatedAt
	if t.StartedAt != nil {
		ts = *t.StartedAt
	}
	msg := t.Log
	if msg == "" {
		msg = fmt.Sprintf("Task %s", t.Status)
	}
	level := "INFO"
	failed := t.Status == model.JobStatusFailed
	if failed {
		level = "ERROR"
	}
	return Entry{
		Time:      ts,
		Level:     level,
		Message:   msg,
		Source:    SourceTask,
		SourceTag: SourceTask.String(),
		Failed:    failed,
	}
}

func activityEntry(a *model.ActivityRecord) Entry {
	msg := fmt.Sprintf("%s - %s", a.Operation, a.Endpoint)
	if a.ResponseTimeMs > 0 {
		msg = fmt.Sprintf("%s (%dms)", msg, a.ResponseTimeMs)
	}
	failed := !a.Success || a.ErrorMessage != ""
	level := "INFO"
	if failed {
		level = "ERROR"
		if a.ErrorMessage != "" {
			msg = fmt.Sprintf("%s: %s", msg, a.ErrorMessage)
		}
	}
	return Entry{
		Time:      a.Timestamp,
		Level:     level,
		Message:   msg,
		Source:    SourceActivity,
		SourceTag: SourceActivity.String(),
		Failed:    failed,
	}
}

func consoleEntry(line ConsoleLine) Entry {
	failed := line.Level == "ERROR" || line.Level == "FATAL"
	return Entry{
		TimeOfDay: line.Timestamp,
		Level:     line.Level,
		Message:   line.Message,
		Source:    SourceExecutor,
		SourceTag: SourceExecutor.String(),
		Failed:    failed,
	}
}
