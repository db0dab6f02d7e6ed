package store

import (
	"fmt"

	"fleetops/internal/model"
)

// StuckTerminalJobs finds failed/cancelled jobs that still have
// non-terminal dependents: a pending/running child job, a pending task,
// or a running workflow step. These are the leftovers of a partially
// failed cascade; the watchdog re-drives them.
func (s *Store) StuckTerminalJobs(limit int) ([]model.Job, error) {
	terminal := []model.JobStatus{model.JobStatusFailed, model.JobStatusCancelled}
	open := []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}

	ids := map[int64]struct{}{}

	var parentIDs []int64
	err := s.db.Model(&model.Job{}).
		Where("parent_job_id IS NOT NULL AND status IN ?", open).
		Distinct("parent_job_id").
		Pluck("parent_job_id", &parentIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query parents of open child jobs: %w", err)
	}
	for _, id := range parentIDs {
		ids[id] = struct{}{}
	}

	var taskJobIDs []int64
	err = s.db.Model(&model.Task{}).
		Where("status = ?", model.JobStatusPending).
		Distinct("job_id").
		Pluck("job_id", &taskJobIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs with pending tasks: %w", err)
	}
	for _, id := range taskJobIDs {
		ids[id] = struct{}{}
	}

	var stepJobIDs []int64
	err = s.db.Model(&model.WorkflowStep{}).
		Where("step_status = ?", model.JobStatusRunning).
		Distinct("job_id").
		Pluck("job_id", &stepJobIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs with running steps: %w", err)
	}
	for _, id := range stepJobIDs {
		ids[id] = struct{}{}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	candidates := make([]int64, 0, len(ids))
	for id := range ids {
		candidates = append(candidates, id)
	}

	var jobs []model.Job
	err = s.db.
		Where("id IN ? AND status IN ?", candidates, terminal).
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck terminal jobs: %w", err)
	}
	return jobs, nil
}
