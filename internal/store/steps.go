package store

import (
	"fmt"
	"time"

	"fleetops/internal/model"
)

// CreateStep inserts a new workflow step record and returns it
func (s *Store) CreateStep(step *model.WorkflowStep) (*model.WorkflowStep, error) {
	if err := s.db.Create(step).Error; err != nil {
		return nil, fmt.Errorf("failed to create workflow step: %w", err)
	}
	return step, nil
}

// StepsForJob returns all workflow steps of a job in creation order
func (s *Store) StepsForJob(jobID int64) ([]model.WorkflowStep, error) {
	var steps []model.WorkflowStep
	if err := s.db.Where("job_id = ?", jobID).Order("id ASC").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to query steps of job %d: %w", jobID, err)
	}
	return steps, nil
}

// UpdateStepFields merges only the supplied fields into the step record
// and returns the post-update record
func (s *Store) UpdateStepFields(id int64, fields map[string]interface{}) (*model.WorkflowStep, error) {
	if len(fields) > 0 {
		if err := s.db.Model(&model.WorkflowStep{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update workflow step %d: %w", id, err)
		}
	}
	var step model.WorkflowStep
	if err := s.db.First(&step, id).Error; err != nil {
		return nil, fmt.Errorf("failed to query workflow step %d: %w", id, err)
	}
	return &step, nil
}

// CloseRunningSteps moves every still-running step of a job to the given
// terminal status, mirroring the parent. Predicate-guarded like the other
// cascade writes.
func (s *Store) CloseRunningSteps(jobID int64, status model.JobStatus, now time.Time) (int64, error) {
	res := s.db.Model(&model.WorkflowStep{}).
		Where("job_id = ? AND step_status = ?", jobID, model.JobStatusRunning).
		Updates(map[string]interface{}{
			"step_status":       status,
			"step_completed_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to close running steps of job %d: %w", jobID, res.Error)
	}
	return res.RowsAffected, nil
}
