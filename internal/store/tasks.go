package store

import (
	"errors"
	"fmt"
	"time"

	"fleetops/internal/model"

	"gorm.io/gorm"
)

// CreateTask inserts a new task record and returns it
func (s *Store) CreateTask(task *model.Task) (*model.Task, error) {
	if err := s.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// GetTask fetches a task by primary key
func (s *Store) GetTask(id int64) (*model.Task, error) {
	var task model.Task
	if err := s.db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query task %d: %w", id, err)
	}
	return &task, nil
}

// TasksForJob returns all tasks of a job, oldest first
func (s *Store) TasksForJob(jobID int64) ([]model.Task, error) {
	var tasks []model.Task
	if err := s.db.Where("job_id = ?", jobID).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to query tasks of job %d: %w", jobID, err)
	}
	return tasks, nil
}

// UpdateTaskFields merges only the supplied fields into the task record
// and returns the post-update record
func (s *Store) UpdateTaskFields(id int64, fields map[string]interface{}) (*model.Task, error) {
	if len(fields) > 0 {
		if err := s.db.Model(&model.Task{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update task %d: %w", id, err)
		}
	}
	return s.GetTask(id)
}

// UpdateTaskStatusFields merges the supplied fields into the task record
// only while its status still matches the one the caller observed.
// Returns the number of rows affected (0 or 1).
func (s *Store) UpdateTaskStatusFields(id int64, observed model.JobStatus, fields map[string]interface{}) (int64, error) {
	res := s.db.Model(&model.Task{}).
		Where("id = ? AND status = ?", id, observed).
		Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update task %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

// CancelPendingTasks force-cancels every still-pending task of a job in a
// single predicate-guarded UPDATE. Running tasks are intentionally not
// touched here: terminating in-flight work belongs to the executor.
func (s *Store) CancelPendingTasks(jobID int64, logMsg string, now time.Time) (int64, error) {
	res := s.db.Model(&model.Task{}).
		Where("job_id = ? AND status = ?", jobID, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":       model.JobStatusCancelled,
			"completed_at": now,
			"log":          logMsg,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cancel pending tasks of job %d: %w", jobID, res.Error)
	}
	return res.RowsAffected, nil
}
