package store

import (
	"errors"
	"fmt"
	"time"

	"fleetops/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// JobFilter holds the predicates for ListJobs
type JobFilter struct {
	Status      model.JobStatus
	JobType     model.JobType
	ParentJobID *int64
	Page        int
	PageSize    int
}

// CreateJob inserts a new job record and returns it
func (s *Store) CreateJob(job *model.Job) (*model.Job, error) {
	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by primary key
func (s *Store) GetJob(id int64) (*model.Job, error) {
	var job model.Job
	if err := s.db.First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query job %d: %w", id, err)
	}
	return &job, nil
}

// GetJobByUID fetches a job by its external identifier
func (s *Store) GetJobByUID(uid string) (*model.Job, error) {
	var job model.Job
	if err := s.db.Where("uid = ?", uid).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query job %s: %w", uid, err)
	}
	return &job, nil
}

// ListJobs queries jobs by predicate with pagination, newest first
func (s *Store) ListJobs(f JobFilter) ([]model.Job, int64, error) {
	query := s.db.Model(&model.Job{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.JobType != "" {
		query = query.Where("job_type = ?", f.JobType)
	}
	if f.ParentJobID != nil {
		query = query.Where("parent_job_id = ?", *f.ParentJobID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	page := f.Page
	pageSize := f.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var jobs []model.Job
	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Limit(pageSize).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

// ActiveJobs returns all jobs whose status is not terminal, newest first
func (s *Store) ActiveJobs(limit int) ([]model.Job, error) {
	var jobs []model.Job
	err := s.db.
		Where("status IN ?", []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", err)
	}
	return jobs, nil
}

// ChildJobs returns the direct children of a job
func (s *Store) ChildJobs(parentID int64) ([]model.Job, error) {
	var jobs []model.Job
	if err := s.db.Where("parent_job_id = ?", parentID).Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to query child jobs of %d: %w", parentID, err)
	}
	return jobs, nil
}

// UpdateJobFields merges only the supplied fields into the job record and
// returns the post-update record. Fields not present in the map are left
// untouched (sparse update).
func (s *Store) UpdateJobFields(id int64, fields map[string]interface{}) (*model.Job, error) {
	if len(fields) > 0 {
		if err := s.db.Model(&model.Job{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update job %d: %w", id, err)
		}
	}
	return s.GetJob(id)
}

// UpdateJobStatusFields merges the supplied fields into the job record
// only while its status still matches the one the caller observed. A
// concurrent writer that already moved the record wins and this write is
// a no-op. Returns the number of rows affected (0 or 1).
func (s *Store) UpdateJobStatusFields(id int64, observed model.JobStatus, fields map[string]interface{}) (int64, error) {
	res := s.db.Model(&model.Job{}).
		Where("id = ? AND status = ?", id, observed).
		Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update job %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

// CancelChildJob cancels a single child job if it is still pending or
// running. The status predicate on the UPDATE itself keeps concurrent
// cascades from overriding a record that already reached a terminal
// state. Returns the number of rows affected (0 or 1).
func (s *Store) CancelChildJob(childID int64, details interface{}, now time.Time) (int64, error) {
	res := s.db.Model(&model.Job{}).
		Where("id = ? AND status IN ?", childID,
			[]model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":       model.JobStatusCancelled,
			"completed_at": now,
			"details":      details,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cancel child job %d: %w", childID, res.Error)
	}
	return res.RowsAffected, nil
}
