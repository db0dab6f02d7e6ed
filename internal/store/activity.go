package store

import (
	"fmt"

	"fleetops/internal/model"
)

// AppendActivity appends one outbound-operation record. Activity records
// are immutable: there is no update counterpart.
func (s *Store) AppendActivity(rec *model.ActivityRecord) (*model.ActivityRecord, error) {
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to append activity record: %w", err)
	}
	return rec, nil
}

// ActivityForJob returns the activity records tagged with a job, oldest
// first
func (s *Store) ActivityForJob(jobID int64) ([]model.ActivityRecord, error) {
	var recs []model.ActivityRecord
	if err := s.db.Where("job_id = ?", jobID).Order("timestamp ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query activity of job %d: %w", jobID, err)
	}
	return recs, nil
}
