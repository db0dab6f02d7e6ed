package model

import "time"

// WorkflowStep records one stage of a multi-stage orchestrated job
// (e.g. a rolling cluster update).
type WorkflowStep struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID           int64      `gorm:"not null;index" json:"job_id"`
	Name            string     `gorm:"type:varchar(128);not null" json:"name"`
	StepStatus      JobStatus  `gorm:"type:varchar(16);not null;default:'pending';index" json:"step_status"`
	StepError       string     `gorm:"type:varchar(512)" json:"step_error"`
	StepCompletedAt *time.Time `json:"step_completed_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (WorkflowStep) TableName() string {
	return "workflow_steps"
}
