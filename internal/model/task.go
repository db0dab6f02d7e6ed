package model

import "time"

// Task is an executor-defined subdivision of a job's work. Tasks are
// created and updated by the external executor; the cascade only ever
// force-cancels pending ones.
type Task struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID       int64      `gorm:"not null;index" json:"job_id"`
	Status      JobStatus  `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Log         string     `gorm:"type:varchar(512)" json:"log"`
	Progress    *int       `json:"progress,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Task) TableName() string {
	return "tasks"
}
