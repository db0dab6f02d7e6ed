package model

import (
	"time"

	"gorm.io/datatypes"
)

// JobType 作业类型
type JobType string

const (
	JobTypeFirmwareUpdate       JobType = "firmware_update"
	JobTypeDiscoveryScan        JobType = "discovery_scan"
	JobTypeHealthCheck          JobType = "health_check"
	JobTypeRollingClusterUpdate JobType = "rolling_cluster_update"
	JobTypeVMMigration          JobType = "vm_migration"
	JobTypeReplicationSetup     JobType = "replication_setup"
)

// ParseJobType validates a job type string against the closed vocabulary.
// Unknown values are rejected rather than falling through to a default.
func ParseJobType(s string) (JobType, bool) {
	switch JobType(s) {
	case JobTypeFirmwareUpdate, JobTypeDiscoveryScan, JobTypeHealthCheck,
		JobTypeRollingClusterUpdate, JobTypeVMMigration, JobTypeReplicationSetup:
		return JobType(s), true
	}
	return "", false
}

// JobStatus 作业状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus validates a status string against the closed enumeration.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return JobStatus(s), true
	}
	return "", false
}

// Terminal reports whether the status is final. A record in a terminal
// status is never resurrected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job 作业
type Job struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UID         string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uid"`
	JobType     JobType        `gorm:"type:varchar(32);not null;index" json:"job_type"`
	Status      JobStatus      `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	TargetScope datatypes.JSON `gorm:"type:json" json:"target_scope"`
	Details     datatypes.JSON `gorm:"type:json" json:"details"`
	ParentJobID *int64         `gorm:"index" json:"parent_job_id"`
	CreatedBy   string         `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Job) TableName() string {
	return "jobs"
}
