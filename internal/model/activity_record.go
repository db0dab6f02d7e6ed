package model

import "time"

// ActivityRecord is an immutable log of a single outbound operation
// (an iDRAC/vCenter protocol call and the like), optionally tagged with
// the job/task it was issued for. Append-only: never updated.
type ActivityRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID          *int64    `gorm:"index" json:"job_id"`
	TaskID         *int64    `gorm:"index" json:"task_id"`
	Operation      string    `gorm:"type:varchar(64);not null" json:"operation"`
	Endpoint       string    `gorm:"type:varchar(255)" json:"endpoint"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	Success        bool      `gorm:"not null;default:true" json:"success"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `gorm:"type:varchar(512)" json:"error_message"`
}

// TableName 指定表名
func (ActivityRecord) TableName() string {
	return "activity_records"
}
