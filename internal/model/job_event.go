package model

import "time"

// JobEvent represents a change-feed event stored in the database.
// Clients catch up from their lastEventId before switching to live
// broadcasts.
type JobEvent struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Topic     string    `gorm:"column:topic;type:varchar(64);not null;index:idx_topic_id" json:"topic"`
	EventType string    `gorm:"column:event_type;type:varchar(16);not null" json:"event_type"`
	Payload   string    `gorm:"column:payload;type:json;not null" json:"payload"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for JobEvent
func (JobEvent) TableName() string {
	return "job_events"
}

// Event type constants
const (
	EventTypeAdd    = "add"
	EventTypeUpdate = "update"
)
