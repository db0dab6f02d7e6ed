package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"fleetops/internal/model"
)

// DefaultChannel is the Redis channel status notifications go to
const DefaultChannel = "fleetops:job-status"

// Notifier publishes job status transitions to a Redis channel. Dispatch
// is fire-and-forget: delivery failure is logged and never reported back
// to the update that triggered it.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *logrus.Entry
}

// New creates a Notifier. A nil client yields a no-op notifier (redis
// disabled, tests).
func New(client *redis.Client, channel string, logger *logrus.Entry) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger.WithField("component", "notifier"),
	}
}

// payload is the notification wire format
type payload struct {
	JobID   int64           `json:"jobId"`
	JobUID  string          `json:"jobUid"`
	JobType model.JobType   `json:"jobType"`
	Status  model.JobStatus `json:"status"`
	Details json.RawMessage `json:"details,omitempty"`
}

// JobStatusChanged fires one notification for a status transition into
// completed, failed or running.
func (n *Notifier) JobStatusChanged(job *model.Job) {
	if n == nil || n.client == nil {
		return
	}

	body, err := json.Marshal(payload{
		JobID:   job.ID,
		JobUID:  job.UID,
		JobType: job.JobType,
		Status:  job.Status,
		Details: json.RawMessage(job.Details),
	})
	if err != nil {
		n.logger.WithError(err).Errorf("failed to encode notification for job %d", job.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, body).Err(); err != nil {
		n.logger.WithError(err).Errorf("failed to publish notification for job %d", job.ID)
	}
}

// InitRedis initializes the Redis connection used for notifications
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
