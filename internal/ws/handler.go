package ws

import (
	"log"

	socketio "github.com/googollee/go-socket.io"

	"fleetops/internal/db"
	"fleetops/internal/model"
)

// RequestJobsData represents the data sent by a client in the
// request:jobs event
type RequestJobsData struct {
	LastEventId int64 `json:"lastEventId"`
}

// handleRequestJobs handles the request:jobs event
func handleRequestJobs(s socketio.Conn, data interface{}) {
	log.Printf("[WebSocket] request:jobs from client %s", s.ID())

	// Parse lastEventId from data
	var lastEventId int64 = 0
	if dataMap, ok := data.(map[string]interface{}); ok {
		if lastEventIdFloat, ok := dataMap["lastEventId"].(float64); ok {
			lastEventId = int64(lastEventIdFloat)
		}
	}

	// If lastEventId is provided, try to send incremental updates
	if lastEventId > 0 {
		if sendIncrementalUpdates(s, lastEventId) {
			return
		}
		// If incremental updates failed, fall through to send a full
		// snapshot
		log.Printf("[WebSocket] Incremental updates failed, falling back to full snapshot")
	}

	sendFullJobsList(s)
}

// sendIncrementalUpdates sends incremental updates to the client.
// Returns true if successful, false if the client should get a full
// snapshot instead.
func sendIncrementalUpdates(s socketio.Conn, lastEventId int64) bool {
	// Query incremental events (limit to 500)
	maxCount := 500
	events, err := GetIncrementalEvents(lastEventId, maxCount)
	if err != nil {
		log.Printf("[WebSocket] Failed to query incremental events: %v", err)
		return false
	}

	// Too many missed events: cheaper to resend the snapshot
	if len(events) >= maxCount {
		return false
	}

	for _, event := range events {
		s.Emit("jobs:update", map[string]interface{}{
			"eventId": event.ID,
			"type":    event.EventType,
			"raw":     event.Payload,
		})
	}

	log.Printf("[WebSocket] Sent %d incremental events to client %s", len(events), s.ID())
	return true
}

// sendFullJobsList sends the full snapshot of active jobs to the client
func sendFullJobsList(s socketio.Conn) {
	var jobs []model.Job
	err := db.GetDB().
		Where("status IN ?", []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
		Order("id DESC").
		Limit(200).
		Find(&jobs).Error
	if err != nil {
		log.Printf("[WebSocket] Failed to query jobs for snapshot: %v", err)
		s.Emit("jobs:error", map[string]interface{}{
			"error": "failed to load jobs",
		})
		return
	}

	latestEventId, err := GetLatestEventId()
	if err != nil {
		log.Printf("[WebSocket] Failed to query latest event id: %v", err)
		latestEventId = 0
	}

	s.Emit("jobs:snapshot", map[string]interface{}{
		"eventId": latestEventId,
		"items":   jobs,
	})

	log.Printf("[WebSocket] Sent full snapshot (%d jobs) to client %s", len(jobs), s.ID())
}
