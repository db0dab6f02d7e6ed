package ws

import (
	"context"
	"sync"

	"fleetops/internal/model"
	"fleetops/internal/store"
	jobsync "fleetops/internal/sync"
)

// Publisher is the change-feed publisher used by the cascade engine. It
// persists and broadcasts every event through the Socket.IO path and
// fans the same event out to in-process sync views.
type Publisher struct {
	store *store.Store

	mu   sync.Mutex
	subs map[int]chan jobsync.Event
	next int
}

// NewPublisher creates a Publisher
func NewPublisher(st *store.Store) *Publisher {
	return &Publisher{
		store: st,
		subs:  make(map[int]chan jobsync.Event),
	}
}

// PublishJobEvent implements the cascade engine's Feed contract. Failures
// are already logged inside PublishJobEvent; the caller never sees them.
func (p *Publisher) PublishJobEvent(eventType string, job *model.Job) {
	_ = PublishJobEvent(eventType, job)

	ev := jobsync.Event{
		JobID: job.ID,
		Patch: jobsync.JobPatch{
			Status:      &job.Status,
			Details:     job.Details,
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
		},
	}
	switch eventType {
	case model.EventTypeAdd:
		ev.Type = jobsync.EventAdd
	default:
		ev.Type = jobsync.EventUpdate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			// A slow view falls behind; its next poll catches it up.
		}
	}
}

// Subscribe returns a sync source fed by this publisher. The source's
// Close unregisters the subscription.
func (p *Publisher) Subscribe() jobsync.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan jobsync.Event, 64)
	p.subs[id] = ch
	return &feedSource{pub: p, id: id, ch: ch}
}

func (p *Publisher) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(ch)
	}
}

// feedSource adapts one subscription to the sync.Source interface
type feedSource struct {
	pub *Publisher
	id  int
	ch  chan jobsync.Event
}

func (s *feedSource) Snapshot(ctx context.Context) ([]model.Job, error) {
	return s.pub.store.ActiveJobs(200)
}

func (s *feedSource) FetchJob(ctx context.Context, id int64) (*model.Job, error) {
	return s.pub.store.GetJob(id)
}

func (s *feedSource) Events() <-chan jobsync.Event {
	return s.ch
}

func (s *feedSource) Close() error {
	s.pub.unsubscribe(s.id)
	return nil
}
