package sync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"fleetops/internal/model"
)

// EventType 变更事件类型
type EventType string

const (
	EventAdd    EventType = "add"
	EventUpdate EventType = "update"
)

// JobPatch carries the fields present in a (possibly partial) change
// event; nil fields were not in the payload.
type JobPatch struct {
	Status      *model.JobStatus
	Details     datatypes.JSON
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Event is one change-feed event.
type Event struct {
	Type  EventType
	JobID int64
	Patch JobPatch
}

// Source is the pair of update channels a View consumes: a push-style
// event stream plus on-demand fetches used for snapshots and for filling
// in partial insert payloads.
type Source interface {
	Snapshot(ctx context.Context) ([]model.Job, error)
	FetchJob(ctx context.Context, id int64) (*model.Job, error)
	Events() <-chan Event
	Close() error
}

// Options configures a View.
type Options struct {
	PollInterval time.Duration
	MaxJobs      int
	Logger       *logrus.Entry
}

// View keeps a local collection of jobs consistent with the store under
// two independent, individually unreliable channels: the change feed and
// a fixed-interval poll. A single reducer goroutine is the only writer of
// the local state; both channels feed it the same upsert shape, and the
// reconciliation rule is last write observed wins per job id. A stale
// overwrite self-corrects on the next poll tick.
type View struct {
	source Source
	opts   Options
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	jobs  []model.Job
	reads chan chan []model.Job
	done  chan struct{}
}

// NewView subscribes: it takes an initial full snapshot, then starts the
// reducer loop applying incremental events and poll results.
func NewView(ctx context.Context, source Source, opts Options) (*View, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 200
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	snapshot, err := source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > opts.MaxJobs {
		snapshot = snapshot[:opts.MaxJobs]
	}

	vctx, cancel := context.WithCancel(ctx)
	v := &View{
		source: source,
		opts:   opts,
		logger: opts.Logger.WithField("component", "sync-view"),
		ctx:    vctx,
		cancel: cancel,
		jobs:   snapshot,
		reads:  make(chan chan []model.Job),
		done:   make(chan struct{}),
	}
	go v.loop()
	return v, nil
}

// Jobs returns a copy of the current local collection, newest first.
func (v *View) Jobs() []model.Job {
	resp := make(chan []model.Job, 1)
	select {
	case v.reads <- resp:
		return <-resp
	case <-v.done:
		return nil
	}
}

// Close tears the view down: the poll ticker stops and the change-feed
// handle is closed. Leaking either is a defect.
func (v *View) Close() error {
	v.cancel()
	<-v.done
	return v.source.Close()
}

// loop is the reducer: the only goroutine that mutates v.jobs.
func (v *View) loop() {
	defer close(v.done)

	ticker := time.NewTicker(v.opts.PollInterval)
	defer ticker.Stop()

	events := v.source.Events()

	for {
		select {
		case <-v.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			v.apply(ev)

		case <-ticker.C:
			v.poll()

		case resp := <-v.reads:
			out := make([]model.Job, len(v.jobs))
			copy(out, v.jobs)
			resp <- out
		}
	}
}

func (v *View) apply(ev Event) {
	switch ev.Type {
	case EventAdd:
		// Insert payloads may be partial; fetch the full record.
		job, err := v.source.FetchJob(v.ctx, ev.JobID)
		if err != nil {
			v.logger.WithError(err).Warnf("failed to fetch inserted job %d", ev.JobID)
			return
		}
		v.upsertFull(*job, true)

	case EventUpdate:
		idx := v.indexOf(ev.JobID)
		if idx < 0 {
			// Stale or out-of-scope event.
			return
		}
		mergePatch(&v.jobs[idx], ev.Patch)
	}
}

// poll reconciles against a fresh store snapshot. Results are merged like
// a batch of update events, never wholesale-replacing local state, so
// open views do not flicker or reorder.
func (v *View) poll() {
	snapshot, err := v.source.Snapshot(v.ctx)
	if err != nil {
		v.logger.WithError(err).Warn("poll failed")
		return
	}
	for i := range snapshot {
		v.upsertFull(snapshot[i], false)
	}
}

func (v *View) upsertFull(job model.Job, insert bool) {
	if idx := v.indexOf(job.ID); idx >= 0 {
		v.jobs[idx] = job
		return
	}
	if !insert {
		return
	}
	v.jobs = append([]model.Job{job}, v.jobs...)
	if len(v.jobs) > v.opts.MaxJobs {
		// Bounded collection: oldest evicted first.
		v.jobs = v.jobs[:v.opts.MaxJobs]
	}
}

func (v *View) indexOf(id int64) int {
	for i := range v.jobs {
		if v.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func mergePatch(job *model.Job, p JobPatch) {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Details != nil {
		job.Details = p.Details
	}
	if p.StartedAt != nil {
		job.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		job.CompletedAt = p.CompletedAt
	}
}
