package jobtracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trunov/mediaforge/internal/entities"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrBacklogFull  = errors.New("job backlog is full")
	ErrTrackerClose = errors.New("tracker is closed")
)

// Runner performs one transcode end to end and returns the output ref.
type Runner interface {
	Execute(ctx context.Context, owner, sourceRef string, p entities.TranscodeParams) (string, error)
}

// Tracker owns the in-process job records. Submit returns immediately; a
// pool of workers drains the backlog and advances each job through
// queued -> running -> completed|failed. Records are append-only and live
// as long as the process does.
type Tracker struct {
	runner Runner

	mu   sync.RWMutex
	jobs map[string]*entities.Job

	backlog chan string
	wg      sync.WaitGroup
	closed  bool
}

func New(runner Runner, workers, backlogSize int) *Tracker {
	if workers <= 0 {
		workers = 2
	}
	if backlogSize <= 0 {
		backlogSize = 100
	}
	t := &Tracker{
		runner:  runner,
		jobs:    make(map[string]*entities.Job),
		backlog: make(chan string, backlogSize),
	}
	for i := 0; i < workers; i++ {
		t.wg.Add(1)
		go t.worker()
	}
	return t
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.backlog)
	t.mu.Unlock()
	t.wg.Wait()
}

// Submit registers a job in state queued and hands it to the pool. Each id
// enters the backlog exactly once, so no job runs twice concurrently.
func (t *Tracker) Submit(owner, sourceRef string, p entities.TranscodeParams) (entities.Job, error) {
	job := &entities.Job{
		ID:        "j_" + uuid.NewString(),
		Owner:     owner,
		SourceRef: sourceRef,
		Params:    p,
		Status:    entities.JobQueued,
		CreatedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return entities.Job{}, ErrTrackerClose
	}
	t.jobs[job.ID] = job

	// The send stays under the lock: Close closes the channel under the
	// same lock, so a racing Submit can never hit a closed channel.
	select {
	case t.backlog <- job.ID:
		return *job, nil
	default:
		now := time.Now().UTC()
		job.Status = entities.JobFailed
		job.Error = ErrBacklogFull.Error()
		job.FinishedAt = &now
		return entities.Job{}, ErrBacklogFull
	}
}

func (t *Tracker) Get(id string) (entities.Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return entities.Job{}, ErrNotFound
	}
	return *job, nil
}

// ListByOwner returns the owner's jobs in no particular order.
func (t *Tracker) ListByOwner(owner string) []entities.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]entities.Job, 0)
	for _, job := range t.jobs {
		if job.Owner == owner {
			out = append(out, *job)
		}
	}
	return out
}

// RunSync performs the same transform inline without creating a record.
func (t *Tracker) RunSync(ctx context.Context, owner, sourceRef string, p entities.TranscodeParams) (string, error) {
	return t.runner.Execute(ctx, owner, sourceRef, p)
}

func (t *Tracker) worker() {
	defer t.wg.Done()
	for id := range t.backlog {
		t.run(id)
	}
}

func (t *Tracker) run(id string) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok || job.Status != entities.JobQueued {
		t.mu.Unlock()
		return
	}
	job.Status = entities.JobRunning
	owner, sourceRef, params := job.Owner, job.SourceRef, job.Params
	t.mu.Unlock()

	// Pollers see progress only through the record; the submission call
	// returned long ago.
	outputRef, err := t.runner.Execute(context.Background(), owner, sourceRef, params)
	t.finish(id, outputRef, err)
}

// finish moves a job to its terminal state. Terminal states are never
// overwritten.
func (t *Tracker) finish(id, outputRef string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = entities.JobFailed
		job.Error = err.Error()
		log.Printf("[jobs] %s failed: %v", id, err)
		return
	}
	job.Status = entities.JobCompleted
	job.OutputRef = outputRef
}
