package client

import (
	"context"
	"fmt"
	"sync"
)

// Manager runs independent jobs with bounded parallelism. Jobs share no
// state; the manager only tracks them by ID.
type Manager struct {
	downloader *Downloader
	slots      chan struct{}

	mu    sync.RWMutex
	tasks map[string]*task
	order []string
}

type task struct {
	job    *Job
	done   chan struct{}
	result *Result
	err    error
}

// NewManager creates a manager running at most Config.MaxParallel jobs at once.
func NewManager(d *Downloader) *Manager {
	return &Manager{
		downloader: d,
		slots:      make(chan struct{}, d.config.MaxParallel),
		tasks:      make(map[string]*task),
	}
}

// Submit queues job. It fails when the job was already submitted or another
// unfinished job writes the same output path.
func (m *Manager) Submit(ctx context.Context, job *Job) error {
	if job == nil {
		return errNilJob
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[job.id]; exists {
		return fmt.Errorf("job already submitted: %s", job.id)
	}
	for _, t := range m.tasks {
		if t.job.OutputPath() == job.OutputPath() && !t.job.Status().IsFinished() {
			return fmt.Errorf("job already exists for output: %s", job.OutputPath())
		}
	}

	t := &task{job: job, done: make(chan struct{})}
	m.tasks[job.id] = t
	m.order = append(m.order, job.id)
	go m.run(ctx, t)
	return nil
}

func (m *Manager) run(ctx context.Context, t *task) {
	defer close(t.done)
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		t.result, t.err = &Result{JobID: t.job.id, OutputPath: t.job.OutputPath(), Status: JobStatusCancelled, Bitrate: t.job.bitrate},
			fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		t.job.setStatus(JobStatusCancelled)
		return
	}
	defer func() { <-m.slots }()
	t.result, t.err = m.downloader.Start(ctx, t.job)
}

// Get returns a job by ID.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.job, true
}

// List returns all jobs in submission order.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, m.tasks[id].job)
	}
	return jobs
}

// Cancel cancels a job by ID. Queued jobs stop before their first request.
func (m *Manager) Cancel(id string) error {
	job, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if status := job.Status(); status.IsFinished() {
		return fmt.Errorf("job %s already %s", id, status)
	}
	job.Cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*Result, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitAll blocks until every submitted job finishes and returns their
// results keyed by job ID. Errors are available through Wait.
func (m *Manager) WaitAll(ctx context.Context) (map[string]*Result, error) {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	results := make(map[string]*Result, len(ids))
	for _, id := range ids {
		res, err := m.Wait(ctx, id)
		if err != nil && ctx.Err() != nil {
			return results, ctx.Err()
		}
		results[id] = res
	}
	return results, nil
}
