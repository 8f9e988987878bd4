package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one maintenance task run by the cron worker. Jobs must be safe to
// repeat: several instances may each run a job within the same period.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type schedule struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs with their cadence. A job registered with every <= 0
// runs on every cycle.
type Registry struct {
	mu    sync.Mutex
	items []*schedule
	names map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds job to run at most once per every. Names must be unique.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("cron: nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("cron: job %q already registered", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.items = append(r.items, &schedule{job: job, every: every})
	return nil
}

// Due returns, in registration order, the jobs whose period has elapsed.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, item := range r.items {
		if item.lastRun.IsZero() || item.every <= 0 || !now.Before(item.lastRun.Add(item.every)) {
			due = append(due, item.job)
		}
	}
	return due
}

// MarkRan records a successful run so the job waits a full period again.
func (r *Registry) MarkRan(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.job.Name() == name {
			item.lastRun = at
			return
		}
	}
}

// Jobs returns every registered job in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.items))
	for _, item := range r.items {
		jobs = append(jobs, item.job)
	}
	return jobs
}
