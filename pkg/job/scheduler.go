package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"golang.org/x/sync/errgroup"
)

// Scheduler starts every job in its own goroutine. A failing job is logged
// and does not stop the others.
type Scheduler struct {
	log  *xlog.Logger
	mu   sync.Mutex
	jobs []*Job

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewScheduler(log *xlog.Logger) *Scheduler {
	if log == nil {
		log = xlog.Nop()
	}
	return &Scheduler{log: log.With("component", "job.scheduler")}
}

// AddJob queues a job; it must be called before Start.
func (s *Scheduler) AddJob(job *Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	return nil
}

// Len returns the number of queued jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start runs all jobs in the background and returns immediately. Jobs see
// a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]*Job(nil), s.jobs...)
	s.mu.Unlock()

	var jobCtx context.Context
	jobCtx, s.cancel = context.WithCancel(ctx)
	s.group = &errgroup.Group{}

	s.log.Info("starting job scheduler", "jobCount", len(jobs))
	for _, j := range jobs {
		s.group.Go(func() error {
			err := j.Run(jobCtx, s.log)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("job run failed", "name", j.Name, "error", err)
			}
			return nil
		})
	}
}

// Stop cancels the jobs and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("all jobs finished, scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("job scheduler shutdown timeout, some jobs may still be running")
		return ctx.Err()
	}
}
