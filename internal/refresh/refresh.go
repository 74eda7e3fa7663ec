// Package refresh keeps calendar feeds warm on a cron schedule so queries
// rarely wait on a network fetch.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	appLog "freebusy/internal/log"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates a five-field cron expression or descriptor such as
// "@every 10m".
func ParseSpec(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parse refresh schedule %q", spec)
	}
	return s, nil
}

// Job is one refresh run. Its error is logged and passed to OnResult.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
	spec string
	job  Job

	// OnResult, when set, is called after every run.
	OnResult func(err error)

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a scheduler for spec evaluated in loc.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("refresh job is nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if _, err := ParseSpec(spec); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		spec:    spec,
		job:     job,
		stopped: make(chan struct{}),
	}
	return s, nil
}

// Start registers the job and runs the scheduler until ctx is done. When
// warm is set the job also runs once immediately.
func (s *Scheduler) Start(ctx context.Context, warm bool) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return errors.Wrap(err, "register refresh job")
	}
	if warm {
		go s.run(ctx)
	}
	s.cron.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec, "warm", warm)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		close(s.stopped)
		appLog.Info("refresh scheduler stopped")
	})
}

// Done is closed once Stop has completed.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := s.job(ctx)
	if err != nil {
		appLog.Warn("refresh run finished with errors", "error", err.Error(), "elapsed", time.Since(start))
	} else {
		appLog.Debug("refresh run finished", "elapsed", time.Since(start))
	}
	if s.OnResult != nil {
		s.OnResult(err)
	}
}
