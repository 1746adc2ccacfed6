// Package cron runs runbox's background maintenance jobs on cron schedules.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Seconds are optional so both "0 */5 * * * *" and "*/5 * * * *" work,
// alongside descriptors such as "@every 1h".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named unit of scheduled work.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration // zero means no per-run timeout
	Run      func(ctx context.Context) error
}

// JobStatus describes a registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	lastRun time.Time
	lastErr error
}

// Scheduler manages scheduled job execution with robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.RWMutex
	entries map[string]*entry
	running bool

	// ctx is cancelled by Stop so in-flight jobs can bail out.
	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	executing sync.Map // job name -> start time
}

// NewScheduler creates a scheduler in the local time zone.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(time.Local)),
		logger:  logger.With().Str("component", "cron").Logger(),
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ValidateSchedule checks a schedule expression.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return &InvalidScheduleError{Schedule: spec, Err: err}
	}
	return nil
}

// Add registers job. Jobs added after Start begin firing immediately.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("cron: job needs a name and a run function")
	}
	sched, err := parser.Parse(job.Schedule)
	if err != nil {
		return &InvalidScheduleError{Schedule: job.Schedule, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}

	e := &entry{job: job}
	e.id = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(e) }))
	s.entries[job.Name] = e

	s.logger.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job registered")
	return nil
}

// Remove unregisters a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	return nil
}

// Start starts firing jobs. A stopped scheduler cannot be restarted.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("cron: scheduler already running")
	}
	if s.ctx.Err() != nil {
		return errors.New("cron: scheduler was stopped")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler, cancels running jobs and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a job synchronously outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.run(ctx, e)
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		st := JobStatus{
			Name:     name,
			Schedule: e.job.Schedule,
			NextRun:  s.cron.Entry(e.id).Next,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		_, st.Running = s.executing.Load(name)
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(e *entry) {
	if err := s.run(s.ctx, e); err != nil && !errors.Is(err, ErrJobRunning) {
		s.logger.Error().Err(err).Str("job", e.job.Name).Msg("job failed")
	}
}

// run executes e unless it is already executing.
func (s *Scheduler) run(ctx context.Context, e *entry) error {
	start := time.Now()
	if _, loaded := s.executing.LoadOrStore(e.job.Name, start); loaded {
		s.logger.Debug().Str("job", e.job.Name).Msg("skipping overlapping run")
		return fmt.Errorf("%w: %s", ErrJobRunning, e.job.Name)
	}
	defer s.executing.Delete(e.job.Name)

	s.wg.Add(1)
	defer s.wg.Done()

	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.job.Timeout)
		defer cancel()
	}

	err := safeRun(ctx, e.job.Run)

	s.mu.Lock()
	e.lastRun = start
	e.lastErr = err
	s.mu.Unlock()

	s.logger.Debug().Str("job", e.job.Name).Dur("took", time.Since(start)).Err(err).Msg("job finished")
	return err
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cron: job panicked: %v", p)
		}
	}()
	return fn(ctx)
}
