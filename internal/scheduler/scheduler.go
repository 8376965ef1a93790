package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named task run on a cron schedule
type Job struct {
	Name string
	Spec string // standard 5-field cron expression or descriptor such as @hourly
	Run  func(ctx context.Context) error
}

// Scheduler handles scheduled tasks like daily reports, reprocessing and exports
type Scheduler struct {
	cron     *cron.Cron
	timezone *time.Location
	logger   zerolog.Logger

	// ctx is the parent of every job run; cancelled when Start returns
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler evaluating cron expressions in loc
func NewScheduler(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timezone: loc,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]Job),
		entries:  make(map[string]cron.EntryID),
	}
}

// Parser accepts the same cron syntax as configuration validation
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Add registers job. Jobs with an empty Spec are disabled and skipped.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		s.logger.Info().Str("job", job.Name).Msg("Job disabled, no schedule")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	id, err := s.cron.AddFunc(job.Spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
	}
	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	return nil
}

// Start starts the scheduler and blocks until ctx is done. Running jobs are
// cancelled and waited for before it returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting scheduler...")
	s.cron.Start()

	s.mu.Lock()
	for name, id := range s.entries {
		next := s.cron.Entry(id).Next
		s.logger.Info().
			Str("job", name).
			Time("next_run", next).
			Dur("wait_duration", time.Until(next)).
			Msg("Scheduled next run")
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Scheduler started and running")

	// Wait for context cancellation
	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// RunNow executes a registered job immediately on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return job.Run(ctx)
}

// Jobs returns the names of registered jobs with their next run time
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) run(job Job) {
	logger := s.logger.With().Str("job", job.Name).Logger()
	startTime := time.Now()
	logger.Info().Msg("Starting scheduled job")

	if err := job.Run(s.ctx); err != nil {
		logger.Error().
			Err(err).
			Dur("duration", time.Since(startTime)).
			Msg("Scheduled job failed")
		return
	}
	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("Scheduled job completed successfully")
}

// cronLogger routes cron's internal logging through zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
