package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/metrics"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/sirupsen/logrus"
)

// Handler processes one job. Returning an error schedules a retry.
type Handler func(ctx context.Context, job *models.ScheduledJob) error

// Options tune the polling loop. Zero values take defaults.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
	MaxAttempts  int
	RetryBase    time.Duration
	RetryMax     time.Duration
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Lease <= 0 {
		o.Lease = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 10 * time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 5 * time.Minute
	}
}

// Runner claims due jobs and dispatches them to handlers by kind.
type Runner struct {
	jobs     repository.JobRepository
	handlers map[string]Handler
	hooks    []func(ctx context.Context)
	opts     Options
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// NewRunner creates a Runner with no handlers registered.
func NewRunner(jobs repository.JobRepository, opts Options, m *metrics.Metrics, logger *logrus.Logger) *Runner {
	opts.defaults()
	return &Runner{
		jobs:     jobs,
		handlers: make(map[string]Handler),
		opts:     opts,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle registers h for jobs of kind.
func (r *Runner) Handle(kind string, h Handler) {
	r.handlers[kind] = h
}

// OnTick registers fn to run after every poll.
func (r *Runner) OnTick(fn func(ctx context.Context)) {
	r.hooks = append(r.hooks, fn)
}

// Start polls until ctx is cancelled. It blocks, so launch it in its own
// goroutine.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.opts.PollInterval).Info("Job scheduler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Job scheduler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce processes one batch of due jobs and runs the tick hooks. It
// returns how many jobs were claimed.
func (r *Runner) RunOnce(ctx context.Context) int {
	jobs, err := r.jobs.ClaimDue(ctx, r.opts.BatchSize, r.opts.Lease)
	if err != nil {
		r.logger.WithError(err).Error("Failed to claim due jobs")
	}

	for _, job := range jobs {
		r.process(ctx, job)
	}

	for _, hook := range r.hooks {
		hook(ctx)
	}

	return len(jobs)
}

func (r *Runner) process(ctx context.Context, job *models.ScheduledJob) {
	log := r.logger.WithFields(logrus.Fields{"job_id": job.ID, "kind": job.Kind, "attempt": job.Attempts})

	handler, ok := r.handlers[job.Kind]
	if !ok {
		r.metrics.Job(job.Kind, "unknown")
		log.Error("No handler registered for job kind")
		if err := r.jobs.Bury(ctx, job.ID, "no handler registered"); err != nil {
			log.WithError(err).Error("Failed to bury job")
		}
		return
	}

	err := r.run(ctx, handler, job)
	if err == nil {
		r.metrics.Job(job.Kind, "ok")
		if err := r.jobs.Complete(ctx, job.ID); err != nil {
			log.WithError(err).Error("Failed to complete job")
		}
		return
	}

	if job.Attempts >= r.opts.MaxAttempts {
		r.metrics.Job(job.Kind, "dead")
		log.WithError(err).Error("Job failed permanently")
		if err := r.jobs.Bury(ctx, job.ID, err.Error()); err != nil {
			log.WithError(err).Error("Failed to bury job")
		}
		return
	}

	r.metrics.Job(job.Kind, "retry")
	runAt := r.now().Add(r.backoff(job.Attempts))
	log.WithError(err).WithField("retry_at", runAt).Warn("Job failed, retrying")
	if err := r.jobs.Retry(ctx, job.ID, runAt, err.Error()); err != nil {
		log.WithError(err).Error("Failed to reschedule job")
	}
}

// run calls handler and turns a panic into an error so one bad job cannot
// stop the loop.
func (r *Runner) run(ctx context.Context, handler Handler, job *models.ScheduledJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler(ctx, job)
}

func (r *Runner) backoff(attempts int) time.Duration {
	d := r.opts.RetryBase
	for i := 1; i < attempts && d < r.opts.RetryMax; i++ {
		d *= 2
	}
	if d > r.opts.RetryMax {
		d = r.opts.RetryMax
	}
	return d
}
