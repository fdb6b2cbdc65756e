package publisher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/social-scheduler/internal/content"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/internal/storage"
	"github.com/social-scheduler/pkg/clock"
	"github.com/social-scheduler/pkg/logger"
	"github.com/social-scheduler/pkg/ratelimit"
)

// ErrEmptyJob is returned when a bulk job is submitted without occurrences
var ErrEmptyJob = errors.New("bulk job has no occurrences")

const (
	defaultWorkers     = 4
	defaultMaxAttempts = 3
)

// Options configures the bulk runner
type Options struct {
	Workers        int
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryBase      time.Duration
	RetryMaxDelay  time.Duration
	RetryJitter    float64
}

// ResultSink receives the final state of every finished job
type ResultSink interface {
	RecordJob(ctx context.Context, job *models.BulkJob) error
}

// Runner publishes batches of occurrences with a bounded worker pool
type Runner struct {
	ctx       context.Context
	provider  content.Provider
	publisher platform.Publisher
	repo      storage.Repository
	limiter   *ratelimit.MultiLimiter
	clock     clock.Clock
	jobs      *JobStore
	sinks     []ResultSink
	jitter    func() float64
	opts      Options
	log       *logger.Logger
}

// Option customizes a Runner
type Option func(*Runner)

// WithLimiter throttles publishes per platform
func WithLimiter(l *ratelimit.MultiLimiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// WithClock sets the clock used for timestamps
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithSink adds a sink notified when a job finishes
func WithSink(s ResultSink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, s) }
}

// WithJitter replaces the backoff jitter source; f must return values in [-1, 1)
func WithJitter(f func() float64) Option {
	return func(r *Runner) { r.jitter = f }
}

// WithJobStore shares a job store between runners
func WithJobStore(s *JobStore) Option {
	return func(r *Runner) { r.jobs = s }
}

// NewRunner creates a runner. Jobs keep running after Run returns and stop when ctx is cancelled.
func NewRunner(
	ctx context.Context,
	provider content.Provider,
	publisher platform.Publisher,
	repo storage.Repository,
	opts Options,
	log *logger.Logger,
	options ...Option,
) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	r := &Runner{
		ctx:       ctx,
		provider:  provider,
		publisher: publisher,
		repo:      repo,
		clock:     clock.Real{},
		jobs:      NewJobStore(),
		jitter:    func() float64 { return rand.Float64()*2 - 1 },
		opts:      opts,
		log:       log.WithComponent("publisher"),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Jobs returns the runner's job store
func (r *Runner) Jobs() *JobStore {
	return r.jobs
}

// Run submits occurrences as one bulk job and returns its ID without waiting for completion.
// Per-item failures are reported through Status, never as an error.
func (r *Runner) Run(ctx context.Context, occurrences []*models.Occurrence) (string, error) {
	if len(occurrences) == 0 {
		return "", ErrEmptyJob
	}

	job := &models.BulkJob{
		ID:        uuid.NewString(),
		Status:    models.JobStatusRunning,
		Pending:   len(occurrences),
		CreatedAt: r.clock.Now(),
	}
	seen := make(map[string]bool, len(occurrences))
	for _, o := range occurrences {
		if seen[o.ID] {
			return "", fmt.Errorf("%w: %s listed twice", ErrOccurrenceBusy, o.ID)
		}
		seen[o.ID] = true
		if !CanQueue(o) {
			return "", fmt.Errorf("occurrence %s: %w: %s cannot be queued", o.ID, ErrInvalidTransition, o.Status)
		}
		item := o.Clone()
		item.Status = models.OccurrenceStatusQueued
		item.JobID = job.ID
		item.Attempt = 0
		item.LastError = ""
		job.ItemIDs = append(job.ItemIDs, item.ID)
		job.Items = append(job.Items, item)
	}

	state := newJobState(job)
	if err := r.jobs.add(state); err != nil {
		return "", err
	}
	if err := r.repo.SaveJobResult(ctx, job.Clone()); err != nil {
		r.jobs.forget(job.ID)
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	r.log.Info().
		Str("job_id", job.ID).
		Int("total", job.Total()).
		Int("workers", min(r.opts.Workers, job.Total())).
		Msg("Bulk job started")

	go r.execute(state)
	return job.ID, nil
}

// Status returns a snapshot of a job
func (r *Runner) Status(ctx context.Context, jobID string) (*models.BulkJob, error) {
	if st, ok := r.jobs.get(jobID); ok {
		return st.snapshot(), nil
	}
	job, err := r.repo.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, err
}

// Cancel stops a job: items being published finish, queued items are not started
func (r *Runner) Cancel(jobID string) error {
	st, ok := r.jobs.get(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	st.requestStop()
	r.log.Info().Str("job_id", jobID).Msg("Bulk job cancellation requested")
	return nil
}

// Wait blocks until the job finishes and returns its final snapshot
func (r *Runner) Wait(ctx context.Context, jobID string) (*models.BulkJob, error) {
	st, ok := r.jobs.get(jobID)
	if !ok {
		return r.Status(ctx, jobID)
	}
	select {
	case <-st.done:
		return st.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type itemEvent struct {
	index       int
	status      models.OccurrenceStatus
	attempt     int
	err         string
	externalID  string
	publishedAt *time.Time
}

func (r *Runner) execute(state *jobState) {
	ctx := r.ctx
	log := r.log.WithJobID(state.job.ID)
	total := len(state.job.Items)

	events := make(chan itemEvent)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for ev := range events {
			r.apply(ctx, state, ev, log)
		}
	}()

	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(r.opts.Workers, total); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if state.isStopped() {
					continue
				}
				r.process(ctx, state, i, events)
			}
		}()
	}

feed:
	for i := 0; i < total; i++ {
		// Fast-exit check so a stop request wins over a ready worker.
		select {
		case <-state.stop:
			break feed
		case <-ctx.Done():
			break feed
		default:
		}
		select {
		case <-state.stop:
			break feed
		case <-ctx.Done():
			break feed
		case queue <- i:
		}
	}
	close(queue)
	wg.Wait()
	close(events)
	<-aggDone

	r.finish(state, log)
}

func (r *Runner) process(ctx context.Context, state *jobState, i int, events chan<- itemEvent) {
	item := state.item(i)
	log := r.log.WithJobID(item.JobID).WithOccurrence(item.ID, string(item.Platform))

	var lastErr string
	for attempt := 1; ; attempt++ {
		if err := r.limiter.WaitIfLimited(ctx, string(item.Platform)); err != nil {
			if attempt > 1 {
				events <- itemEvent{index: i, status: models.OccurrenceStatusCancelled, attempt: attempt - 1, err: lastErr}
			}
			return
		}

		events <- itemEvent{index: i, status: models.OccurrenceStatusPublishing, attempt: attempt}
		receipt, err := r.attempt(ctx, item, attempt)
		if err == nil {
			now := r.clock.Now()
			events <- itemEvent{
				index:       i,
				status:      models.OccurrenceStatusPublished,
				attempt:     attempt,
				externalID:  receipt.ExternalPostID,
				publishedAt: &now,
			}
			log.Info().Int("attempt", attempt).Str("external_id", receipt.ExternalPostID).Msg("Occurrence published")
			return
		}

		lastErr = err.Error()
		events <- itemEvent{index: i, status: models.OccurrenceStatusFailed, attempt: attempt, err: lastErr}
		if !platform.Retryable(err) || attempt >= r.opts.MaxAttempts {
			events <- itemEvent{index: i, status: models.OccurrenceStatusCancelled, attempt: attempt, err: lastErr}
			log.Warn().Err(err).Int("attempts", attempt).Msg("Occurrence abandoned")
			return
		}

		delay := backoffDelay(r.opts, attempt, r.jitter())
		events <- itemEvent{index: i, status: models.OccurrenceStatusRetrying, attempt: attempt, err: lastErr}
		log.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("Retry scheduled")
		if !sleep(ctx, state.stop, delay) {
			events <- itemEvent{index: i, status: models.OccurrenceStatusCancelled, attempt: attempt, err: lastErr}
			return
		}
	}
}

func (r *Runner) attempt(ctx context.Context, item *models.Occurrence, attempt int) (receipt platform.Receipt, err error) {
	attemptCtx := ctx
	if r.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.opts.AttemptTimeout)
		defer cancel()
	}

	// A panicking publisher fails the attempt instead of killing the worker.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("Publisher panicked")
			err = fmt.Errorf("%w: panic: %v", platform.ErrPublishFailure, rec)
		}
	}()

	payload, err := r.provider.GetPayload(attemptCtx, item.ID)
	if err != nil {
		return platform.Receipt{}, fmt.Errorf("%w: payload: %v", platform.ErrPublishFailure, err)
	}

	receipt, err = r.publisher.Publish(attemptCtx, platform.Request{
		OccurrenceID: item.ID,
		AccountID:    item.AccountID,
		Platform:     item.Platform,
		ScheduledFor: item.ScheduledFor,
		AssignedTime: item.AssignedTime,
		Attempt:      attempt,
		Payload:      payload,
	})
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return platform.Receipt{}, fmt.Errorf("%w: attempt timed out after %s", platform.ErrPublishFailure, r.opts.AttemptTimeout)
	}
	return receipt, err
}

func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	default:
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-tmr.C:
		return true
	}
}

// apply is only called from the job's aggregator goroutine
func (r *Runner) apply(ctx context.Context, state *jobState, ev itemEvent, log *logger.Logger) {
	state.mu.Lock()
	job := state.job
	item := job.Items[ev.index]
	if err := ValidateTransition(item.Status, ev.status); err != nil {
		state.mu.Unlock()
		log.Error().Err(err).Str("occurrence_id", item.ID).Msg("Dropped item event")
		return
	}
	item.Status = ev.status
	item.Attempt = ev.attempt
	if ev.err != "" {
		item.LastError = ev.err
	}
	switch ev.status {
	case models.OccurrenceStatusPublished:
		item.ExternalPostID = ev.externalID
		item.PublishedAt = ev.publishedAt
		item.LastError = ""
		job.Succeeded++
		job.Pending--
	case models.OccurrenceStatusCancelled:
		job.Failed++
		job.Pending--
	}
	var persist *models.Occurrence
	if ev.status.IsTerminal() {
		persist = item.Clone()
	}
	state.mu.Unlock()

	if persist != nil {
		if err := r.repo.SaveOccurrences(context.WithoutCancel(ctx), []*models.Occurrence{persist}); err != nil {
			log.Warn().Err(err).Str("occurrence_id", persist.ID).Msg("Failed to save occurrence result")
		}
	}
}

func (r *Runner) finish(state *jobState, log *logger.Logger) {
	ctx := context.WithoutCancel(r.ctx)

	state.mu.Lock()
	job := state.job
	now := r.clock.Now()
	job.FinishedAt = &now
	if job.Pending == 0 {
		job.Status = models.JobStatusCompleted
	} else {
		job.Status = models.JobStatusStopped
	}
	snapshot := job.Clone()
	state.mu.Unlock()

	if err := r.repo.SaveJobResult(ctx, snapshot.Clone()); err != nil {
		log.Error().Err(err).Msg("Failed to save job result")
	}

	// Untouched items of a stopped job go back to draft in storage so a later job can take them.
	if snapshot.Status == models.JobStatusStopped {
		var released []*models.Occurrence
		for _, it := range snapshot.Items {
			if it.Status == models.OccurrenceStatusQueued {
				c := it.Clone()
				c.Status = models.OccurrenceStatusDraft
				c.JobID = ""
				released = append(released, c)
			}
		}
		if err := r.repo.SaveOccurrences(ctx, released); err != nil {
			log.Error().Err(err).Msg("Failed to release queued occurrences")
		}
	}
	r.jobs.release(snapshot.ID)

	for _, sink := range r.sinks {
		if err := sink.RecordJob(ctx, snapshot.Clone()); err != nil {
			log.Warn().Err(err).Msg("Result sink failed")
		}
	}

	log.Info().
		Str("status", string(snapshot.Status)).
		Int("succeeded", snapshot.Succeeded).
		Int("failed", snapshot.Failed).
		Int("pending", snapshot.Pending).
		Msg("Bulk job finished")

	close(state.done)
}
