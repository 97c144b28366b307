package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-screening/core/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWorkers   = 8
	defaultQueueSize = 256
)

type Pool struct {
	workers   int
	queueSize int
	retryable func(error) bool
	now       func() time.Time

	queue     chan *Job
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
	active map[*Job]struct{}

	metrics poolMetrics
}

type PoolOption func(*Pool)

func WithWorkers(workers int) PoolOption {
	return func(p *Pool) {
		if workers > 0 {
			p.workers = workers
		}
	}
}

func WithQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithRetryClassifier replaces the decision whether a failed attempt is
// worth repeating. Attempt timeouts are always retried.
func WithRetryClassifier(retryable func(error) bool) PoolOption {
	return func(p *Pool) {
		if retryable != nil {
			p.retryable = retryable
		}
	}
}

// NewPool starts the workers right away, Close stops them.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workers:   DefaultWorkers,
		queueSize: defaultQueueSize,
		retryable: providers.IsTransient,
		now:       time.Now,
		quit:      make(chan struct{}),
		active:    map[*Job]struct{}{},
		metrics:   newPoolMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.queue = make(chan *Job, p.queueSize)
	for range p.workers {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

// Submit queues a job. It blocks while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, spec Spec) (*Job, error) {
	if spec.Run == nil {
		return nil, fmt.Errorf("job %s has nothing to run", spec.Kind)
	}

	base := ctx
	if spec.Detached {
		base = context.WithoutCancel(ctx)
	}
	jobCtx, cancel := context.WithCancelCause(base)

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	job := &Job{
		ID:        id,
		Kind:      spec.Kind,
		SessionID: spec.SessionID,
		Payload:   spec.Payload,
		spec:      spec,
		ctx:       jobCtx,
		cancel:    cancel,
		backoff:   spec.Policy.backoff(),
		done:      make(chan struct{}),
	}
	job.setScheduledAt(p.now())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel(ErrPoolClosed)
		return nil, ErrPoolClosed
	}
	p.active[job] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- job:
	case <-ctx.Done():
		p.finish(job, fmt.Errorf("job %s not queued: %w", spec.Kind, ctx.Err()))
		return nil, ctx.Err()
	case <-p.quit:
		p.finish(job, ErrPoolClosed)
		return nil, ErrPoolClosed
	}

	logger.DebugContext(ctx, "job submitted", "job_id", job.ID, "kind", string(job.Kind), "session_id", job.SessionID)
	return job, nil
}

// CancelSession cancels the unfinished, non detached jobs of sessionID. When
// kinds are given only jobs of those kinds are cancelled. It returns how many
// jobs were cancelled.
func (p *Pool) CancelSession(sessionID string, kinds ...Kind) int {
	p.mu.Lock()
	var cancelled []*Job
	for job := range p.active {
		if job.SessionID != sessionID || job.spec.Detached {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, job.Kind) {
			continue
		}
		cancelled = append(cancelled, job)
	}
	p.mu.Unlock()

	for _, job := range cancelled {
		job.Cancel()
		if !job.running.Load() {
			p.finish(job, job.cancelledErr())
		}
	}

	if len(cancelled) > 0 {
		logger.Info("cancelled session jobs", "session_id", sessionID, "count", len(cancelled))
	}
	return len(cancelled)
}

// Active returns the number of submitted jobs that did not finish yet.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Close stops the workers. Running attempts are allowed to return, jobs that
// did not start finish with ErrPoolClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.quit)
		p.wg.Wait()

		for {
			select {
			case job := <-p.queue:
				p.finish(job, ErrPoolClosed)
			default:
				return
			}
		}
	})
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.queue:
			p.run(job)
		}
	}
}

func (p *Pool) run(job *Job) {
	select {
	case <-job.done:
		return
	default:
	}

	job.running.Store(true)
	defer job.running.Store(false)

	if job.ctx.Err() != nil {
		p.finish(job, job.cancelledErr())
		return
	}

	attempt := int(job.attempts.Add(1))
	timedOut, err := p.attempt(job, attempt)
	switch {
	case err == nil:
		p.finish(job, nil)
		return
	case job.ctx.Err() != nil:
		p.finish(job, job.cancelledErr())
		return
	case !timedOut && !p.retryable(err):
		p.finish(job, err)
		return
	}

	delay, stop := job.backoff.Next()
	if stop {
		p.finish(job, &ExhaustedError{Kind: job.Kind, Attempts: attempt, Err: err})
		return
	}

	job.setScheduledAt(p.now().Add(delay))
	logger.WarnContext(job.ctx, "job attempt failed, retrying",
		"job_id", job.ID,
		"kind", string(job.Kind),
		"session_id", job.SessionID,
		"attempt", attempt,
		"delay", delay.String(),
		"error", err)
	go p.retryAfter(job, delay)
}

func (p *Pool) attempt(job *Job, attempt int) (timedOut bool, err error) {
	ctx, span := tracer.Start(job.ctx, "job "+string(job.Kind), trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("session.id", job.SessionID),
		attribute.Int("job.attempt", attempt),
	))
	defer span.End()

	attemptCtx := ctx
	if timeout := job.spec.Policy.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.metrics.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("job.kind", string(job.Kind))))
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			err = providers.Permanent(fmt.Errorf("job panicked: %v", r))
			logger.ErrorContext(ctx, "job panicked",
				"job_id", job.ID,
				"kind", string(job.Kind),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.metrics.duration.Record(ctx, p.now().Sub(start).Seconds(),
			metric.WithAttributes(attribute.String("job.kind", string(job.Kind))))
	}()

	err = job.spec.Run(attemptCtx, attempt)
	if err != nil && job.ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		timedOut = true
		err = fmt.Errorf("attempt timed out after %s: %w", job.spec.Policy.Timeout, err)
	}
	return timedOut, err
}

func (p *Pool) retryAfter(job *Job, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-job.ctx.Done():
		p.finish(job, job.cancelledErr())
		return
	case <-p.quit:
		p.finish(job, ErrPoolClosed)
		return
	}

	job.setScheduledAt(p.now())
	select {
	case p.queue <- job:
	case <-job.ctx.Done():
		p.finish(job, job.cancelledErr())
	case <-p.quit:
		p.finish(job, ErrPoolClosed)
	}
}

func (p *Pool) finish(job *Job, err error) {
	job.finishOnce.Do(func() {
		job.err = err
		close(job.done)

		p.mu.Lock()
		delete(p.active, job)
		p.mu.Unlock()
		job.cancel(context.Canceled)

		outcome := "succeeded"
		switch {
		case err == nil:
		case errors.Is(err, ErrCancelled):
			outcome = "cancelled"
		case errors.Is(err, ErrRetryBudgetExhausted):
			outcome = "exhausted"
		default:
			outcome = "failed"
		}
		p.metrics.outcomes.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("job.kind", string(job.Kind)),
			attribute.String("job.outcome", outcome),
		))

		if err != nil && outcome != "cancelled" {
			logger.Warn("job finished with error",
				"job_id", job.ID,
				"kind", string(job.Kind),
				"session_id", job.SessionID,
				"attempts", job.Attempts(),
				"error", err)
		}
	})
}

type poolMetrics struct {
	attempts metric.Int64Counter
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

func newPoolMetrics() poolMetrics {
	attempts, err := meter.Int64Counter("screening.jobs.attempts",
		metric.WithDescription("Number of job attempts started"))
	if err != nil {
		logger.Warn("failed to create job attempts counter", "error", err)
	}
	outcomes, err := meter.Int64Counter("screening.jobs.outcomes",
		metric.WithDescription("Number of jobs that reached a terminal state"))
	if err != nil {
		logger.Warn("failed to create job outcomes counter", "error", err)
	}
	duration, err := meter.Float64Histogram("screening.jobs.attempt.duration",
		metric.WithDescription("Duration of a single job attempt"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create job duration histogram", "error", err)
	}
	return poolMetrics{attempts: attempts, outcomes: outcomes, duration: duration}
}
