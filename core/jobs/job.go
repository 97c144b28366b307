// Package jobs runs pipeline work on a bounded pool of workers, retrying
// transient failures with exponential backoff.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

type Kind string

const (
	KindTranscribe        Kind = "transcribe"
	KindGenerateReply     Kind = "generate_reply"
	KindSynthesizeSpeech  Kind = "synthesize_speech"
	KindDispatchAvatar    Kind = "dispatch_avatar"
	KindAnalyzeTranscript Kind = "analyze_transcript"
)

var (
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrCancelled            = errors.New("job cancelled")
	ErrPoolClosed           = errors.New("worker pool closed")
)

// ExhaustedError is returned once a job failed on every attempt it was
// allowed. It matches ErrRetryBudgetExhausted and the last failure.
type ExhaustedError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetryBudgetExhausted, e.Err}
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Policy bounds how often and how long a job may run. The delay before
// retry n is BaseDelay*2^(n-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Timeout bounds a single attempt, an attempt that runs out of time is
	// a transient failure.
	Timeout time.Duration
}

func (p Policy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

// Spec describes a job to submit.
type Spec struct {
	// ID is generated when empty.
	ID        string
	Kind      Kind
	SessionID string
	Payload   any
	Policy    Policy
	// Detached jobs keep running when the submitting context is cancelled
	// and are skipped by Pool.CancelSession.
	Detached bool
	Run      func(ctx context.Context, attempt int) error
}

// Job is the handle of a submitted job.
type Job struct {
	ID        string
	Kind      Kind
	SessionID string
	Payload   any

	spec    Spec
	ctx     context.Context
	cancel  context.CancelCauseFunc
	backoff retry.Backoff

	attempts atomic.Int32
	running  atomic.Bool

	mu          sync.Mutex
	scheduledAt time.Time

	finishOnce sync.Once
	done       chan struct{}
	err        error
}

func (j *Job) Attempts() int {
	return int(j.attempts.Load())
}

// ScheduledAt is when the job was last queued to run.
func (j *Job) ScheduledAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.scheduledAt
}

func (j *Job) setScheduledAt(t time.Time) {
	j.mu.Lock()
	j.scheduledAt = t
	j.mu.Unlock()
}

// Done is closed when the job reached a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err is the terminal error of the job, nil on success or while the job is
// still running.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the job as soon as possible. A running attempt observes it
// through its context.
func (j *Job) Cancel() {
	j.cancel(ErrCancelled)
}

func (j *Job) cancelledErr() error {
	cause := context.Cause(j.ctx)
	if errors.Is(cause, ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
