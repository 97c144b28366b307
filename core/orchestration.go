package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-screening/core/analysis"
	"github.com/koscakluka/ema-screening/core/assessment"
	"github.com/koscakluka/ema-screening/core/conversations"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/jobs"
	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/stages"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrClosed = errors.New("orchestrator closed")

// Orchestrator runs screening interviews. Every session has a lane that
// processes its turns one at a time, provider calls run as jobs on a shared
// worker pool.
type Orchestrator struct {
	store        sessions.Store
	storeOptions []sessions.StoreOption
	catalog      *stages.Catalog
	predicate    assessment.Predicate
	windowSize   int
	machine      *assessment.Machine
	builder      *conversations.Builder

	pool     *jobs.Pool
	ownsPool bool
	retry    jobs.Policy
	timeouts Timeouts

	speechToText speechToText
	llm          llm
	textToSpeech textToSpeech
	avatar       avatarRuntime
	analyzer     analysis.Analyzer
	emitter      Emitter

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	lanesMu sync.Mutex
	lanes   map[string]*lane
	closed  bool

	metrics orchestratorMetrics
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		catalog: stages.Default(),
		retry: jobs.Policy{
			MaxAttempts: jobs.DefaultMaxAttempts,
			BaseDelay:   jobs.DefaultBaseDelay,
		},
		timeouts: DefaultTimeouts,
		llm:      newLLM(),
		emitter:  EmitterFunc(func(string, events.Event) {}),
		lanes:    map[string]*lane{},
		metrics:  newOrchestratorMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		storeOptions := append([]sessions.StoreOption{
			sessions.WithStageLimit(o.catalog.Count()),
			sessions.WithExpiryCallback(o.SessionExpired),
		}, o.storeOptions...)
		o.store = sessions.NewMemoryStore(storeOptions...)
	}
	if o.pool == nil {
		o.pool = jobs.NewPool()
		o.ownsPool = true
	}

	var machineOptions []assessment.MachineOption
	if o.predicate != nil {
		machineOptions = append(machineOptions, assessment.WithPredicate(o.predicate))
	}
	o.machine = assessment.NewMachine(o.store, o.catalog, machineOptions...)
	o.builder = conversations.NewBuilder(o.catalog, conversations.WithWindowSize(o.windowSize))

	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// Close stops every lane and, when the orchestrator created it, the worker
// pool. Sessions are kept in the store.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.lanesMu.Lock()
		o.closed = true
		lanes := o.lanes
		o.lanes = map[string]*lane{}
		o.lanesMu.Unlock()

		for _, l := range lanes {
			l.stop()
		}
		o.cancel()
		if o.ownsPool {
			o.pool.Close()
		}
		for _, l := range lanes {
			<-l.done
		}
	})
}

// StartSession creates a session with a generated id.
func (o *Orchestrator) StartSession(ctx context.Context) (sessions.Session, error) {
	return o.RenewSession(ctx, uuid.NewString())
}

// RenewSession returns the session with sessionID, creating it when it does
// not exist (anymore).
func (o *Orchestrator) RenewSession(ctx context.Context, sessionID string) (sessions.Session, error) {
	session, err := o.store.GetOrCreate(sessionID)
	if err != nil {
		return sessions.Session{}, fmt.Errorf("failed to renew session: %w", err)
	}
	logger.DebugContext(ctx, "session renewed", "session_id", sessionID)
	return session, nil
}

func (o *Orchestrator) Session(sessionID string) (sessions.Session, error) {
	return o.store.Get(sessionID)
}

// SubmitAudio queues an utterance of the patient. It returns the id of the
// transcription job.
func (o *Orchestrator) SubmitAudio(ctx context.Context, sessionID string, audio []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "submit audio", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("audio.bytes", len(audio)),
	))
	defer span.End()

	if _, err := o.store.Get(sessionID); err != nil {
		return "", err
	}
	l, err := o.lane(sessionID)
	if err != nil {
		return "", err
	}

	transcription := &transcription{}
	job, err := o.pool.Submit(o.jobContext(ctx), jobs.Spec{
		Kind:      jobs.KindTranscribe,
		SessionID: sessionID,
		Policy:    o.policy(o.timeouts.Transcribe),
		Run: func(ctx context.Context, _ int) error {
			text, err := o.speechToText.transcribe(ctx, audio)
			if err != nil {
				return err
			}
			transcription.text = text
			return nil
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to submit transcription: %w", err)
	}

	if err := l.enqueue(ctx, func(ctx context.Context) {
		o.processAudioTurn(ctx, l, job, transcription)
	}); err != nil {
		job.Cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return job.ID, nil
}

// SpeakText makes the interviewer say text, or the prompt of the current
// stage when text is empty. It is used to open the interview.
func (o *Orchestrator) SpeakText(ctx context.Context, sessionID string, text string) error {
	session, err := o.store.Get(sessionID)
	if err != nil {
		return err
	}
	if text == "" {
		stage, err := o.catalog.StageAt(session.StageIndex)
		if err != nil {
			return fmt.Errorf("nothing to speak: %w", err)
		}
		text = stage.Prompt
	}

	l, err := o.lane(sessionID)
	if err != nil {
		return err
	}
	return l.enqueue(ctx, func(ctx context.Context) { o.speak(ctx, l, text) })
}

// EndSession stops the interview. Pending speech and avatar work is
// cancelled, replies and analyses still running are discarded.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	session, err := o.store.Get(sessionID)
	if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		return err
	}

	o.store.Remove(sessionID)
	o.stopLane(sessionID)
	o.pool.CancelSession(sessionID, jobs.KindTranscribe, jobs.KindSynthesizeSpeech, jobs.KindDispatchAvatar)
	o.stopAvatar(ctx, session.Avatar)

	logger.InfoContext(ctx, "session ended", "session_id", sessionID)
	return nil
}

// ReleaseConnection is called when the client of sessionID went away. Audio
// and avatar work in flight is cancelled, the session itself stays.
func (o *Orchestrator) ReleaseConnection(sessionID string) {
	o.lanesMu.Lock()
	l := o.lanes[sessionID]
	o.lanesMu.Unlock()
	if l != nil {
		l.invalidateAudio()
	}

	if n := o.pool.CancelSession(sessionID, jobs.KindSynthesizeSpeech, jobs.KindDispatchAvatar); n > 0 {
		logger.Debug("released connection", "session_id", sessionID, "cancelled_jobs", n)
	}
}

// SessionExpired cleans up after a session the store dropped.
func (o *Orchestrator) SessionExpired(session sessions.Session) {
	o.stopLane(session.ID)
	o.pool.CancelSession(session.ID, jobs.KindTranscribe, jobs.KindSynthesizeSpeech, jobs.KindDispatchAvatar)
	o.stopAvatar(context.Background(), session.Avatar)
	logger.Info("expired session cleaned up", "session_id", session.ID, "stage", session.StageIndex)
}

func (o *Orchestrator) stopAvatar(ctx context.Context, handle *sessions.AvatarHandle) {
	if handle == nil || !o.avatar.isConfigured() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeouts.Avatar)
	defer cancel()
	o.avatar.stop(ctx, fromSessionHandle(*handle))
}

func (o *Orchestrator) policy(timeout time.Duration) jobs.Policy {
	policy := o.retry
	policy.Timeout = timeout
	return policy
}

// jobContext roots jobs in the orchestrator lifetime while keeping the trace
// of the request that caused them.
func (o *Orchestrator) jobContext(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(o.ctx, trace.SpanContextFromContext(ctx))
}

func (o *Orchestrator) emit(sessionID string, event events.Event) {
	o.emitter.Deliver(sessionID, event)
}
