package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-screening/core/analysis"
	"github.com/koscakluka/ema-screening/core/assessment"
	"github.com/koscakluka/ema-screening/core/avatar"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/jobs"
	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/speechtotext"
	"github.com/koscakluka/ema-screening/core/stages"
	"github.com/koscakluka/ema-screening/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error)
}

func WithSpeechToText(client SpeechToText, opts ...speechtotext.TranscriptionOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText.set(client)
		o.speechToText.options = append(o.speechToText.options, opts...)
	}
}

type LLM interface {
	Complete(ctx context.Context, messages []llms.Message, opts ...llms.CompletionOption) (string, error)
}

func WithLLM(client LLM) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.set(client) }
}

// WithGenerationOptions replaces the options replies are generated with.
func WithGenerationOptions(opts ...llms.CompletionOption) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.options = append([]llms.CompletionOption(nil), opts...) }
}

func WithAnalyzer(analyzer analysis.Analyzer) OrchestratorOption {
	return func(o *Orchestrator) { o.analyzer = analyzer }
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

func WithTextToSpeech(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) { o.textToSpeech.set(client) }
}

func WithVoice(voice string) OrchestratorOption {
	return func(o *Orchestrator) { o.textToSpeech.voice = voice }
}

func WithAvatar(client avatar.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.avatar.set(client) }
}

// WithSessionStore replaces the in-memory store. Expiry of sessions held by
// a custom store should be reported through [Orchestrator.SessionExpired].
func WithSessionStore(store sessions.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithSessionLimits configures the default in-memory store.
func WithSessionLimits(idleTimeout time.Duration, capacity int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.storeOptions = append(o.storeOptions,
			sessions.WithIdleTimeout(idleTimeout),
			sessions.WithCapacity(capacity))
	}
}

func WithCatalog(catalog *stages.Catalog) OrchestratorOption {
	return func(o *Orchestrator) {
		if catalog != nil {
			o.catalog = catalog
		}
	}
}

func WithPredicate(predicate assessment.Predicate) OrchestratorOption {
	return func(o *Orchestrator) { o.predicate = predicate }
}

func WithWindowSize(size int) OrchestratorOption {
	return func(o *Orchestrator) { o.windowSize = size }
}

// WithWorkerPool runs jobs on a shared pool. The orchestrator does not close
// a pool it did not create.
func WithWorkerPool(pool *jobs.Pool) OrchestratorOption {
	return func(o *Orchestrator) { o.pool = pool }
}

func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if maxAttempts > 0 {
			o.retry.MaxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			o.retry.BaseDelay = baseDelay
		}
	}
}

// Timeouts bound a single attempt of each job kind.
type Timeouts struct {
	Transcribe time.Duration
	Generate   time.Duration
	Synthesize time.Duration
	Avatar     time.Duration
	Analyze    time.Duration
}

var DefaultTimeouts = Timeouts{
	Transcribe: 10 * time.Second,
	Generate:   15 * time.Second,
	Synthesize: 15 * time.Second,
	Avatar:     10 * time.Second,
	Analyze:    30 * time.Second,
}

// WithTimeouts overrides the non-zero timeouts.
func WithTimeouts(timeouts Timeouts) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeouts.Transcribe > 0 {
			o.timeouts.Transcribe = timeouts.Transcribe
		}
		if timeouts.Generate > 0 {
			o.timeouts.Generate = timeouts.Generate
		}
		if timeouts.Synthesize > 0 {
			o.timeouts.Synthesize = timeouts.Synthesize
		}
		if timeouts.Avatar > 0 {
			o.timeouts.Avatar = timeouts.Avatar
		}
		if timeouts.Analyze > 0 {
			o.timeouts.Analyze = timeouts.Analyze
		}
	}
}

// Emitter receives every event meant for the client of a session. Deliver
// must not block.
type Emitter interface {
	Deliver(sessionID string, event events.Event)
}

type EmitterFunc func(sessionID string, event events.Event)

func (f EmitterFunc) Deliver(sessionID string, event events.Event) { f(sessionID, event) }

func WithEmitter(emitter Emitter) OrchestratorOption {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}
