package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-screening/core/analysis"
	"github.com/koscakluka/ema-screening/core/assessment"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/jobs"
	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	NoSpeechPlaceholder        = "[no speech detected]"
	UntranscribablePlaceholder = "[speech could not be transcribed]"

	ProcessingMessage         = "Dr. Smith is thinking..."
	FallbackReply             = "I'm sorry, I didn't quite catch that. Could you tell me a little more?"
	AssessmentCompleteMessage = "Thank you. Your cognitive health assessment is complete."
	AnalysisFailedMessage     = "The assessment could not be analyzed right now."
)

type transcription struct {
	text string
}

func (o *Orchestrator) processAudioTurn(ctx context.Context, l *lane, job *jobs.Job, result *transcription) {
	err := job.Wait(ctx)
	if ctx.Err() != nil {
		return
	}

	text := result.text
	outcome := "answered"
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrCancelled), errors.Is(err, jobs.ErrPoolClosed):
		logger.DebugContext(ctx, "transcription abandoned", "session_id", l.sessionID, "job_id", job.ID)
		return
	case errors.Is(err, speechtotext.ErrNoSpeech):
		text, outcome = NoSpeechPlaceholder, "no_speech"
	default:
		logger.WarnContext(ctx, "transcription failed", "session_id", l.sessionID, "job_id", job.ID, "error", err)
		text, outcome = UntranscribablePlaceholder, "untranscribable"
	}

	ctx, span := tracer.Start(ctx, "process turn", trace.WithAttributes(
		attribute.String("session.id", l.sessionID),
		attribute.String("turn.outcome", outcome),
	))
	defer span.End()

	session, seq, err := o.beginTurn(l.sessionID, sessions.RolePatient, text)
	if err != nil {
		logger.InfoContext(ctx, "dropping turn of ended session", "session_id", l.sessionID, "error", err)
		return
	}
	span.SetAttributes(attribute.Int("turn.seq", seq))

	o.emit(l.sessionID, events.NewUserTranscript(text))
	if outcome != "answered" {
		o.metrics.turn(ctx, outcome)
		return
	}
	o.emit(l.sessionID, events.NewProcessing(ProcessingMessage))

	if err := o.answer(ctx, l, session, seq, text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// answer generates the interviewer reply to a recorded patient turn and
// applies its stage decision.
func (o *Orchestrator) answer(ctx context.Context, l *lane, session sessions.Session, seq int, text string) error {
	decision := o.machine.Plan(session, text)
	messages := o.builder.Build(session, decision.TargetStage)

	reply, fallback, err := o.generateReply(ctx, l.sessionID, messages)
	if err != nil {
		return err
	}

	if err := o.recordReply(l.sessionID, seq, reply, fallback); err != nil {
		logger.InfoContext(ctx, "discarding reply of ended session", "session_id", l.sessionID, "error", err)
		return nil
	}
	o.deliverText(l, seq, reply)

	if fallback {
		o.metrics.turn(ctx, "fallback")
	} else {
		o.metrics.turn(ctx, "answered")
		request, err := o.machine.Commit(ctx, decision)
		if err != nil {
			logger.WarnContext(ctx, "failed to commit stage decision", "session_id", l.sessionID, "error", err)
		}
		if request != nil {
			o.requestAnalysis(ctx, *request)
		}
	}

	o.fanOut(ctx, l, seq, reply)
	return nil
}

func (o *Orchestrator) speak(ctx context.Context, l *lane, text string) {
	_, seq, err := o.beginTurn(l.sessionID, sessions.RoleInterviewer, text)
	if err != nil {
		logger.InfoContext(ctx, "dropping speech of ended session", "session_id", l.sessionID, "error", err)
		return
	}
	o.deliverText(l, seq, text)
	o.fanOut(ctx, l, seq, text)
}

// generateReply runs generation as a detached job. When every attempt
// failed the fallback reply is returned with fallback set.
func (o *Orchestrator) generateReply(ctx context.Context, sessionID string, messages []llms.Message) (reply string, fallback bool, err error) {
	var generated string
	job, err := o.pool.Submit(o.jobContext(ctx), jobs.Spec{
		Kind:      jobs.KindGenerateReply,
		SessionID: sessionID,
		Detached:  true,
		Policy:    o.policy(o.timeouts.Generate),
		Run: func(ctx context.Context, _ int) error {
			reply, err := o.llm.generate(ctx, messages)
			if err != nil {
				return err
			}
			generated = reply
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to submit reply generation: %w", err)
	}

	err = job.Wait(ctx)
	switch {
	case err == nil:
		return generated, false, nil
	case ctx.Err() != nil:
		return "", false, ctx.Err()
	case errors.Is(err, jobs.ErrCancelled), errors.Is(err, jobs.ErrPoolClosed):
		return "", false, err
	default:
		logger.WarnContext(ctx, "reply generation failed, falling back",
			"session_id", sessionID,
			"attempts", job.Attempts(),
			"error", err)
		return FallbackReply, true, nil
	}
}

// beginTurn issues the next turn sequence number and records the turn that
// opens it.
func (o *Orchestrator) beginTurn(sessionID string, role sessions.Role, text string) (sessions.Session, int, error) {
	var seq int
	session, err := o.store.Update(sessionID, func(session *sessions.Session) error {
		session.Sequence++
		seq = session.Sequence
		session.Turns = append(session.Turns, sessions.Turn{
			Role:      role,
			Text:      text,
			Timestamp: time.Now(),
			Seq:       seq,
		})
		return nil
	})
	if err != nil {
		return sessions.Session{}, 0, err
	}
	return session, seq, nil
}

func (o *Orchestrator) recordReply(sessionID string, seq int, text string, fallback bool) error {
	_, err := o.store.Update(sessionID, func(session *sessions.Session) error {
		session.Turns = append(session.Turns, sessions.Turn{
			Role:      sessions.RoleInterviewer,
			Text:      text,
			Timestamp: time.Now(),
			Seq:       seq,
			Fallback:  fallback,
		})
		return nil
	})
	return err
}

func (o *Orchestrator) deliverText(l *lane, seq int, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq > l.lastTextSeq {
		l.lastTextSeq = seq
	}
	o.emit(l.sessionID, events.NewAIResponse(text, seq))
}

// deliverAudio sends audio of turn seq unless the text of a later turn was
// already sent or the audio was invalidated since the synthesis started.
func (o *Orchestrator) deliverAudio(ctx context.Context, l *lane, seq int, epoch int, audio []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ctx.Err() != nil || epoch != l.epoch {
		return false
	}
	if l.lastTextSeq > seq {
		logger.DebugContext(ctx, "dropping stale audio", "session_id", l.sessionID, "seq", seq, "last_text_seq", l.lastTextSeq)
		return false
	}
	o.emit(l.sessionID, events.NewAIAudio(audio, seq))
	return true
}

// fanOut starts speech synthesis and the avatar without waiting for either.
func (o *Orchestrator) fanOut(ctx context.Context, l *lane, seq int, text string) {
	if o.textToSpeech.isConfigured() {
		epoch := l.audioEpoch()
		_, err := o.pool.Submit(o.jobContext(ctx), jobs.Spec{
			Kind:      jobs.KindSynthesizeSpeech,
			SessionID: l.sessionID,
			Payload:   seq,
			Policy:    o.policy(o.timeouts.Synthesize),
			Run: func(ctx context.Context, _ int) error {
				audio, err := o.textToSpeech.synthesize(ctx, text)
				if err != nil {
					return err
				}
				o.deliverAudio(ctx, l, seq, epoch, audio)
				return nil
			},
		})
		if err != nil {
			logger.WarnContext(ctx, "failed to submit speech synthesis", "session_id", l.sessionID, "error", err)
		}
	}

	if o.avatar.isConfigured() {
		_, err := o.pool.Submit(o.jobContext(ctx), jobs.Spec{
			Kind:      jobs.KindDispatchAvatar,
			SessionID: l.sessionID,
			Payload:   seq,
			Policy:    o.policy(o.timeouts.Avatar),
			Run: func(ctx context.Context, _ int) error {
				handle, err := o.avatar.ensure(ctx, o.store, l.sessionID, &l.avatarMu)
				if errors.Is(err, sessions.ErrSessionNotFound) {
					return providers.Permanent(err)
				}
				if err != nil {
					return err
				}

				accepted, err := o.avatar.client.SendText(ctx, handle, text)
				if err != nil {
					return err
				}
				if !accepted {
					logger.WarnContext(ctx, "avatar did not accept reply", "session_id", l.sessionID, "seq", seq)
				}
				return nil
			},
		})
		if err != nil {
			logger.WarnContext(ctx, "failed to submit avatar dispatch", "session_id", l.sessionID, "error", err)
		}
	}
}

// requestAnalysis runs the final analysis as a detached job. Its outcome is
// delivered whenever it is ready.
func (o *Orchestrator) requestAnalysis(ctx context.Context, request assessment.FinalAnalysisRequested) {
	if o.analyzer == nil {
		logger.WarnContext(ctx, "no analyzer configured, completing without report", "session_id", request.SessionID)
		o.completeAnalysis(ctx, request.SessionID, nil)
		return
	}

	var report *analysis.Report
	job, err := o.pool.Submit(o.jobContext(ctx), jobs.Spec{
		Kind:      jobs.KindAnalyzeTranscript,
		SessionID: request.SessionID,
		Payload:   request,
		Detached:  true,
		Policy:    o.policy(o.timeouts.Analyze),
		Run: func(ctx context.Context, _ int) error {
			result, err := o.analyzer.Analyze(ctx, request.Transcript)
			if err != nil {
				return err
			}
			report = result
			return nil
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to submit final analysis", "session_id", request.SessionID, "error", err)
		o.emit(request.SessionID, events.NewError(AnalysisFailedMessage))
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		err := job.Wait(ctx)
		switch {
		case err == nil:
			o.completeAnalysis(ctx, request.SessionID, report)
		case errors.Is(err, jobs.ErrPoolClosed), errors.Is(err, jobs.ErrCancelled):
		default:
			logger.ErrorContext(ctx, "final analysis failed",
				"session_id", request.SessionID,
				"attempts", job.Attempts(),
				"error", err)
			if _, getErr := o.store.Get(request.SessionID); getErr == nil {
				o.emit(request.SessionID, events.NewError(AnalysisFailedMessage))
			}
		}
	}()
}

func (o *Orchestrator) completeAnalysis(ctx context.Context, sessionID string, report *analysis.Report) {
	if err := o.machine.CompleteAnalysis(ctx, sessionID); err != nil {
		logger.InfoContext(ctx, "discarding analysis", "session_id", sessionID, "error", err)
		return
	}
	o.emit(sessionID, events.NewAssessmentComplete(AssessmentCompleteMessage, report))
}
