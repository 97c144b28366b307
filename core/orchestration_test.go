package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-screening/core/analysis"
	"github.com/koscakluka/ema-screening/core/avatar"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/jobs"
	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/speechtotext"
	"github.com/koscakluka/ema-screening/core/stages"
	"github.com/koscakluka/ema-screening/core/texttospeech"
)

type sttStub struct{ err error }

func (s sttStub) Transcribe(_ context.Context, audio []byte, _ ...speechtotext.TranscriptionOption) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return string(audio), nil
}

type llmStub struct {
	mu       sync.Mutex
	calls    int
	messages [][]llms.Message
	reply    func(call int) (string, error)
}

func (l *llmStub) Complete(_ context.Context, messages []llms.Message, _ ...llms.CompletionOption) (string, error) {
	l.mu.Lock()
	l.calls++
	call := l.calls
	l.messages = append(l.messages, messages)
	l.mu.Unlock()

	if l.reply == nil {
		return fmt.Sprintf("reply %d", call), nil
	}
	return l.reply(call)
}

func (l *llmStub) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *llmStub) lastGuidance() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	last := l.messages[len(l.messages)-1]
	return last[len(last)-1].Content
}

type ttsStub struct {
	calls      atomic.Int32
	synthesize func(ctx context.Context, text string) ([]byte, error)
}

func (s *ttsStub) Synthesize(ctx context.Context, text string, _ ...texttospeech.SynthesisOption) ([]byte, error) {
	s.calls.Add(1)
	if s.synthesize == nil {
		return []byte("audio:" + text), nil
	}
	return s.synthesize(ctx, text)
}

type analyzerStub struct {
	mu          sync.Mutex
	transcripts []string
	report      *analysis.Report
	err         error
}

func (a *analyzerStub) Analyze(_ context.Context, transcript string) (*analysis.Report, error) {
	a.mu.Lock()
	a.transcripts = append(a.transcripts, transcript)
	a.mu.Unlock()
	return a.report, a.err
}

type avatarStub struct {
	mu      sync.Mutex
	created int
	sent    []string
	stopped []avatar.Handle
}

func (a *avatarStub) CreateSession(context.Context) (avatar.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
	return avatar.Handle{ID: fmt.Sprintf("av-%d", a.created), Token: "tok"}, nil
}

func (a *avatarStub) SendText(_ context.Context, _ avatar.Handle, text string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	return true, nil
}

func (a *avatarStub) StopSession(_ context.Context, handle avatar.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = append(a.stopped, handle)
	return nil
}

type recordingEmitter struct {
	events chan events.Event
}

func (e *recordingEmitter) Deliver(_ string, event events.Event) {
	e.events <- event
}

// until returns every event up to and including the first one of kind.
func (e *recordingEmitter) until(t *testing.T, kind events.Kind) []events.Event {
	t.Helper()

	var seen []events.Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-e.events:
			seen = append(seen, event)
			if event.Kind() == kind {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return nil
		}
	}
}

func (e *recordingEmitter) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	seen := e.until(t, kind)
	return seen[len(seen)-1]
}

func (e *recordingEmitter) waitForAudio(t *testing.T, seq int) events.AIAudio {
	t.Helper()
	for {
		audio := e.waitFor(t, events.KindAIAudio).(events.AIAudio)
		if audio.Seq == seq {
			return audio
		}
	}
}

func (e *recordingEmitter) drain() []events.Event {
	var drained []events.Event
	for {
		select {
		case event := <-e.events:
			drained = append(drained, event)
		default:
			return drained
		}
	}
}

func eventually(t *testing.T, what string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func shortCatalog() *stages.Catalog {
	return stages.New(
		stages.Definition{Name: "greeting", Domain: stages.DomainIntroduction, Prompt: "Hello, what is your name?"},
		stages.Definition{Name: "orientation", Domain: stages.DomainOrientation, Prompt: "What day is it today?"},
	)
}

func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) (*Orchestrator, *recordingEmitter, *jobs.Pool) {
	t.Helper()

	pool := jobs.NewPool()
	emitter := &recordingEmitter{events: make(chan events.Event, 256)}
	defaults := []OrchestratorOption{
		WithWorkerPool(pool),
		WithEmitter(emitter),
		WithRetryPolicy(3, time.Millisecond),
		WithSpeechToText(sttStub{}),
		WithCatalog(shortCatalog()),
	}
	o := NewOrchestrator(append(defaults, opts...)...)
	t.Cleanup(func() {
		o.Close()
		pool.Close()
	})

	if _, err := o.RenewSession(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return o, emitter, pool
}

func TestInterviewRunsToFinalAnalysis(t *testing.T) {
	llm := &llmStub{}
	analyzer := &analyzerStub{report: &analysis.Report{Summary: "doing well", OverallRisk: analysis.RiskLow}}
	o, emitter, _ := newTestOrchestrator(t, WithLLM(llm), WithAnalyzer(analyzer), WithTextToSpeech(&ttsStub{}))
	ctx := context.Background()

	if err := o.SpeakText(ctx, "s1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	greeting := emitter.waitFor(t, events.KindAIResponse).(events.AIResponse)
	if greeting.Text != "Hello, what is your name?" || greeting.Seq != 1 {
		t.Fatalf("unexpected greeting %+v", greeting)
	}

	taskID, err := o.SubmitAudio(ctx, "s1", []byte("My name is John Smith"))
	if err != nil || taskID == "" {
		t.Fatalf("expected task id, got %q and %v", taskID, err)
	}
	transcript := emitter.waitFor(t, events.KindUserTranscript).(events.UserTranscript)
	if transcript.Text != "My name is John Smith" {
		t.Fatalf("unexpected transcript %q", transcript.Text)
	}
	emitter.waitFor(t, events.KindProcessing)
	reply := emitter.waitFor(t, events.KindAIResponse).(events.AIResponse)
	if reply.Text != "reply 1" || reply.Seq != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if audio := emitter.waitForAudio(t, 2); string(audio.Audio) != "audio:reply 1" {
		t.Fatalf("unexpected audio %q", audio.Audio)
	}

	session, _ := o.Session("s1")
	if session.StageIndex != 1 || session.Status != sessions.StatusActive {
		t.Fatalf("expected active session at stage 1, got %s at %d", session.Status, session.StageIndex)
	}
	if guidance := llm.lastGuidance(); !strings.Contains(guidance, "What day is it today?") {
		t.Fatalf("expected reply to lead into the next stage, got %q", guidance)
	}

	if _, err := o.SubmitAudio(ctx, "s1", []byte("I think it is Tuesday")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	complete := emitter.waitFor(t, events.KindAssessmentComplete).(events.AssessmentComplete)
	if complete.Report == nil || complete.Report.Summary != "doing well" {
		t.Fatalf("unexpected report %+v", complete.Report)
	}
	if guidance := llm.lastGuidance(); !strings.Contains(guidance, "CURRENT ASSESSMENT STAGE: complete") {
		t.Fatalf("expected closing guidance, got %q", guidance)
	}

	session, _ = o.Session("s1")
	if session.StageIndex != 2 || session.Status != sessions.StatusCompleted {
		t.Fatalf("expected completed session at stage 2, got %s at %d", session.Status, session.StageIndex)
	}

	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	if len(analyzer.transcripts) != 1 {
		t.Fatalf("expected one analysis, got %d", len(analyzer.transcripts))
	}
	for _, line := range []string{"Dr. Smith: Hello, what is your name?", "Patient: My name is John Smith", "Patient: I think it is Tuesday"} {
		if !strings.Contains(analyzer.transcripts[0], line) {
			t.Fatalf("expected transcript to contain %q, got %q", line, analyzer.transcripts[0])
		}
	}
}

func TestExhaustedGenerationFallsBackWithoutAdvancing(t *testing.T) {
	llm := &llmStub{reply: func(int) (string, error) {
		return "", &providers.Error{Provider: "openai", StatusCode: 503}
	}}
	o, emitter, _ := newTestOrchestrator(t, WithLLM(llm), WithTextToSpeech(&ttsStub{}))

	if _, err := o.SubmitAudio(context.Background(), "s1", []byte("My name is John Smith")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply := emitter.waitFor(t, events.KindAIResponse).(events.AIResponse)
	if reply.Text != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", reply.Text)
	}
	if llm.callCount() != 3 {
		t.Fatalf("expected 3 generation attempts, got %d", llm.callCount())
	}
	emitter.waitForAudio(t, reply.Seq)

	session, _ := o.Session("s1")
	if session.StageIndex != 0 {
		t.Fatalf("expected stage to stay at 0, got %d", session.StageIndex)
	}
	last, _ := session.LastTurn()
	if last.Role != sessions.RoleInterviewer || !last.Fallback || last.Text != FallbackReply {
		t.Fatalf("expected fallback interviewer turn, got %+v", last)
	}
}

func TestFailedSynthesisStillDeliversText(t *testing.T) {
	tts := &ttsStub{synthesize: func(context.Context, string) ([]byte, error) {
		return nil, &providers.Error{Provider: "elevenlabs", StatusCode: 503}
	}}
	o, emitter, pool := newTestOrchestrator(t, WithTextToSpeech(tts))

	if err := o.SpeakText(context.Background(), "s1", "Hello there"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply := emitter.waitFor(t, events.KindAIResponse).(events.AIResponse); reply.Text != "Hello there" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}

	eventually(t, "synthesis to give up", func() bool { return tts.calls.Load() == 3 && pool.Active() == 0 })
	for _, event := range emitter.drain() {
		if event.Kind() == events.KindAIAudio || event.Kind() == events.KindError {
			t.Fatalf("unexpected %s event after failed synthesis", event.Kind())
		}
	}
}

func TestFailedSynthesisOfGeneratedReplyStillDeliversText(t *testing.T) {
	tts := &ttsStub{synthesize: func(context.Context, string) ([]byte, error) {
		return nil, &providers.Error{Provider: "elevenlabs", StatusCode: 503}
	}}
	o, emitter, pool := newTestOrchestrator(t, WithLLM(&llmStub{}), WithTextToSpeech(tts))

	if _, err := o.SubmitAudio(context.Background(), "s1", []byte("My name is John Smith")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply := emitter.waitFor(t, events.KindAIResponse).(events.AIResponse)
	if reply.Text != "reply 1" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}

	eventually(t, "synthesis to give up", func() bool { return tts.calls.Load() == 3 && pool.Active() == 0 })
	for _, event := range emitter.drain() {
		if event.Kind() == events.KindAIAudio || event.Kind() == events.KindError {
			t.Fatalf("unexpected %s event after failed synthesis", event.Kind())
		}
	}

	session, _ := o.Session("s1")
	if session.StageIndex != 1 {
		t.Fatalf("expected the successful reply to advance the stage, got %d", session.StageIndex)
	}
	last, _ := session.LastTurn()
	if last.Role != sessions.RoleInterviewer || last.Text != "reply 1" || last.Fallback {
		t.Fatalf("expected recorded interviewer reply, got %+v", last)
	}
}

func TestFullStoreKeepsLiveSessions(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, WithSessionLimits(time.Hour, 2))
	ctx := context.Background()

	if _, err := o.RenewSession(ctx, "s2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.RenewSession(ctx, "s3"); !errors.Is(err, sessions.ErrCapacityReached) {
		t.Fatalf("expected ErrCapacityReached, got %v", err)
	}
	if _, err := o.StartSession(ctx); !errors.Is(err, sessions.ErrCapacityReached) {
		t.Fatalf("expected ErrCapacityReached, got %v", err)
	}

	for _, id := range []string{"s1", "s2"} {
		session, err := o.Session(id)
		if err != nil || session.Status != sessions.StatusActive {
			t.Fatalf("expected %s to stay active, got %+v and %v", id, session, err)
		}
	}
}

func TestEndSessionRacingSubmitLeavesNoLane(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, WithLLM(&llmStub{}))
	ctx := context.Background()

	for i := range 50 {
		id := fmt.Sprintf("race-%d", i)
		if _, err := o.RenewSession(ctx, id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = o.SubmitAudio(ctx, id, []byte("hello there doctor"))
		}()
		go func() {
			defer wg.Done()
			_ = o.EndSession(ctx, id)
		}()
		wg.Wait()
	}

	o.lanesMu.Lock()
	defer o.lanesMu.Unlock()
	for id := range o.lanes {
		if id != "s1" {
			t.Fatalf("expected no lane to outlive its session, found %q", id)
		}
	}
}

func TestLaneIsNotStartedForMissingSession(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	if _, err := o.lane("missing"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	o.lanesMu.Lock()
	defer o.lanesMu.Unlock()
	if _, ok := o.lanes["missing"]; ok {
		t.Fatalf("expected no lane for a missing session")
	}
}

func TestUntranscribedAudioEndsTheTurn(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		placeholder string
	}{
		{name: "no speech", err: speechtotext.ErrNoSpeech, placeholder: NoSpeechPlaceholder},
		{name: "rejected", err: &providers.Error{Provider: "deepgram", StatusCode: 400}, placeholder: UntranscribablePlaceholder},
		{name: "exhausted", err: &providers.Error{Provider: "deepgram", StatusCode: 503}, placeholder: UntranscribablePlaceholder},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			llm := &llmStub{}
			o, emitter, _ := newTestOrchestrator(t, WithLLM(llm), WithSpeechToText(sttStub{err: testCase.err}))
			ctx := context.Background()

			if _, err := o.SubmitAudio(ctx, "s1", []byte("ignored")); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			transcript := emitter.waitFor(t, events.KindUserTranscript).(events.UserTranscript)
			if transcript.Text != testCase.placeholder {
				t.Fatalf("expected %q, got %q", testCase.placeholder, transcript.Text)
			}

			// The lane runs items in order, so once this reply arrives the
			// failed turn is fully processed.
			if err := o.SpeakText(ctx, "s1", "Take your time."); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, event := range emitter.until(t, events.KindAIResponse) {
				if event.Kind() == events.KindProcessing {
					t.Fatalf("expected turn to end without processing")
				}
			}
			if llm.callCount() != 0 {
				t.Fatalf("expected no generation, got %d calls", llm.callCount())
			}

			session, _ := o.Session("s1")
			if session.StageIndex != 0 || len(session.Turns) != 2 || session.Turns[0].Text != testCase.placeholder {
				t.Fatalf("unexpected session %+v", session)
			}
		})
	}
}

func TestStaleAudioIsDropped(t *testing.T) {
	release := make(chan struct{})
	tts := &ttsStub{synthesize: func(ctx context.Context, text string) ([]byte, error) {
		if text == "first" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return []byte(text), nil
	}}
	o, emitter, pool := newTestOrchestrator(t, WithTextToSpeech(tts))
	ctx := context.Background()

	_ = o.SpeakText(ctx, "s1", "first")
	_ = o.SpeakText(ctx, "s1", "second")
	emitter.waitForAudio(t, 2)

	close(release)
	eventually(t, "both syntheses to finish", func() bool { return tts.calls.Load() == 2 && pool.Active() == 0 })
	for _, event := range emitter.drain() {
		if audio, ok := event.(events.AIAudio); ok && audio.Seq == 1 {
			t.Fatalf("expected audio of turn 1 to be dropped")
		}
	}
}

func TestEndSessionCancelsSynthesis(t *testing.T) {
	started := make(chan struct{}, 1)
	tts := &ttsStub{synthesize: func(ctx context.Context, _ string) ([]byte, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	avatars := &avatarStub{}
	o, emitter, pool := newTestOrchestrator(t, WithTextToSpeech(tts), WithAvatar(avatars))
	ctx := context.Background()

	_ = o.SpeakText(ctx, "s1", "Hello there")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for synthesis to start")
	}
	eventually(t, "avatar to be attached", func() bool {
		session, err := o.Session("s1")
		return err == nil && session.Avatar != nil
	})

	if err := o.EndSession(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, "jobs to finish", func() bool { return pool.Active() == 0 })

	for _, event := range emitter.drain() {
		if event.Kind() == events.KindAIAudio {
			t.Fatalf("expected cancelled synthesis not to produce audio")
		}
	}
	if _, err := o.Session("s1"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected session to be removed, got %v", err)
	}
	if _, err := o.SubmitAudio(ctx, "s1", []byte("hello")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	avatars.mu.Lock()
	defer avatars.mu.Unlock()
	if len(avatars.stopped) != 1 || avatars.stopped[0].ID != "av-1" {
		t.Fatalf("expected avatar session to be stopped, got %+v", avatars.stopped)
	}
}

func TestReleaseConnectionKeepsSession(t *testing.T) {
	var block atomic.Bool
	block.Store(true)
	started := make(chan struct{}, 1)
	tts := &ttsStub{synthesize: func(ctx context.Context, text string) ([]byte, error) {
		if block.Load() {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []byte(text), nil
	}}
	o, emitter, pool := newTestOrchestrator(t, WithTextToSpeech(tts))
	ctx := context.Background()

	_ = o.SpeakText(ctx, "s1", "first")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for synthesis to start")
	}

	o.ReleaseConnection("s1")
	eventually(t, "synthesis to be cancelled", func() bool { return pool.Active() == 0 })
	if _, err := o.Session("s1"); err != nil {
		t.Fatalf("expected session to survive, got %v", err)
	}

	block.Store(false)
	_ = o.SpeakText(ctx, "s1", "second")
	if audio := emitter.waitForAudio(t, 2); string(audio.Audio) != "second" {
		t.Fatalf("unexpected audio %q", audio.Audio)
	}
}

func TestAvatarIsCreatedOncePerSession(t *testing.T) {
	avatars := &avatarStub{}
	o, _, pool := newTestOrchestrator(t, WithAvatar(avatars))
	ctx := context.Background()

	_ = o.SpeakText(ctx, "s1", "one")
	_ = o.SpeakText(ctx, "s1", "two")

	eventually(t, "both texts to reach the avatar", func() bool {
		avatars.mu.Lock()
		defer avatars.mu.Unlock()
		return len(avatars.sent) == 2
	})
	eventually(t, "jobs to finish", func() bool { return pool.Active() == 0 })

	avatars.mu.Lock()
	created := avatars.created
	avatars.mu.Unlock()
	if created != 1 {
		t.Fatalf("expected one avatar session, got %d", created)
	}
	session, _ := o.Session("s1")
	if session.Avatar == nil || session.Avatar.ID != "av-1" {
		t.Fatalf("expected avatar handle on session, got %+v", session.Avatar)
	}
}

func TestFailedAnalysisReportsErrorAndKeepsAwaiting(t *testing.T) {
	analyzer := &analyzerStub{err: &providers.Error{Provider: "groq", StatusCode: 500}}
	catalog := stages.New(stages.Definition{Name: "only", Domain: stages.DomainMemory, Prompt: "What did you eat today?"})
	o, emitter, _ := newTestOrchestrator(t, WithCatalog(catalog), WithLLM(&llmStub{}), WithAnalyzer(analyzer))

	if _, err := o.SubmitAudio(context.Background(), "s1", []byte("Porridge with some berries")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failure := emitter.waitFor(t, events.KindError).(events.Error)
	if failure.Message != AnalysisFailedMessage {
		t.Fatalf("unexpected error message %q", failure.Message)
	}
	session, _ := o.Session("s1")
	if session.Status != sessions.StatusAwaitingFinalAnalysis {
		t.Fatalf("expected awaiting_final_analysis, got %s", session.Status)
	}

	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	if len(analyzer.transcripts) != 3 {
		t.Fatalf("expected 3 analysis attempts, got %d", len(analyzer.transcripts))
	}
}

func TestSubmitAudioForUnknownSession(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	if _, err := o.SubmitAudio(context.Background(), "missing", []byte("hi")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Close()

	if _, err := o.SubmitAudio(context.Background(), "s1", []byte("hi")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
