package assessment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/stages"
)

func newTestMachine(t *testing.T, opts ...MachineOption) (*Machine, *sessions.MemoryStore) {
	t.Helper()

	catalog := stages.Default()
	store := sessions.NewMemoryStore(sessions.WithStageLimit(catalog.Count()))
	if _, err := store.GetOrCreate("s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewMachine(store, catalog, opts...), store
}

func TestQualifyingAnswerAdvancesOneStage(t *testing.T) {
	machine, store := newTestMachine(t)

	request, err := machine.OnPatientTurn(context.Background(), "s1", "My name is John and I feel okay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if request != nil {
		t.Fatalf("expected no final analysis request")
	}

	session, _ := store.Get("s1")
	if session.StageIndex != 1 || session.Status != sessions.StatusActive {
		t.Fatalf("expected active session at stage 1, got %s at %d", session.Status, session.StageIndex)
	}
}

func TestShortOrBlankAnswersDoNotAdvance(t *testing.T) {
	for _, answer := range []string{"ok", "", "     ", "\t\n  hi  \n", "12345"} {
		t.Run(fmt.Sprintf("%q", answer), func(t *testing.T) {
			machine, store := newTestMachine(t)
			for range 3 {
				if _, err := store.AdvanceStage("s1"); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			if _, err := machine.OnPatientTurn(context.Background(), "s1", answer); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			session, _ := store.Get("s1")
			if session.StageIndex != 3 {
				t.Fatalf("expected stage to stay at 3, got %d", session.StageIndex)
			}
		})
	}
}

func TestPlanDoesNotMutateAndTargetsNextStage(t *testing.T) {
	machine, store := newTestMachine(t)
	session, _ := store.Get("s1")

	decision := machine.Plan(session, "Today is Tuesday")
	if !decision.Advance || decision.FromStage != 0 || decision.TargetStage != 1 {
		t.Fatalf("unexpected decision %+v", decision)
	}

	after, _ := store.Get("s1")
	if after.StageIndex != 0 {
		t.Fatalf("expected Plan to leave stage untouched, got %d", after.StageIndex)
	}

	declined := machine.Plan(session, "um")
	if declined.Advance || declined.TargetStage != 0 {
		t.Fatalf("expected short answer to keep the target stage, got %+v", declined)
	}
}

func TestLastAnswerRequestsFinalAnalysisExactlyOnce(t *testing.T) {
	machine, store := newTestMachine(t)
	ctx := context.Background()
	catalog := machine.Catalog()

	var requests []*FinalAnalysisRequested
	for i := range catalog.Count() {
		if _, err := store.AppendTurn("s1", sessions.RoleInterviewer, fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.AppendTurn("s1", sessions.RolePatient, fmt.Sprintf("a long enough answer %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		request, err := machine.OnPatientTurn(ctx, "s1", fmt.Sprintf("a long enough answer %d", i))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if request != nil {
			requests = append(requests, request)
		}
	}

	for range 3 {
		request, err := machine.OnPatientTurn(ctx, "s1", "even more talking after the end")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if request != nil {
			requests = append(requests, request)
		}
	}

	if len(requests) != 1 {
		t.Fatalf("expected exactly one final analysis request, got %d", len(requests))
	}

	session, _ := store.Get("s1")
	if session.StageIndex != catalog.Count() {
		t.Fatalf("expected stage index %d, got %d", catalog.Count(), session.StageIndex)
	}
	if session.Status != sessions.StatusAwaitingFinalAnalysis {
		t.Fatalf("expected awaiting_final_analysis, got %s", session.Status)
	}

	lines := strings.Split(requests[0].Transcript, "\n")
	if len(lines) != 2*catalog.Count() {
		t.Fatalf("expected %d transcript lines, got %d", 2*catalog.Count(), len(lines))
	}
	if lines[0] != "Dr. Smith: question 0" || lines[1] != "Patient: a long enough answer 0" {
		t.Fatalf("unexpected transcript start %q", lines[:2])
	}
	if lines[len(lines)-1] != fmt.Sprintf("Patient: a long enough answer %d", catalog.Count()-1) {
		t.Fatalf("unexpected transcript end %q", lines[len(lines)-1])
	}
}

func TestConcurrentCommitsOfTheSameDecisionApplyOnce(t *testing.T) {
	machine, store := newTestMachine(t)
	ctx := context.Background()
	for range machine.Catalog().Count() - 1 {
		if _, err := store.AdvanceStage("s1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	session, _ := store.Get("s1")
	decision := machine.Plan(session, "nothing else, thank you doctor")

	var requests atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			request, err := machine.Commit(ctx, decision)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if request != nil {
				requests.Add(1)
			}
		}()
	}
	wg.Wait()

	if requests.Load() != 1 {
		t.Fatalf("expected one final analysis request, got %d", requests.Load())
	}
}

func TestCompletedSessionIgnoresFurtherAnswers(t *testing.T) {
	machine, store := newTestMachine(t)
	if err := store.MarkStatus("s1", sessions.StatusAwaitingFinalAnalysis); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := machine.CompleteAnalysis(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	request, err := machine.OnPatientTurn(context.Background(), "s1", "a perfectly qualifying answer")
	if err != nil || request != nil {
		t.Fatalf("expected no-op, got request %v err %v", request, err)
	}

	session, _ := store.Get("s1")
	if session.StageIndex != 0 || session.Status != sessions.StatusCompleted {
		t.Fatalf("expected completed session at stage 0, got %s at %d", session.Status, session.StageIndex)
	}
}

func TestCompleteAnalysisRequiresAwaitingStatus(t *testing.T) {
	machine, _ := newTestMachine(t)
	if err := machine.CompleteAnalysis(context.Background(), "s1"); err == nil {
		t.Fatalf("expected error completing an active session")
	}
}

func TestPredicateCanBeReplaced(t *testing.T) {
	machine, store := newTestMachine(t, WithPredicate(PredicateFunc(func(answer string) bool {
		return strings.Contains(strings.ToLower(answer), "tuesday")
	})))

	if _, err := machine.OnPatientTurn(context.Background(), "s1", "I really could not tell you"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session, _ := store.Get("s1"); session.StageIndex != 0 {
		t.Fatalf("expected custom predicate to reject, got stage %d", session.StageIndex)
	}

	if _, err := machine.OnPatientTurn(context.Background(), "s1", "Tuesday"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session, _ := store.Get("s1"); session.StageIndex != 1 {
		t.Fatalf("expected custom predicate to accept, got stage %d", session.StageIndex)
	}
}

func TestMinLengthPredicateCountsCharactersNotBytes(t *testing.T) {
	predicate := MinLengthPredicate{MinLength: DefaultMinAnswerLength}

	if predicate.ShouldAdvance("ééééé") {
		t.Fatalf("expected five multi-byte characters not to qualify")
	}
	if !predicate.ShouldAdvance("éééééé") {
		t.Fatalf("expected six characters to qualify")
	}
}
