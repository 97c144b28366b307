// Package assessment drives a session through the interview stages and
// decides when the interview is over.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/stages"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-screening/core/assessment")

// FinalAnalysisRequested is produced exactly once per session, when the last
// stage has been answered.
type FinalAnalysisRequested struct {
	SessionID   string
	Transcript  string
	RequestedAt time.Time
}

// Decision is the outcome of evaluating a patient answer before the reply
// is generated. It is applied with Commit once the reply exists.
type Decision struct {
	SessionID string
	FromStage int
	// TargetStage is the stage the interviewer reply should lead into. It
	// equals FromStage when the answer does not advance the interview.
	TargetStage int
	Advance     bool
}

type Machine struct {
	store     sessions.Store
	catalog   *stages.Catalog
	predicate Predicate
	labels    Labels
	now       func() time.Time
}

type MachineOption func(*Machine)

// WithPredicate replaces the advancement heuristic.
func WithPredicate(predicate Predicate) MachineOption {
	return func(m *Machine) {
		if predicate != nil {
			m.predicate = predicate
		}
	}
}

func WithLabels(labels Labels) MachineOption {
	return func(m *Machine) { m.labels = labels }
}

func NewMachine(store sessions.Store, catalog *stages.Catalog, opts ...MachineOption) *Machine {
	m := &Machine{
		store:     store,
		catalog:   catalog,
		predicate: MinLengthPredicate{MinLength: DefaultMinAnswerLength},
		labels:    DefaultLabels,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Catalog() *stages.Catalog {
	return m.catalog
}

// Plan evaluates answer against the current state of session without
// changing anything.
func (m *Machine) Plan(session sessions.Session, answer string) Decision {
	decision := Decision{
		SessionID:   session.ID,
		FromStage:   session.StageIndex,
		TargetStage: session.StageIndex,
	}
	if session.Status != sessions.StatusActive || session.StageIndex >= m.catalog.Count() {
		return decision
	}
	if m.predicate.ShouldAdvance(answer) {
		decision.Advance = true
		decision.TargetStage = session.StageIndex + 1
	}
	return decision
}

// Commit applies decision atomically. Decisions made against a stage the
// session already left, or for a session that is no longer active, are
// ignored. Reaching the end of the catalog moves the session to
// awaiting_final_analysis and returns the analysis request.
func (m *Machine) Commit(ctx context.Context, decision Decision) (*FinalAnalysisRequested, error) {
	if !decision.Advance {
		return nil, nil
	}

	var (
		request  *FinalAnalysisRequested
		advanced bool
	)
	session, err := m.store.Update(decision.SessionID, func(session *sessions.Session) error {
		request, advanced = nil, false
		if session.Status != sessions.StatusActive || session.StageIndex != decision.FromStage {
			return nil
		}

		advanced = true
		session.StageIndex++
		if session.StageIndex >= m.catalog.Count() {
			session.Status = sessions.StatusAwaitingFinalAnalysis
			request = &FinalAnalysisRequested{
				SessionID:   session.ID,
				Transcript:  Transcript(session.Turns, m.labels),
				RequestedAt: m.now(),
			}
		}
		return nil
	})
	if errors.Is(err, sessions.ErrInvariantViolation) {
		panic(fmt.Errorf("committing stage decision for session %q: %w", decision.SessionID, err))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to commit stage decision: %w", err)
	}

	if !advanced {
		return nil, nil
	}
	logger.InfoContext(ctx, "stage advanced",
		"session_id", session.ID,
		"stage", session.StageIndex,
		"status", string(session.Status))
	return request, nil
}

// OnPatientTurn evaluates answer against the stored session and commits the
// result right away.
func (m *Machine) OnPatientTurn(ctx context.Context, sessionID string, answer string) (*FinalAnalysisRequested, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return m.Commit(ctx, m.Plan(session, answer))
}

// CompleteAnalysis marks a session whose final analysis was delivered.
func (m *Machine) CompleteAnalysis(ctx context.Context, sessionID string) error {
	_, err := m.store.Update(sessionID, func(session *sessions.Session) error {
		if session.Status != sessions.StatusAwaitingFinalAnalysis {
			return fmt.Errorf("session is %s, not awaiting final analysis", session.Status)
		}
		session.Status = sessions.StatusCompleted
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}

	logger.InfoContext(ctx, "assessment completed", "session_id", sessionID)
	return nil
}
