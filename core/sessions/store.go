package sessions

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrCapacityReached is returned when a new session would exceed the
	// store capacity. Live sessions are never evicted to make room.
	ErrCapacityReached = errors.New("session capacity reached")
	// ErrInvariantViolation is returned when a mutation would break the
	// session lifecycle rules. Observing it means a caller is broken.
	ErrInvariantViolation = errors.New("session invariant violation")
)

// Store is the single source of truth for session state. Every mutation is
// atomic per session; mutations of different sessions never contend.
type Store interface {
	GetOrCreate(id string) (Session, error)
	Get(id string) (Session, error)
	AppendTurn(id string, role Role, text string) (Turn, error)
	// AdvanceStage moves the session one stage forward. It is a no-op when
	// the session is not active or already past the last stage.
	AdvanceStage(id string) (int, error)
	MarkStatus(id string, status Status) error
	SetAvatar(id string, handle *AvatarHandle) error
	// Update applies fn to a copy of the session and stores the result only
	// when fn succeeds and the result respects the session invariants.
	Update(id string, fn func(*Session) error) (Session, error)
	Remove(id string)
	Len() int
}

var statusOrder = map[Status]int{
	StatusActive:                0,
	StatusAwaitingFinalAnalysis: 1,
	StatusCompleted:             2,
}

func validateTransition(before, after Session, stageLimit int) error {
	switch {
	case after.ID != before.ID:
		return fmt.Errorf("%w: session id changed from %q to %q", ErrInvariantViolation, before.ID, after.ID)
	case after.StageIndex < before.StageIndex:
		return fmt.Errorf("%w: stage index decreased from %d to %d", ErrInvariantViolation, before.StageIndex, after.StageIndex)
	case after.StageIndex > before.StageIndex+1:
		return fmt.Errorf("%w: stage index skipped from %d to %d", ErrInvariantViolation, before.StageIndex, after.StageIndex)
	case stageLimit > 0 && after.StageIndex > stageLimit:
		return fmt.Errorf("%w: stage index %d exceeds stage count %d", ErrInvariantViolation, after.StageIndex, stageLimit)
	case after.StageIndex != before.StageIndex && before.Status != StatusActive:
		return fmt.Errorf("%w: stage changed while %s", ErrInvariantViolation, before.Status)
	case len(after.Turns) < len(before.Turns):
		return fmt.Errorf("%w: turns removed", ErrInvariantViolation)
	case after.Sequence < before.Sequence:
		return fmt.Errorf("%w: turn sequence went backwards", ErrInvariantViolation)
	}

	from, ok := statusOrder[before.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvariantViolation, before.Status)
	}
	to, ok := statusOrder[after.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvariantViolation, after.Status)
	}
	if to < from {
		return fmt.Errorf("%w: status moved back from %s to %s", ErrInvariantViolation, before.Status, after.Status)
	}

	return nil
}
