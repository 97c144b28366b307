// Package sessions keeps the state of every ongoing screening interview.
package sessions

import (
	"slices"
	"time"
)

type Role string

const (
	RolePatient     Role = "patient"
	RoleInterviewer Role = "interviewer"
	RoleSystem      Role = "system"
)

type Status string

const (
	StatusActive                Status = "active"
	StatusAwaitingFinalAnalysis Status = "awaiting_final_analysis"
	StatusCompleted             Status = "completed"
)

type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
	// Seq is the turn sequence number the turn was recorded under, 0 when the
	// turn was not produced by a numbered pipeline turn.
	Seq int
	// Fallback marks an interviewer turn that was not generated but
	// substituted after generation gave up.
	Fallback bool
}

// AvatarHandle identifies a streaming avatar session opened for the
// interview.
type AvatarHandle struct {
	ID    string
	Token string
	URL   string
}

type Session struct {
	ID         string
	Turns      []Turn
	StageIndex int
	Status     Status
	Avatar     *AvatarHandle
	// Sequence is the last turn sequence number issued for the session.
	Sequence  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	clone := s
	clone.Turns = slices.Clone(s.Turns)
	if s.Avatar != nil {
		avatar := *s.Avatar
		clone.Avatar = &avatar
	}
	return clone
}

// LastTurn returns the most recent turn, if any.
func (s Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}
