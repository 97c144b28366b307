package events

import "time"

type Kind string

const (
	KindTaskStarted        Kind = "task_started"
	KindProcessing         Kind = "processing"
	KindUserTranscript     Kind = "user_transcript"
	KindAIResponse         Kind = "ai_response"
	KindAIAudio            Kind = "ai_audio"
	KindAssessmentComplete Kind = "assessment_complete"
	KindError              Kind = "error"
	KindPong               Kind = "pong"
)

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
