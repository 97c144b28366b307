package events

import "github.com/koscakluka/ema-screening/core/analysis"

type TaskStarted struct {
	Base
	TaskID string
}

func NewTaskStarted(taskID string) TaskStarted {
	return TaskStarted{Base: NewBase(KindTaskStarted), TaskID: taskID}
}

type Processing struct {
	Base
	Message string
}

func NewProcessing(message string) Processing {
	return Processing{Base: NewBase(KindProcessing), Message: message}
}

type UserTranscript struct {
	Base
	Text string
}

func NewUserTranscript(text string) UserTranscript {
	return UserTranscript{Base: NewBase(KindUserTranscript), Text: text}
}

// AIResponse carries the interviewer reply of turn Seq.
type AIResponse struct {
	Base
	Text string
	Seq  int
}

func NewAIResponse(text string, seq int) AIResponse {
	return AIResponse{Base: NewBase(KindAIResponse), Text: text, Seq: seq}
}

// AIAudio carries the synthesized reply of turn Seq.
type AIAudio struct {
	Base
	Audio []byte
	Seq   int
}

func NewAIAudio(audio []byte, seq int) AIAudio {
	return AIAudio{Base: NewBase(KindAIAudio), Audio: audio, Seq: seq}
}

type AssessmentComplete struct {
	Base
	Message string
	Report  *analysis.Report
}

func NewAssessmentComplete(message string, report *analysis.Report) AssessmentComplete {
	return AssessmentComplete{Base: NewBase(KindAssessmentComplete), Message: message, Report: report}
}

type Error struct {
	Base
	Message string
}

func NewError(message string) Error {
	return Error{Base: NewBase(KindError), Message: message}
}

type Pong struct{ Base }

func NewPong() Pong {
	return Pong{Base: NewBase(KindPong)}
}
