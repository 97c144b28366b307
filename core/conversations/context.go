// Package conversations turns session history into the context a language
// model answers from.
package conversations

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/stages"
)

// DefaultWindowSize is how many of the most recent turns are replayed to the
// model.
const DefaultWindowSize = 6

const closingGuidance = "Thank you for completing the assessment. I'll now analyze our conversation and prepare your cognitive health report."

type Builder struct {
	catalog    *stages.Catalog
	windowSize int
	persona    string
}

type BuilderOption func(*Builder)

func WithWindowSize(size int) BuilderOption {
	return func(b *Builder) {
		if size > 0 {
			b.windowSize = size
		}
	}
}

func WithPersona(persona string) BuilderOption {
	return func(b *Builder) { b.persona = persona }
}

func NewBuilder(catalog *stages.Catalog, opts ...BuilderOption) *Builder {
	b := &Builder{
		catalog:    catalog,
		windowSize: DefaultWindowSize,
		persona:    InterviewerPersona,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) WindowSize() int {
	return b.windowSize
}

// Build assembles the persona, the last turns of the session oldest first and
// the guidance for stageIndex. A stage index past the catalog produces the
// closing guidance.
func (b *Builder) Build(session sessions.Session, stageIndex int) []llms.Message {
	turns := session.Turns
	if len(turns) > b.windowSize {
		turns = turns[len(turns)-b.windowSize:]
	}

	messages := make([]llms.Message, 0, len(turns)+2)
	messages = append(messages, llms.SystemMessage(b.persona))
	for _, turn := range turns {
		messages = append(messages, llms.Message{Role: roleFor(turn.Role), Content: turn.Text})
	}
	messages = append(messages, llms.SystemMessage(b.guidance(stageIndex)))

	return messages
}

func (b *Builder) guidance(stageIndex int) string {
	stage, err := b.catalog.StageAt(stageIndex)
	if errors.Is(err, stages.ErrNotFound) {
		return fmt.Sprintf("\n\nCURRENT ASSESSMENT STAGE: complete\nYou should naturally close the interview: %s", closingGuidance)
	}
	return fmt.Sprintf("\n\nCURRENT ASSESSMENT STAGE: %s\nYou should naturally transition to ask: %s", stage.Domain, stage.Prompt)
}

func roleFor(role sessions.Role) llms.MessageRole {
	switch role {
	case sessions.RolePatient:
		return llms.MessageRoleUser
	case sessions.RoleInterviewer:
		return llms.MessageRoleAssistant
	default:
		return llms.MessageRoleSystem
	}
}
