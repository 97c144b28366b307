// Package stages defines the ordered interview a screening session walks
// through. Definitions are immutable and shared read-only between sessions.
package stages

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("stage not found")

type Domain string

const (
	DomainIntroduction Domain = "introduction"
	DomainOrientation  Domain = "orientation"
	DomainMemory       Domain = "memory"
	DomainAttention    Domain = "attention"
	DomainLanguage     Domain = "language"
	DomainReasoning    Domain = "reasoning"
	DomainSocial       Domain = "social"
	DomainConclusion   Domain = "conclusion"
)

type Definition struct {
	Index  int
	Name   string
	Domain Domain
	// Prompt is the question the interviewer should lead into while the
	// session sits at this stage.
	Prompt string
}

type Catalog struct {
	stages []Definition
}

// New builds a catalog from defs in order. Indices are reassigned so that
// they always match the position in the catalog.
func New(defs ...Definition) *Catalog {
	stages := make([]Definition, len(defs))
	for i, def := range defs {
		def.Index = i
		stages[i] = def
	}
	return &Catalog{stages: stages}
}

// StageAt returns the definition at index. ErrNotFound past the last stage
// means the assessment is complete.
func (c *Catalog) StageAt(index int) (Definition, error) {
	if index < 0 || index >= len(c.stages) {
		return Definition{}, fmt.Errorf("stage %d: %w", index, ErrNotFound)
	}
	return c.stages[index], nil
}

func (c *Catalog) Count() int {
	return len(c.stages)
}

// Stages returns a copy of all definitions.
func (c *Catalog) Stages() []Definition {
	return append([]Definition(nil), c.stages...)
}

// Default returns the standard eleven stage screening interview.
func Default() *Catalog {
	return New(defaultStages...)
}

var defaultStages = []Definition{
	{
		Name:   "greeting",
		Domain: DomainIntroduction,
		Prompt: "Hello! I'm Dr. Smith. It's wonderful to meet you today. To start, could you please tell me your name and how you're feeling?",
	},
	{
		Name:   "orientation_time",
		Domain: DomainOrientation,
		Prompt: "Thank you for sharing that with me. Now, let me ask you a few simple questions. Can you tell me what day of the week it is today?",
	},
	{
		Name:   "orientation_date",
		Domain: DomainOrientation,
		Prompt: "That's good! And what is today's date? The month and year would be helpful too.",
	},
	{
		Name:   "memory_recent",
		Domain: DomainMemory,
		Prompt: "Excellent. Now, I'd like to ask about your recent activities. What did you have for breakfast this morning? Can you remember?",
	},
	{
		Name:   "memory_recall",
		Domain: DomainMemory,
		Prompt: "Thank you. I'm going to tell you three words, and I'd like you to remember them. The words are: APPLE, TABLE, and PENNY. Can you repeat those back to me?",
	},
	{
		Name:   "attention_calculation",
		Domain: DomainAttention,
		Prompt: "Very good! Now, let's try a simple math question. If you have 10 dollars and you spend 3 dollars, how much money do you have left?",
	},
	{
		Name:   "language_naming",
		Domain: DomainLanguage,
		Prompt: "Great! Now, can you name as many animals as you can think of? Take your time, and tell me whatever comes to mind.",
	},
	{
		Name:   "memory_delayed_recall",
		Domain: DomainMemory,
		Prompt: "Wonderful! Do you remember those three words I asked you to remember earlier? Can you tell me what they were?",
	},
	{
		Name:   "reasoning",
		Domain: DomainReasoning,
		Prompt: "Excellent. Let me ask you this: What would you do if you found a stamped, addressed envelope on the street?",
	},
	{
		Name:   "family_support",
		Domain: DomainSocial,
		Prompt: "That makes sense. Tell me about your daily routine. Who do you live with? Do you have family nearby who help you?",
	},
	{
		Name:   "completion",
		Domain: DomainConclusion,
		Prompt: "Thank you so much for answering all my questions. You've been very patient and helpful. Based on our conversation, I'll now prepare an assessment for you. Is there anything else you'd like to tell me?",
	},
}
