package analysis

import "fmt"

const (
	MaxTokens   = 800
	Temperature = 0.3
)

const SystemPrompt = "You are Dr. Smith, a compassionate geriatric specialist analyzing patient conversations."

const promptTemplate = `As Dr. Smith, analyze this conversation with an elderly patient for cognitive health indicators.

Conversation Transcript:
%s

Provide a compassionate assessment covering:

1. MEMORY FUNCTION (Score 1-10):
- Ability to recall recent events
- Remembering conversation details
- Personal history recall
- Recognition of familiar information

2. LANGUAGE & COMMUNICATION (Score 1-10):
- Clarity of expression
- Word-finding ability
- Sentence structure
- Understanding questions
- Staying on topic

3. ORIENTATION (Score 1-10):
- Awareness of time (date, day, season)
- Awareness of place
- Awareness of situation

4. REASONING & JUDGMENT (Score 1-10):
- Problem-solving approach
- Logical thinking
- Decision-making ability

5. ATTENTION & FOCUS (Score 1-10):
- Ability to follow conversation
- Sustained attention
- Response appropriateness

Overall Assessment:
- Strengths observed
- Areas of concern (if any)
- Overall risk level (Low, Medium or High)
- Recommendations for family/caregivers
- Suggested next steps

IMPORTANT: Be respectful, compassionate, and focus on supporting the patient's dignity.
If concerns are noted, frame them gently and constructively.`

// Prompt renders the analysis request for transcript.
func Prompt(transcript string) string {
	return fmt.Sprintf(promptTemplate, transcript)
}
