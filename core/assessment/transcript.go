package assessment

import (
	"strings"

	"github.com/koscakluka/ema-screening/core/sessions"
)

// Labels name the speakers in a rendered transcript.
type Labels struct {
	Patient     string
	Interviewer string
}

var DefaultLabels = Labels{Patient: "Patient", Interviewer: "Dr. Smith"}

// Transcript renders the interview as "<label>: <text>" lines in
// chronological order. System turns are left out.
func Transcript(turns []sessions.Turn, labels Labels) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case sessions.RolePatient:
			lines = append(lines, labels.Patient+": "+turn.Text)
		case sessions.RoleInterviewer:
			lines = append(lines, labels.Interviewer+": "+turn.Text)
		}
	}
	return strings.Join(lines, "\n")
}
