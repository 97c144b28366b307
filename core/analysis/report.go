// Package analysis turns a finished interview transcript into a cognitive
// screening report.
package analysis

import (
	"fmt"
	"strings"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// DomainScores rates each cognitive domain from 1 (severe concern) to 10 (no
// concern). A zero score means the domain was not rated.
type DomainScores struct {
	Memory      int `json:"memory" jsonschema:"minimum=1,maximum=10,description=Recall of recent events conversation details and personal history"`
	Language    int `json:"language" jsonschema:"minimum=1,maximum=10,description=Clarity of expression word finding and comprehension"`
	Orientation int `json:"orientation" jsonschema:"minimum=1,maximum=10,description=Awareness of time place and situation"`
	Reasoning   int `json:"reasoning" jsonschema:"minimum=1,maximum=10,description=Problem solving logical thinking and judgement"`
	Attention   int `json:"attention" jsonschema:"minimum=1,maximum=10,description=Ability to follow the conversation and stay on topic"`
}

type Report struct {
	Summary         string       `json:"summary" jsonschema:"description=Compassionate overall assessment including observed strengths and gentle notes on concerns"`
	Scores          DomainScores `json:"scores,omitzero"`
	OverallRisk     RiskLevel    `json:"overall_risk,omitempty" jsonschema:"enum=Low,enum=Medium,enum=High"`
	Recommendations []string     `json:"recommendations,omitempty" jsonschema:"description=Recommendations for family or caregivers and suggested next steps"`
}

// Validate checks the ranges a structured report has to respect. Reports
// that only carry a summary are valid.
func (r Report) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("report has no summary")
	}

	scores := map[string]int{
		"memory":      r.Scores.Memory,
		"language":    r.Scores.Language,
		"orientation": r.Scores.Orientation,
		"reasoning":   r.Scores.Reasoning,
		"attention":   r.Scores.Attention,
	}
	for domain, score := range scores {
		if score != 0 && (score < 1 || score > 10) {
			return fmt.Errorf("%s score %d out of range", domain, score)
		}
	}

	switch r.OverallRisk {
	case "", RiskLow, RiskMedium, RiskHigh:
		return nil
	default:
		return fmt.Errorf("unknown risk level %q", r.OverallRisk)
	}
}
