package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/llms/groq"
	"github.com/koscakluka/ema-screening/core/providers"
)

type completerStub struct {
	messages []llms.Message
	options  llms.CompletionOptions
	reply    string
	err      error
}

func (c *completerStub) Complete(_ context.Context, messages []llms.Message, opts ...llms.CompletionOption) (string, error) {
	c.messages = messages
	c.options = llms.NewCompletionOptions(opts...)
	return c.reply, c.err
}

const transcript = "Dr. Smith: What day is it today?\nPatient: I believe it is Tuesday"

func TestTextAnalyzerSendsDiagnosisPrompt(t *testing.T) {
	completer := &completerStub{reply: "  Memory appears intact.  "}
	analyzer := NewTextAnalyzer(completer)

	report, err := analyzer.Analyze(context.Background(), transcript)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Summary != "Memory appears intact." {
		t.Fatalf("unexpected summary %q", report.Summary)
	}

	if len(completer.messages) != 2 {
		t.Fatalf("expected system and user message, got %d", len(completer.messages))
	}
	if completer.messages[0].Role != llms.MessageRoleSystem || completer.messages[0].Content != SystemPrompt {
		t.Fatalf("unexpected system message %+v", completer.messages[0])
	}
	if !strings.Contains(completer.messages[1].Content, transcript) {
		t.Fatalf("expected prompt to contain the transcript")
	}
	if completer.options.MaxTokens != MaxTokens {
		t.Fatalf("expected max tokens %d, got %d", MaxTokens, completer.options.MaxTokens)
	}
	if completer.options.Temperature == nil || *completer.options.Temperature != Temperature {
		t.Fatalf("expected temperature %v, got %v", Temperature, completer.options.Temperature)
	}
}

func TestTextAnalyzerKeepsProviderErrorClassification(t *testing.T) {
	failure := &providers.Error{Provider: "openai", StatusCode: 503}
	analyzer := NewTextAnalyzer(&completerStub{err: failure})

	_, err := analyzer.Analyze(context.Background(), transcript)
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if !providers.IsTransient(err) {
		t.Fatalf("expected 503 to stay transient")
	}
}

func TestEmptyTranscriptIsPermanent(t *testing.T) {
	completer := &completerStub{reply: "unused"}
	_, err := NewTextAnalyzer(completer).Analyze(context.Background(), "  \n ")
	if err == nil || providers.IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if completer.messages != nil {
		t.Fatalf("expected no completion request")
	}
}

func groqServer(t *testing.T, content string) *groq.Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(server.Close)

	client, err := groq.NewClient("test-key", groq.WithURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestGroqAnalyzerDecodesStructuredReport(t *testing.T) {
	client := groqServer(t, `{
		"summary": "Warm and engaged conversation.",
		"scores": {"memory": 8, "language": 9, "orientation": 7, "reasoning": 8, "attention": 9},
		"overall_risk": "Low",
		"recommendations": ["Repeat the screening in a year"]
	}`)

	report, err := NewGroqAnalyzer(client).Analyze(context.Background(), transcript)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallRisk != RiskLow || report.Scores.Orientation != 7 || len(report.Recommendations) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestGroqAnalyzerRejectsOutOfRangeScores(t *testing.T) {
	client := groqServer(t, `{"summary": "ok", "scores": {"memory": 14}, "overall_risk": "Low"}`)

	_, err := NewGroqAnalyzer(client).Analyze(context.Background(), transcript)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if providers.IsTransient(err) {
		t.Fatalf("expected invalid report to be permanent")
	}
}

func TestReportValidate(t *testing.T) {
	testCases := []struct {
		name    string
		report  Report
		wantErr bool
	}{
		{name: "summary only", report: Report{Summary: "fine"}},
		{name: "full", report: Report{Summary: "fine", Scores: DomainScores{1, 10, 5, 5, 5}, OverallRisk: RiskHigh}},
		{name: "no summary", report: Report{OverallRisk: RiskLow}, wantErr: true},
		{name: "score too low", report: Report{Summary: "x", Scores: DomainScores{Attention: -1}}, wantErr: true},
		{name: "unknown risk", report: Report{Summary: "x", OverallRisk: "Severe"}, wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := testCase.report.Validate()
			if (err != nil) != testCase.wantErr {
				t.Fatalf("expected error %v, got %v", testCase.wantErr, err)
			}
		})
	}
}
