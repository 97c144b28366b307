package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/llms/groq"
	"github.com/koscakluka/ema-screening/core/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Analyzer produces the final report of an interview.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*Report, error)
}

// Completer is the plain text completion every llms client offers.
type Completer interface {
	Complete(ctx context.Context, messages []llms.Message, opts ...llms.CompletionOption) (string, error)
}

func messages(transcript string) []llms.Message {
	return []llms.Message{
		llms.SystemMessage(SystemPrompt),
		llms.UserMessage(Prompt(transcript)),
	}
}

func completionOptions(model string) []llms.CompletionOption {
	opts := []llms.CompletionOption{
		llms.WithMaxTokens(MaxTokens),
		llms.WithTemperature(Temperature),
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	return opts
}

// TextAnalyzer asks any completer for a free text assessment and returns it
// as the report summary, without scores.
type TextAnalyzer struct {
	completer Completer
	model     string
}

type TextAnalyzerOption func(*TextAnalyzer)

func WithModel(model string) TextAnalyzerOption {
	return func(a *TextAnalyzer) { a.model = model }
}

func NewTextAnalyzer(completer Completer, opts ...TextAnalyzerOption) *TextAnalyzer {
	analyzer := &TextAnalyzer{completer: completer}
	for _, opt := range opts {
		opt(analyzer)
	}
	return analyzer
}

func (a *TextAnalyzer) Analyze(ctx context.Context, transcript string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "analyze transcript")
	defer span.End()
	span.SetAttributes(attribute.Int("transcript.length", len(transcript)))

	if strings.TrimSpace(transcript) == "" {
		err := providers.Permanent(fmt.Errorf("transcript is empty"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	text, err := a.completer.Complete(ctx, messages(transcript), completionOptions(a.model)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to analyze transcript: %w", err)
	}
	return &Report{Summary: strings.TrimSpace(text)}, nil
}

// GroqAnalyzer asks groq for a report matching the Report schema.
type GroqAnalyzer struct {
	client *groq.Client
	model  string
}

type GroqAnalyzerOption func(*GroqAnalyzer)

func WithGroqModel(model string) GroqAnalyzerOption {
	return func(a *GroqAnalyzer) { a.model = model }
}

func NewGroqAnalyzer(client *groq.Client, opts ...GroqAnalyzerOption) *GroqAnalyzer {
	analyzer := &GroqAnalyzer{client: client}
	for _, opt := range opts {
		opt(analyzer)
	}
	return analyzer
}

func (a *GroqAnalyzer) Analyze(ctx context.Context, transcript string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "analyze transcript structured")
	defer span.End()
	span.SetAttributes(attribute.Int("transcript.length", len(transcript)))

	if strings.TrimSpace(transcript) == "" {
		err := providers.Permanent(fmt.Errorf("transcript is empty"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report, err := groq.PromptJSONSchema[Report](ctx, a.client, messages(transcript), completionOptions(a.model)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to analyze transcript: %w", err)
	}
	if err := report.Validate(); err != nil {
		// Re-asking rarely fixes an out of range answer.
		err = providers.Permanent(fmt.Errorf("invalid report: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.InfoContext(ctx, "transcript analyzed", "overall_risk", string(report.OverallRisk))
	return report, nil
}
