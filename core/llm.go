package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/providers"
)

const (
	DefaultReplyMaxTokens   = 150
	DefaultReplyTemperature = 0.7
)

type llm struct {
	client  LLM
	options []llms.CompletionOption
}

func newLLM() llm {
	return llm{options: []llms.CompletionOption{
		llms.WithMaxTokens(DefaultReplyMaxTokens),
		llms.WithTemperature(DefaultReplyTemperature),
	}}
}

func (l *llm) set(client LLM) {
	if l != nil {
		l.client = client
	}
}

func (l *llm) isConfigured() bool {
	return l != nil && l.client != nil
}

func (l *llm) generate(ctx context.Context, messages []llms.Message) (string, error) {
	if !l.isConfigured() {
		return "", providers.Permanent(fmt.Errorf("no llm configured"))
	}

	reply, err := l.client.Complete(ctx, messages, l.options...)
	if err != nil {
		return "", err
	}

	// An empty reply is usually a hiccup of the model, asking again helps.
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("llm returned an empty reply")
	}
	return reply, nil
}
