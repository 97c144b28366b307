package orchestration

import (
	"context"

	"github.com/koscakluka/ema-screening/core/texttospeech"
)

type textToSpeech struct {
	client TextToSpeech
	voice  string
}

func (t *textToSpeech) set(client TextToSpeech) {
	if t != nil {
		t.client = client
	}
}

func (t *textToSpeech) isConfigured() bool {
	return t != nil && t.client != nil
}

func (t *textToSpeech) synthesize(ctx context.Context, text string) ([]byte, error) {
	var opts []texttospeech.SynthesisOption
	if t.voice != "" {
		opts = append(opts, texttospeech.WithVoice(t.voice))
	}
	return t.client.Synthesize(ctx, text, opts...)
}
