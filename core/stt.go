package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/speechtotext"
)

type speechToText struct {
	// client stores the configured speech-to-text implementation.
	client  SpeechToText
	options []speechtotext.TranscriptionOption
}

func (s *speechToText) set(client SpeechToText) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

// transcribe returns the transcript of audio. Missing speech is reported as
// a permanent speechtotext.ErrNoSpeech so it is never retried.
func (s *speechToText) transcribe(ctx context.Context, audio []byte) (string, error) {
	if !s.isConfigured() {
		return "", providers.Permanent(fmt.Errorf("no speech-to-text client configured"))
	}

	transcript, err := s.client.Transcribe(ctx, audio, s.options...)
	if errors.Is(err, speechtotext.ErrNoSpeech) {
		return "", providers.Permanent(err)
	}
	if err != nil {
		return "", err
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", providers.Permanent(speechtotext.ErrNoSpeech)
	}
	return transcript, nil
}
