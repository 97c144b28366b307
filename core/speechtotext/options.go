// Package speechtotext defines what the pipeline needs from a transcription
// provider.
package speechtotext

import (
	"errors"

	"github.com/koscakluka/ema-screening/core/audio"
)

// ErrNoSpeech is returned when the audio was processed but contained no
// recognizable speech. It is not a failure of the provider.
var ErrNoSpeech = errors.New("no speech detected")

const DefaultModel = "nova-2"

type TranscriptionOptions struct {
	Model       string
	SmartFormat bool
	Punctuate   bool
	Language    string

	// EncodingInfo describes raw audio. When zero the audio is expected to
	// carry its own container header (wav, webm, ogg).
	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func NewTranscriptionOptions(opts ...TranscriptionOption) TranscriptionOptions {
	options := TranscriptionOptions{
		Model:       DefaultModel,
		SmartFormat: true,
		Punctuate:   true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if model != "" {
			o.Model = model
		}
	}
}

func WithSmartFormat(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SmartFormat = enabled
	}
}

func WithPunctuate(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Punctuate = enabled
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
