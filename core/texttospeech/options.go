// Package texttospeech defines what the pipeline needs from a speech
// synthesis provider.
package texttospeech

import "github.com/koscakluka/ema-screening/core/audio"

type SynthesisOptions struct {
	// Voice is provider specific, a voice id for elevenlabs and a model name
	// for deepgram.
	Voice string
	Model string

	// EncodingInfo requests raw audio. When zero the provider default
	// (mp3) is returned.
	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func NewSynthesisOptions(opts ...SynthesisOption) SynthesisOptions {
	var options SynthesisOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithModel(model string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Model = model }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			// TODO: Issue warning
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
