package main

import (
	"fmt"

	"github.com/koscakluka/ema-screening/config"
	orchestration "github.com/koscakluka/ema-screening/core"
	"github.com/koscakluka/ema-screening/core/analysis"
	"github.com/koscakluka/ema-screening/core/assessment"
	"github.com/koscakluka/ema-screening/core/avatar/heygen"
	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/llms/groq"
	"github.com/koscakluka/ema-screening/core/llms/openai"
	"github.com/koscakluka/ema-screening/core/speechtotext"
	"github.com/koscakluka/ema-screening/core/speechtotext/deepgram"
	deepgramtts "github.com/koscakluka/ema-screening/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-screening/core/texttospeech/elevenlabs"
)

// providerOptions builds the collaborators selected in cfg. API keys left
// empty in cfg are read from the provider's usual environment variable.
func providerOptions(cfg *config.Config) ([]orchestration.OrchestratorOption, error) {
	var options []orchestration.OrchestratorOption

	stt, err := deepgram.NewTranscriptionClient(cfg.Deepgram.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech-to-text client: %w", err)
	}
	options = append(options, orchestration.WithSpeechToText(stt, speechtotext.WithModel(cfg.Deepgram.Model)))

	switch cfg.LLM.Provider {
	case config.LLMProviderGroq:
		client, err := groq.NewClient(cfg.Groq.APIKey, groq.WithModel(cfg.Groq.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		options = append(options,
			orchestration.WithLLM(client),
			orchestration.WithAnalyzer(analysis.NewGroqAnalyzer(client)))
	default:
		client, err := openai.NewClient(cfg.OpenAI.APIKey, openai.WithModel(cfg.OpenAI.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		options = append(options,
			orchestration.WithLLM(client),
			orchestration.WithAnalyzer(analysis.NewTextAnalyzer(client)))
	}
	options = append(options, orchestration.WithGenerationOptions(
		llms.WithMaxTokens(cfg.LLM.MaxTokens),
		llms.WithTemperature(cfg.LLM.Temperature),
	))

	switch cfg.TTS.Provider {
	case config.TTSProviderDeepgram:
		client, err := deepgramtts.NewTextToSpeechClient(cfg.Deepgram.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
		}
		options = append(options, orchestration.WithTextToSpeech(client))
	case config.TTSProviderElevenLabs:
		client, err := elevenlabs.NewTextToSpeechClient(cfg.ElevenLabs.APIKey,
			elevenlabs.WithDefaultModel(cfg.ElevenLabs.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
		}
		options = append(options, orchestration.WithTextToSpeech(client))
	}
	if cfg.TTS.Voice != "" {
		options = append(options, orchestration.WithVoice(cfg.TTS.Voice))
	}

	// The avatar is optional, only a configured key enables it.
	if cfg.HeyGen.APIKey != "" {
		client, err := heygen.NewClient(cfg.HeyGen.APIKey,
			heygen.WithAvatarID(cfg.HeyGen.AvatarID),
			heygen.WithVoiceID(cfg.HeyGen.VoiceID))
		if err != nil {
			return nil, fmt.Errorf("failed to create avatar client: %w", err)
		}
		options = append(options, orchestration.WithAvatar(client))
	}

	return options, nil
}

func minLengthPredicate(minLength int) assessment.Predicate {
	if minLength <= 0 {
		minLength = assessment.DefaultMinAnswerLength
	}
	return assessment.MinLengthPredicate{MinLength: minLength}
}
