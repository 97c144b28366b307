package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerName = "elevenlabs"

	baseURL = "https://api.elevenlabs.io/v1"

	// VoiceRachel is the warm, friendly default interviewer voice.
	VoiceRachel  = "21m00Tcm4TlvDq8ikWAM"
	DefaultModel = "eleven_monolingual_v1"
)

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var defaultVoiceSettings = VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

type TextToSpeechClient struct {
	apiKey        string
	baseURL       string
	voice         string
	model         string
	voiceSettings VoiceSettings
	httpClient    *http.Client
}

type ClientOption func(*TextToSpeechClient)

func WithBaseURL(url string) ClientOption {
	return func(c *TextToSpeechClient) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *TextToSpeechClient) { c.httpClient = client }
}

func WithDefaultVoice(voiceID string) ClientOption {
	return func(c *TextToSpeechClient) {
		if voiceID != "" {
			c.voice = voiceID
		}
	}
}

func WithDefaultModel(model string) ClientOption {
	return func(c *TextToSpeechClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithVoiceSettings(settings VoiceSettings) ClientOption {
	return func(c *TextToSpeechClient) { c.voiceSettings = settings }
}

// NewTextToSpeechClient creates a client authenticated with apiKey, falling
// back to ELEVENLABS_API_KEY when apiKey is empty.
func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		var err error
		if apiKey, err = providers.APIKeyFromEnv(providerName, "ELEVENLABS_API_KEY"); err != nil {
			return nil, err
		}
	}

	client := &TextToSpeechClient{
		apiKey:        apiKey,
		baseURL:       baseURL,
		voice:         VoiceRachel,
		model:         DefaultModel,
		voiceSettings: defaultVoiceSettings,
		httpClient:    providers.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize elevenlabs")
	defer span.End()

	options := texttospeech.NewSynthesisOptions(opts...)
	voice, model := c.voice, c.model
	if options.Voice != "" {
		voice = options.Voice
	}
	if options.Model != "" {
		model = options.Model
	}
	span.SetAttributes(
		attribute.String("request.voice", voice),
		attribute.String("request.model", model),
		attribute.Int("text.length", len(text)),
	)

	if strings.TrimSpace(text) == "" {
		return nil, providers.Permanent(fmt.Errorf("nothing to synthesize"))
	}

	audio, err := c.textToSpeech(ctx, text, voice, model, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(audio)))
	return audio, nil
}

type requestBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

func (c *TextToSpeechClient) textToSpeech(ctx context.Context, text, voice, model string, options texttospeech.SynthesisOptions) ([]byte, error) {
	requestBodyBytes, err := json.Marshal(requestBody{Text: text, ModelID: model, VoiceSettings: c.voiceSettings})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	endpoint := c.baseURL + "/text-to-speech/" + voice
	if format := outputFormat(options); format != "" {
		endpoint += "?output_format=" + format
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, providers.Transport(providerName, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		providerErr := providers.FromResponse(providerName, resp)
		logger.WarnContext(ctx, "elevenlabs request rejected", "status", resp.StatusCode, "error", providerErr.Message)
		return nil, providerErr
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.Transport(providerName, fmt.Errorf("error reading response body: %w", err))
	}
	if len(audio) == 0 {
		return nil, providers.Transport(providerName, fmt.Errorf("response contained no audio"))
	}
	return audio, nil
}

// outputFormat maps raw encodings elevenlabs supports, anything else keeps
// the mp3 default.
func outputFormat(options texttospeech.SynthesisOptions) string {
	if options.EncodingInfo.IsZero() {
		return ""
	}
	switch options.EncodingInfo.Format.Name() {
	case "linear16":
		switch options.EncodingInfo.SampleRate {
		case 16000, 22050, 24000, 44100:
			return fmt.Sprintf("pcm_%d", options.EncodingInfo.SampleRate)
		}
	case "mulaw":
		if options.EncodingInfo.SampleRate == 8000 {
			return "ulaw_8000"
		}
	}
	return ""
}
