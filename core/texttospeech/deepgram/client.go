package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerName = "deepgram"

	speakURL = "https://api.deepgram.com/v1/speak"
)

type deepgramVoice string

const (
	VoiceAsteria deepgramVoice = "aura-asteria-en"
	VoiceLuna    deepgramVoice = "aura-luna-en"
	VoiceStella  deepgramVoice = "aura-stella-en"
	VoiceAthena  deepgramVoice = "aura-athena-en"
	VoiceHera    deepgramVoice = "aura-hera-en"
	VoiceOrion   deepgramVoice = "aura-orion-en"
	VoiceArcas   deepgramVoice = "aura-arcas-en"
	VoicePerseus deepgramVoice = "aura-perseus-en"
	VoiceAngus   deepgramVoice = "aura-angus-en"
	VoiceOrpheus deepgramVoice = "aura-orpheus-en"
	VoiceHelios  deepgramVoice = "aura-helios-en"
	VoiceZeus    deepgramVoice = "aura-zeus-en"

	defaultVoice = VoiceAsteria
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAsteria, VoiceLuna, VoiceStella, VoiceAthena, VoiceHera, VoiceOrion,
		VoiceArcas, VoicePerseus, VoiceAngus, VoiceOrpheus, VoiceHelios, VoiceZeus,
	}
}

type TextToSpeechClient struct {
	apiKey     string
	url        string
	voice      deepgramVoice
	httpClient *http.Client
}

type ClientOption func(*TextToSpeechClient)

func WithURL(url string) ClientOption {
	return func(c *TextToSpeechClient) { c.url = url }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *TextToSpeechClient) { c.httpClient = client }
}

// WithDefaultVoice sets the voice used when a request does not name one.
func WithDefaultVoice(voice deepgramVoice) ClientOption {
	return func(c *TextToSpeechClient) { c.voice = voice }
}

// NewTextToSpeechClient creates a client authenticated with apiKey, falling
// back to DEEPGRAM_API_KEY when apiKey is empty.
func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		var err error
		if apiKey, err = providers.APIKeyFromEnv(providerName, "DEEPGRAM_API_KEY"); err != nil {
			return nil, err
		}
	}

	client := &TextToSpeechClient{
		apiKey:     apiKey,
		url:        speakURL,
		voice:      defaultVoice,
		httpClient: providers.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice %q", client.voice)
	}
	return client, nil
}

// Synthesize renders text with an aura voice and returns the encoded audio.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize deepgram")
	defer span.End()

	options := texttospeech.NewSynthesisOptions(opts...)
	voice := c.voice
	if options.Voice != "" {
		voice = deepgramVoice(options.Voice)
		if !slices.Contains(GetAvailableVoices(), voice) {
			err := providers.Permanent(fmt.Errorf("invalid voice %q", voice))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("request.voice", string(voice)), attribute.Int("text.length", len(text)))

	if strings.TrimSpace(text) == "" {
		return nil, providers.Permanent(fmt.Errorf("nothing to synthesize"))
	}

	audio, err := c.speak(ctx, text, voice, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(audio)))
	return audio, nil
}

func (c *TextToSpeechClient) speak(ctx context.Context, text string, voice deepgramVoice, options texttospeech.SynthesisOptions) ([]byte, error) {
	speakURL, err := url.Parse(c.url)
	if err != nil {
		return nil, providers.Permanent(fmt.Errorf("invalid speak url: %w", err))
	}
	queryParams := speakURL.Query()
	queryParams.Set("model", string(voice))
	if !options.EncodingInfo.IsZero() {
		queryParams.Set("encoding", options.EncodingInfo.Format.Name())
		queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
		queryParams.Set("container", "none")
	}
	speakURL.RawQuery = queryParams.Encode()

	requestBodyBytes, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakURL.String(), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, providers.Transport(providerName, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		providerErr := providers.FromResponse(providerName, resp)
		logger.WarnContext(ctx, "deepgram speak request rejected", "status", resp.StatusCode, "error", providerErr.Message)
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
