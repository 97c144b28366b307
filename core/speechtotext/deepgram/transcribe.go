package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerName = "deepgram"

	listenURL = "wss://api.deepgram.com/v1/listen"
	// chunkSize keeps single websocket frames small, deepgram accepts any
	// split of the audio.
	chunkSize = 8 * 1024
)

type TranscriptionClient struct {
	apiKey string
	url    string
	dialer *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

func WithURL(url string) ClientOption {
	return func(c *TranscriptionClient) { c.url = url }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *TranscriptionClient) { c.dialer = dialer }
}

// NewTranscriptionClient creates a client authenticated with apiKey, falling
// back to DEEPGRAM_API_KEY when apiKey is empty.
func NewTranscriptionClient(apiKey string, opts ...ClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		var err error
		if apiKey, err = providers.APIKeyFromEnv(providerName, "DEEPGRAM_API_KEY"); err != nil {
			return nil, err
		}
	}

	client := &TranscriptionClient{
		apiKey: apiKey,
		url:    listenURL,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Transcribe sends a complete utterance over a fresh listen socket and
// returns the joined final transcript. It returns speechtotext.ErrNoSpeech
// when deepgram recognized nothing.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe deepgram")
	defer span.End()
	span.SetAttributes(attribute.Int("audio.bytes", len(audio)))

	if len(audio) == 0 {
		return "", speechtotext.ErrNoSpeech
	}

	options := speechtotext.NewTranscriptionOptions(opts...)
	span.SetAttributes(attribute.String("request.model", options.Model))

	transcript, err := c.transcribe(ctx, audio, options)
	if err != nil {
		if !errors.Is(err, speechtotext.ErrNoSpeech) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return "", err
	}
	return transcript, nil
}

func (c *TranscriptionClient) transcribe(ctx context.Context, audio []byte, options speechtotext.TranscriptionOptions) (string, error) {
	listenURL, err := c.listenURL(options)
	if err != nil {
		return "", providers.Permanent(err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, listenURL, http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		if resp != nil {
			providerErr := providers.FromResponse(providerName, resp)
			logger.WarnContext(ctx, "deepgram handshake rejected", "status", resp.StatusCode, "error", providerErr.Message)
			return "", providerErr
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", providers.Transport(providerName, fmt.Errorf("failed to open socket connection to deepgram: %w", err))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	for start := 0; start < len(audio); start += chunkSize {
		end := min(start+chunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[start:end]); err != nil {
			return "", c.socketError(ctx, fmt.Errorf("failed to write to deepgram: %w", err))
		}
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return "", c.socketError(ctx, fmt.Errorf("failed to close deepgram stream: %w", err))
	}

	var segments []string
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return "", c.socketError(ctx, fmt.Errorf("failed to read deepgram message: %w", err))
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		if segment, ok := finalSegment(ctx, msg); ok {
			segments = append(segments, segment)
		}
	}

	transcript := strings.TrimSpace(strings.Join(segments, " "))
	if transcript == "" {
		return "", speechtotext.ErrNoSpeech
	}
	return transcript, nil
}

func (c *TranscriptionClient) socketError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return providers.Transport(providerName, err)
}

func (c *TranscriptionClient) listenURL(options speechtotext.TranscriptionOptions) (string, error) {
	listenURL, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("model", options.Model)
	queryParams.Set("smart_format", strconv.FormatBool(options.SmartFormat))
	queryParams.Set("punctuate", strconv.FormatBool(options.Punctuate))
	if options.Language != "" {
		queryParams.Set("language", options.Language)
	}
	if !options.EncodingInfo.IsZero() {
		encoding, err := listenEncodingFor(options.EncodingInfo)
		if err != nil {
			return "", fmt.Errorf("invalid encoding: %w", err)
		}
		queryParams.Set("encoding", encoding.name)
		queryParams.Set("sample_rate", strconv.Itoa(encoding.sampleRate))
		queryParams.Set("channels", "1")
	}

	listenURL.RawQuery = queryParams.Encode()
	return listenURL.String(), nil
}

func finalSegment(ctx context.Context, msg []byte) (string, bool) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
		return "", false
	}
	if api.TypeResponse(parsedMsg.Type) != api.TypeMessageResponse {
		return "", false
	}

	var msgResp api.MessageResponse
	if err := json.Unmarshal(msg, &msgResp); err != nil {
		logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
		return "", false
	}
	if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
		return "", false
	}

	transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
	return transcript, transcript != ""
}
